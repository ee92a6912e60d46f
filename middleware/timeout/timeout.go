// Package timeout 提供事件处理超时中间件。
//
// 处理函数不携带 context，超时采用弃置模式：handler 在独立
// goroutine 中执行，超过截止时间后中间件提前返回 TimeoutError，
// handler 继续运行至自然结束，迟到的结果被丢弃。
// 适合为偶发阻塞的 handler 设置兜底上限；持续阻塞的 handler
// 会累积弃置的 goroutine，应从根源修复。
//
//	d.AddMiddleware(timeout.New(5 * time.Second))
package timeout

import (
	"fmt"
	"time"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/dispatch"
)

// TimeoutError 处理超时错误
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("handler timed out after %v", e.After)
}

// New 创建超时中间件。
func New(d time.Duration) dispatch.Middleware {
	return func(h dispatch.Handler) dispatch.Handler {
		return func(ev core.Event) error {
			// 缓冲 1：超时后 handler 的迟到写入不阻塞
			done := make(chan error, 1)
			go func() {
				// 独立 goroutine 中的 panic 不经过分发器恢复，就地转为 error
				defer func() {
					if r := recover(); r != nil {
						done <- fmt.Errorf("handler panic: %v", r)
					}
				}()
				done <- h(ev)
			}()

			timer := time.NewTimer(d)
			defer timer.Stop()

			select {
			case err := <-done:
				return err
			case <-timer.C:
				return &TimeoutError{After: d}
			}
		}
	}
}
