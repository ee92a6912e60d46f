// Package recoverer 提供 panic 恢复中间件。
//
// 捕获 handler 内的 panic 并转化为 error 返回，让分发器按普通
// 处理失败记账，而不是走池级兜底恢复。
//
//	d.AddMiddleware(recoverer.New())
package recoverer

import (
	"fmt"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/dispatch"
)

// PanicError 包装 panic 恢复值的 error 类型
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// New 创建 panic 恢复中间件。
func New() dispatch.Middleware {
	return func(h dispatch.Handler) dispatch.Handler {
		return func(ev core.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r}
				}
			}()
			return h(ev)
		}
	}
}
