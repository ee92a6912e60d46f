// Package logging 提供事件处理日志中间件。
//
// 记录每个事件的处理耗时与错误信息。使用 log/slog 零外部依赖。
//
//	d.AddMiddleware(logging.New(slog.Default()))
package logging

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/dispatch"
)

// New 创建日志中间件。
func New(logger *slog.Logger) dispatch.Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(h dispatch.Handler) dispatch.Handler {
		return func(ev core.Event) error {
			start := time.Now()

			err := h(ev)

			attrs := []any{
				"event", fmt.Sprintf("%T", ev),
				"path", string(ev.Path()),
				"duration", time.Since(start),
			}

			if err != nil {
				logger.Error("event handler failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("event handled", attrs...)
			}

			return err
		}
	}
}
