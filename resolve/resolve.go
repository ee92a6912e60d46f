// Package resolve 实现入站信号的类型解析与再水化。
//
// Registry 承载三层状态：别名表（线上名 → 本地名）、类型表
// （嵌套注册名 → 事件类型与其构造候选）与解析缓存。
// Resolve 将线上接口/成员名映射到已注册的事件类型，支持对嵌套
// 注册名的逐级回退探测；Rehydrate 在此之上按实参挑选构造函数，
// 重建强类型事件并绑定原始记录状态。
//
// 解析缓存仅在成功时填充，每键至多一次，从不失效。
// 别名登记与类型注册均为后写覆盖，已缓存的解析结果不受影响。
package resolve

import (
	"log/slog"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/uniyakcom/dbus/core"
)

var (
	objectPathType = reflect.TypeOf(core.ObjectPath(""))
	signalBaseType = reflect.TypeOf(core.SignalBase{})
	eventType      = reflect.TypeOf((*core.Event)(nil)).Elem()
)

// Config 注册表配置
type Config struct {
	// Logger 自定义日志。为 nil 时使用 slog.Default()。
	Logger *slog.Logger
}

// Registry 事件类型注册表
type Registry struct {
	logger *slog.Logger

	ifaceAliases  sync.Map // 线上接口名 → 本地接口名
	memberAliases sync.Map // 线上成员名 → 本地成员名
	types         sync.Map // 嵌套注册名 → *Type
	byType        sync.Map // reflect.Type → *Type（出站反查）
	resolved      sync.Map // 组合键 → *Type（解析缓存）
	catalog       sync.Map // *Type → []*ctorEntry（构造候选目录）

	flight singleflight.Group
}

// New 创建注册表。
func New(cfg ...Config) *Registry {
	var logger *slog.Logger
	if len(cfg) > 0 && cfg[0].Logger != nil {
		logger = cfg[0].Logger
	} else {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Default 返回包级默认注册表，首次调用时创建。
var Default = sync.OnceValue(func() *Registry { return New() })
