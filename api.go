// Package dbus 统一API入口
package dbus

import (
	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/dispatch"
	"github.com/uniyakcom/dbus/message"
	"github.com/uniyakcom/dbus/resolve"
	"github.com/uniyakcom/dbus/transport/loopback"
)

// ObjectPath 导出对象路径类型
type ObjectPath = core.ObjectPath

// Signature 导出类型签名
type Signature = core.Signature

// Variant 导出变体容器
type Variant = core.Variant

// Headers 导出头字段表
type Headers = core.Headers

// Event 导出事件契约
type Event = core.Event

// SignalBase 导出事件嵌入基座
type SignalBase = core.SignalBase

// BusObject 导出总线对象契约
type BusObject = core.BusObject

// Conn 导出连接上下文契约
type Conn = core.Conn

// Signal 导出信号信封
type Signal = message.Signal

// Sender 导出发送端口
type Sender = message.Sender

// Receiver 导出接收端口
type Receiver = message.Receiver

// Registry 导出类型注册表
type Registry = resolve.Registry

// Dispatcher 导出信号分发器
type Dispatcher = dispatch.Dispatcher

// Rule 导出订阅匹配规则
type Rule = dispatch.Rule

// Handler 导出事件处理函数
type Handler = dispatch.Handler

// Middleware 导出中间件签名
type Middleware = dispatch.Middleware

// ═══════════════════════════════════════════════════════════════════
// 构造入口
// ═══════════════════════════════════════════════════════════════════

// NewBus 创建进程内环回总线（默认传输层）。
//
// 用法:
//
//	bus := dbus.NewBus()
//	defer bus.Close()
//
//	conn, _ := bus.Connect()
func NewBus(cfg ...loopback.Config) *loopback.Bus {
	return loopback.NewBus(cfg...)
}

// NewRegistry 创建独立类型注册表。
// 多数程序直接使用包级 API（Default 注册表）即可。
func NewRegistry(cfg ...resolve.Config) *resolve.Registry {
	return resolve.New(cfg...)
}

// NewDispatcher 创建信号分发器。registry 为 nil 时使用 Default 注册表。
func NewDispatcher(conn Conn, registry *Registry, cfg ...dispatch.Config) (*Dispatcher, error) {
	return dispatch.New(conn, registry, cfg...)
}

// NewSignal 构造通用出站信号（立即终结，不经类型注册表）。
func NewSignal(conn Conn, source string, path ObjectPath, iface, member string, sig Signature, args ...any) (*Signal, error) {
	return message.NewSignal(conn, source, path, iface, member, sig, args...)
}

// DecodeSignal 解析入站信号信封。
func DecodeSignal(data []byte) (*Signal, error) {
	return message.DecodeSignal(data)
}

// ═══════════════════════════════════════════════════════════════════
// 包级便捷 API（Default 注册表）
// ═══════════════════════════════════════════════════════════════════

// Default 返回包级默认注册表。
// 适用于需要将注册表作为参数传递但又想使用全局默认实例的场景。
func Default() *Registry {
	return resolve.Default()
}

// Register 在默认注册表登记事件类型。
//
// 用法:
//
//	type NameAcquired struct {
//	    dbus.SignalBase
//	    Name string
//	}
//
//	dbus.Register("org.freedesktop.DBus$NameAcquired",
//	    func(path dbus.ObjectPath, name string) *NameAcquired {
//	        return &NameAcquired{Name: name}
//	    })
func Register(name string, ctors ...any) error {
	return resolve.Default().Register(name, ctors...)
}

// MustRegister 在默认注册表登记事件类型，失败时 panic。
func MustRegister(name string, ctors ...any) {
	resolve.Default().MustRegister(name, ctors...)
}

// AliasInterface 在默认注册表登记接口名别名。
func AliasInterface(wire, local string) {
	resolve.Default().AliasInterface(wire, local)
}

// AliasMember 在默认注册表登记成员名别名。
func AliasMember(wire, local string) {
	resolve.Default().AliasMember(wire, local)
}

// Resolve 在默认注册表解析接口名与成员名到已登记类型。
func Resolve(iface, member string) (*resolve.Type, error) {
	return resolve.Default().Resolve(iface, member)
}

// Rehydrate 经默认注册表将入站信封再水化为强类型事件。
// 返回 (nil, nil) 表示无构造候选匹配，调用方应丢弃该信号。
func Rehydrate(rec *Signal, conn Conn) (Event, error) {
	return resolve.Default().Rehydrate(rec, conn)
}

// NewSignalFrom 经默认注册表从强类型事件构造出站信号。
func NewSignalFrom(conn Conn, source string, path ObjectPath, ev Event) (*Signal, error) {
	return resolve.Default().NewSignalFrom(conn, source, path, ev)
}
