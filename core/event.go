package core

// Event 强类型信号事件的统一契约。
//
// 具体事件类型通过嵌入 SignalBase 获得实现（base 方法不可在包外实现，
// 保证所有事件类型都携带可绑定的记录状态）：
//
//	type NameAcquired struct {
//	    core.SignalBase
//	    Name string
//	}
type Event interface {
	// Path 发出该信号的对象路径（再水化时从记录绑定）
	Path() ObjectPath

	// Headers 原始记录的头字段副本（再水化时绑定，出站实例为 nil）
	Headers() Headers

	// Wire 原始信封字节（诊断用）
	Wire() []byte

	base() *SignalBase
}

// SignalBase 事件类型的嵌入基座：承载再水化时从入站信号记录
// 复制的头字段与原始线字节。字段不导出，仅经由 Bind 写入一次。
type SignalBase struct {
	path    ObjectPath
	headers Headers
	wire    []byte
	wireLen int
}

// Path 发出该信号的对象路径。
func (b *SignalBase) Path() ObjectPath { return b.path }

// Headers 绑定的头字段表。
func (b *SignalBase) Headers() Headers { return b.headers }

// Wire 原始信封字节。
func (b *SignalBase) Wire() []byte { return b.wire }

// WireLen 原始信封字节长度。
func (b *SignalBase) WireLen() int { return b.wireLen }

func (b *SignalBase) base() *SignalBase { return b }

// Bind 将记录状态（路径、头字段副本、线字节）绑定到再水化出的事件实例。
// 由再水化器调用一次；headers 应传入记录头字段的副本。
func Bind(ev Event, path ObjectPath, headers Headers, wire []byte) {
	b := ev.base()
	b.path = path
	b.headers = headers
	b.wire = wire
	b.wireLen = len(wire)
}
