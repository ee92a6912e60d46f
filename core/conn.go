package core

// Conn 本库消费的最小连接上下文。
//
// 真实的 socket 连接、鉴权与多路复用不在本库范围内；
// transport/loopback 提供进程内实现，测试可用任意桩实现。
type Conn interface {
	// NextSerial 返回下一个出站消息序列号。
	// 每连接严格递增，每个出站信号恰好消费一次。
	NextSerial() uint32

	// Object 将对象路径解析为本地对象引用，未知路径返回 nil。
	// 反序列化对象引用型构造参数时使用。
	Object(path ObjectPath) BusObject
}
