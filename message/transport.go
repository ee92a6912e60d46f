package message

import "context"

// Sender 出站信号发送端口
//
// 所有传输适配器（环回、socket 等）必须实现此接口。
type Sender interface {
	// Send 发送一条信号。实现应在写出前调用 sig.Finalize，
	// 终结幂等，已终结的信封原样写出。
	Send(ctx context.Context, sig *Signal) error

	// Close 关闭发送端，释放资源。
	Close() error
}

// Receiver 入站信号接收端口
type Receiver interface {
	// Receive 返回入站信号通道。
	// 通道关闭表示接收结束（Close 被调用或 context 取消）。
	Receive(ctx context.Context) (<-chan *Signal, error)

	// Close 关闭接收端，停止投递，释放资源。
	Close() error
}
