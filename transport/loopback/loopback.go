// Package loopback 提供进程内环回总线传输。
//
// Bus 将多个 Conn 配成一条共享总线：任一连接发送的信号先完整走一遍
// 线格式编码，再解码为入站信封后广播给除发送者外的所有连接。
// 信号即使从未离开进程也经过与跨进程传输相同的字节路径，
// 因此环回总线同时是默认传输层与线格式的持续校验器。
//
//   - Conn 实现 core.Conn、message.Sender 与 message.Receiver
//   - 连接名按接入顺序分配（:1.1、:1.2 ...）
//   - 对象在总线范围内导出，任意连接都能按路径解析
//
// 用法：
//
//	bus := loopback.NewBus()
//	defer bus.Close()
//
//	emitter, _ := bus.Connect()
//	listener, _ := bus.Connect()
//
//	ch, _ := listener.Receive(ctx)
//	sig, _ := message.NewSignal(emitter, emitter.Name(),
//		"/com/example/Door", "com.example.Door", "Opened", "s", "alice")
//	emitter.Send(ctx, sig)
//	rec := <-ch
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/message"
)

// defaultBuffer 每连接入站通道的默认容量
const defaultBuffer = 256

var (
	// ErrBusClosed 总线已关闭
	ErrBusClosed = errors.New("loopback: bus closed")
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("loopback: connection closed")
)

// Config 环回总线配置
type Config struct {
	// Logger 结构化日志器，nil 时使用 slog.Default()
	Logger *slog.Logger
	// Buffer 每连接入站通道容量，<=0 时使用 defaultBuffer
	Buffer int
}

// Bus 进程内信号总线
//
// 持有全部活跃连接与总线级对象注册表。并发安全。
type Bus struct {
	logger *slog.Logger
	buffer int

	next    atomic.Uint64 // 连接名计数器
	objects sync.Map      // core.ObjectPath -> core.BusObject

	mu    sync.Mutex
	conns []*Conn

	closed chan struct{}
	once   sync.Once
}

// NewBus 创建环回总线。
func NewBus(cfg ...Config) *Bus {
	var c Config
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Buffer <= 0 {
		c.Buffer = defaultBuffer
	}
	return &Bus{
		logger: c.Logger,
		buffer: c.Buffer,
		closed: make(chan struct{}),
	}
}

// Connect 接入总线，返回新连接。
// 连接名按接入顺序分配，形如 ":1.7"。
func (b *Bus) Connect() (*Conn, error) {
	select {
	case <-b.closed:
		return nil, ErrBusClosed
	default:
	}

	c := &Conn{
		bus:   b,
		name:  fmt.Sprintf(":1.%d", b.next.Add(1)),
		inbox: make(chan *message.Signal, b.buffer),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.conns = append(b.conns, c)
	b.mu.Unlock()

	b.logger.Debug("loopback connected", "name", c.name)
	return c, nil
}

// Close 关闭总线及其全部连接。幂等。
func (b *Bus) Close() error {
	b.once.Do(func() {
		close(b.closed)
		b.mu.Lock()
		conns := b.conns
		b.conns = nil
		b.mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
		b.logger.Debug("loopback bus closed")
	})
	return nil
}

// targets 返回当前连接快照。
func (b *Bus) targets() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Conn, len(b.conns))
	copy(out, b.conns)
	return out
}

// remove 将连接从广播名单移除。
func (b *Bus) remove(c *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cc := range b.conns {
		if cc == c {
			b.conns = append(b.conns[:i], b.conns[i+1:]...)
			return
		}
	}
}

// Conn 总线上的一条连接
//
// 同时充当序列号来源（core.Conn）、发送端口（message.Sender）
// 与接收端口（message.Receiver）。
type Conn struct {
	bus    *Bus
	name   string
	serial atomic.Uint32

	inbox chan *message.Signal
	done  chan struct{}
	once  sync.Once
}

// Name 返回总线分配的连接名。
func (c *Conn) Name() string { return c.name }

// NextSerial 返回下一个出站序列号，每连接从 1 起严格递增。
func (c *Conn) NextSerial() uint32 { return c.serial.Add(1) }

// Object 按路径解析总线上导出的对象，未知路径返回 nil。
func (c *Conn) Object(path core.ObjectPath) core.BusObject {
	if obj, ok := c.bus.objects.Load(path); ok {
		return obj.(core.BusObject)
	}
	return nil
}

// Export 将对象按其自报路径导出到总线。
// 同路径重复导出时后写覆盖。任意连接均可解析导出的对象。
func (c *Conn) Export(obj core.BusObject) error {
	path := obj.ObjectPath()
	if !path.IsValid() {
		return &core.InvalidPathError{Path: string(path)}
	}
	c.bus.objects.Store(path, obj)
	return nil
}

// Send 终结信号并广播给总线上除本连接外的全部连接。
//
// 信封先编码为线格式字节，再经一次解码还原为入站信封；
// 所有接收方共享同一条只读记录。接收方入站通道满时
// Send 阻塞，直至投递成功或 ctx 取消。
func (c *Conn) Send(ctx context.Context, sig *message.Signal) error {
	select {
	case <-c.done:
		return ErrConnClosed
	case <-c.bus.closed:
		return ErrBusClosed
	default:
	}

	if err := sig.Finalize(c); err != nil {
		return err
	}
	rec, err := message.DecodeSignal(sig.Wire())
	if err != nil {
		return err
	}

	for _, t := range c.bus.targets() {
		if t == c {
			continue
		}
		select {
		case t.inbox <- rec:
		case <-t.done:
			// 对端已关闭，跳过
		case <-c.bus.closed:
			return ErrBusClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.bus.logger.Debug("signal broadcast",
		"sender", c.name, "serial", rec.Serial(),
		"interface", rec.Interface(), "member", rec.Member())
	return nil
}

// Receive 返回入站信封通道。
//
// 通道在 ctx 取消或连接关闭时关闭。同一连接可多次调用，
// 每次返回独立通道，入站信封只会进入其中一个。
func (c *Conn) Receive(ctx context.Context) (<-chan *message.Signal, error) {
	select {
	case <-c.done:
		return nil, ErrConnClosed
	default:
	}

	out := make(chan *message.Signal, c.bus.buffer)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case rec := <-c.inbox:
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				case <-c.done:
					return
				}
			}
		}
	}()
	return out, nil
}

// Close 关闭连接并退出广播名单。幂等。
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.bus.remove(c)
	})
	return nil
}
