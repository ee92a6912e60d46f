// Package dispatch 提供信号分发器，连接 Receiver 与订阅处理函数。
//
// Dispatcher 是入站信号的调度中心：
//  1. 从 Receiver 拉取信封记录
//  2. 经注册表再水化为强类型事件
//  3. 按匹配规则投递给订阅（可经 goroutine 池并行）
//
// 再水化失败与处理器错误只记录日志并丢弃该信号，分发循环从不因
// 单条信号中止。出站方向由 Emit 从强类型事件构造信号并写入发送端口。
package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/message"
	"github.com/uniyakcom/dbus/resolve"
	"github.com/uniyakcom/dbus/util"
)

// Handler 事件处理函数
type Handler func(ev core.Event) error

// Middleware 中间件函数签名
//
// 中间件包装 Handler，在事件处理前后添加逻辑（日志、恢复、追踪等）。
// 类似 HTTP 中间件模式。
//
//	func myMiddleware(next dispatch.Handler) dispatch.Handler {
//	    return func(ev core.Event) error {
//	        // 前置逻辑
//	        err := next(ev)
//	        // 后置逻辑
//	        return err
//	    }
//	}
type Middleware func(next Handler) Handler

// Token 订阅凭据，用于退订
type Token string

type subscription struct {
	token Token
	rule  Rule
	fn    Handler
}

// Config 分发器配置
type Config struct {
	// Logger 自定义日志。为 nil 时使用 slog.Default()。
	Logger *slog.Logger

	// Workers 投递并发数。
	// n > 0 时经 goroutine 池并行投递，事件间无序；
	// n <= 0 时在分发循环内顺序投递（默认），保证订阅内有序。
	Workers int

	// Sender 出站发送端口，Emit 使用。为 nil 时 Emit 报错。
	Sender message.Sender
}

// Dispatcher 信号分发器
type Dispatcher struct {
	conn     core.Conn
	registry *resolve.Registry
	sender   message.Sender
	logger   *slog.Logger
	pool     *ants.Pool

	mu          sync.Mutex
	middlewares []Middleware
	subs        map[Token]*subscription
	snapshot    atomic.Pointer[[]*subscription]
	isRunning   bool

	running     chan struct{}
	runningOnce sync.Once
	closed      chan struct{}
	closedOnce  sync.Once

	received  *util.Counter
	delivered *util.Counter
	dropped   *util.Counter
	failed    *util.Counter
}

// New 创建分发器。registry 为 nil 时使用 resolve.Default()。
func New(conn core.Conn, registry *resolve.Registry, cfg ...Config) (*Dispatcher, error) {
	var c Config
	if len(cfg) > 0 {
		c = cfg[0]
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = resolve.Default()
	}

	d := &Dispatcher{
		conn:      conn,
		registry:  registry,
		sender:    c.Sender,
		logger:    logger,
		subs:      make(map[Token]*subscription),
		running:   make(chan struct{}),
		closed:    make(chan struct{}),
		received:  util.NewCounter(),
		delivered: util.NewCounter(),
		dropped:   util.NewCounter(),
		failed:    util.NewCounter(),
	}
	if c.Workers > 0 {
		pool, err := ants.NewPool(c.Workers)
		if err != nil {
			return nil, err
		}
		d.pool = pool
	}
	return d, nil
}

// AddMiddleware 添加全局中间件，对之后建立的订阅生效。
func (d *Dispatcher) AddMiddleware(m ...Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, m...)
}

// Subscribe 登记订阅：规则命中的事件经中间件链投递给处理函数。
//
// 返回的凭据用于退订。订阅专属中间件在最内层，全局中间件在订阅
// 时刻拼链，之后添加的全局中间件不影响已有订阅。
func (d *Dispatcher) Subscribe(rule Rule, fn Handler, mw ...Middleware) Token {
	for i := len(mw) - 1; i >= 0; i-- {
		fn = mw[i](fn)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		fn = d.middlewares[i](fn)
	}
	tok := Token(uuid.NewString())
	d.subs[tok] = &subscription{token: tok, rule: rule, fn: fn}
	d.rebuild()
	return tok
}

// Unsubscribe 退订。未知凭据为 no-op。
func (d *Dispatcher) Unsubscribe(tok Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, tok)
	d.rebuild()
}

// rebuild 重建订阅快照（写时复制，投递热路径无锁读）。调用方须持 mu。
func (d *Dispatcher) rebuild() {
	snap := make([]*subscription, 0, len(d.subs))
	for _, s := range d.subs {
		snap = append(snap, s)
	}
	d.snapshot.Store(&snap)
}

// Running 返回一个 channel，在分发器开始运行后关闭。用于等待启动完成。
func (d *Dispatcher) Running() <-chan struct{} {
	return d.running
}

// Closed 返回一个 channel，在分发器关闭后关闭。
func (d *Dispatcher) Closed() <-chan struct{} {
	return d.closed
}

// IsRunning 返回分发器是否正在运行。
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isRunning
}
