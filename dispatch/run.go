package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/message"
)

// Run 启动分发循环，阻塞直到 ctx 取消或接收通道关闭。
//
// 流程：建立接收 → 发出 Running 信号 → 信封循环。
// 单条信号的再水化失败或处理器错误只记录日志，循环不中止。
// 循环退出后分发器进入关闭状态，goroutine 池被回收。
func (d *Dispatcher) Run(ctx context.Context, recv message.Receiver) error {
	ch, err := recv.Receive(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.isRunning = true
	d.mu.Unlock()
	d.runningOnce.Do(func() { close(d.running) })
	d.logger.Info("dispatcher started")

	defer func() {
		d.Close()
		d.mu.Lock()
		d.isRunning = false
		d.mu.Unlock()
		d.logger.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-ch:
			if !ok {
				d.logger.Info("receive channel closed")
				return nil
			}
			d.process(rec)
		}
	}
}

// Close 标记分发器关闭并回收 goroutine 池。
// 幂等；通常由 Run 的退出路径调用，未启动的分发器也可直接关闭。
func (d *Dispatcher) Close() {
	d.closedOnce.Do(func() { close(d.closed) })
	if d.pool != nil {
		if err := d.pool.ReleaseTimeout(time.Second); err != nil && !errors.Is(err, ants.ErrPoolClosed) {
			d.logger.Warn("pool release", "error", err)
		}
	}
}

// process 处理单条入站信封：再水化、规则匹配、投递。
func (d *Dispatcher) process(rec *message.Signal) {
	d.received.Add(1)

	ev, err := d.registry.Rehydrate(rec, d.conn)
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("signal rehydration failed",
			"interface", rec.Interface(), "member", rec.Member(),
			"serial", rec.Serial(), "error", err)
		return
	}
	if ev == nil {
		d.dropped.Add(1)
		d.logger.Debug("signal dropped, no constructor matched",
			"interface", rec.Interface(), "member", rec.Member())
		return
	}

	subs := d.snapshot.Load()
	if subs == nil {
		return
	}
	for _, sub := range *subs {
		if !sub.rule.Matches(rec) {
			continue
		}
		d.deliver(sub, ev)
	}
}

// deliver 投递事件到单个订阅，处理器 panic 原地回收。
func (d *Dispatcher) deliver(sub *subscription, ev core.Event) {
	task := func() {
		defer func() {
			if rec := recover(); rec != nil {
				d.failed.Add(1)
				d.logger.Error("handler panic", "recovered", rec, "token", string(sub.token))
			}
		}()
		if err := sub.fn(ev); err != nil {
			d.failed.Add(1)
			d.logger.Error("handler error", "error", err, "token", string(sub.token))
			return
		}
		d.delivered.Add(1)
	}

	if d.pool != nil {
		if err := d.pool.Submit(task); err != nil {
			d.failed.Add(1)
			d.logger.Error("pool submit failed", "error", err)
		}
		return
	}
	task()
}

// Stats 分发统计快照
type Stats struct {
	// Received 收到的信封数
	Received uint64
	// Delivered 成功投递次数（按订阅计）
	Delivered uint64
	// Dropped 无构造候选匹配而丢弃的信封数
	Dropped uint64
	// Failed 再水化失败与处理器失败次数
	Failed uint64
}

// Stats 返回当前统计快照。
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:  uint64(d.received.Read()),
		Delivered: uint64(d.delivered.Read()),
		Dropped:   uint64(d.dropped.Read()),
		Failed:    uint64(d.failed.Read()),
	}
}

// Emit 从强类型事件构造出站信号并写入发送端口。
//
// 事件类型须已在注册表登记；信封的消息体由发送端口终结。
func (d *Dispatcher) Emit(ctx context.Context, path core.ObjectPath, ev core.Event) error {
	if d.sender == nil {
		return errors.New("dispatcher has no sender")
	}
	sig, err := d.registry.NewSignalFrom(d.conn, "", path, ev)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, sig)
}

// EmitSignal 发出预构造的信号信封（通用路径，不经类型注册表）。
func (d *Dispatcher) EmitSignal(ctx context.Context, sig *message.Signal) error {
	if d.sender == nil {
		return errors.New("dispatcher has no sender")
	}
	return d.sender.Send(ctx, sig)
}
