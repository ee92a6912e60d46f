package loopback_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/message"
	"github.com/uniyakcom/dbus/transport/loopback"
)

func TestSendReceive(t *testing.T) {
	bus := loopback.NewBus()
	defer bus.Close()

	emitter, err := bus.Connect()
	if err != nil {
		t.Fatal(err)
	}
	listener, err := bus.Connect()
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := listener.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}

	sig, err := message.NewSignal(emitter, emitter.Name(),
		"/com/example/Door", "com.example.Door", "Opened", "su", "alice", uint32(3))
	if err != nil {
		t.Fatal(err)
	}
	if err := emitter.Send(ctx, sig); err != nil {
		t.Fatal(err)
	}

	select {
	case rec := <-ch:
		if rec.Path() != "/com/example/Door" {
			t.Errorf("path: got %q, want /com/example/Door", rec.Path())
		}
		if rec.Interface() != "com.example.Door" || rec.Member() != "Opened" {
			t.Errorf("origin: got %s.%s", rec.Interface(), rec.Member())
		}
		if rec.Sender() != emitter.Name() {
			t.Errorf("sender: got %q, want %q", rec.Sender(), emitter.Name())
		}
		if rec.Serial() != 1 {
			t.Errorf("serial: got %d, want 1", rec.Serial())
		}
		args := rec.Args()
		if len(args) != 2 || args[0] != "alice" || args[1] != uint32(3) {
			t.Errorf("args: got %v", args)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	bus := loopback.NewBus()
	defer bus.Close()

	a, _ := bus.Connect()
	b, _ := bus.Connect()
	c, _ := bus.Connect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA, _ := a.Receive(ctx)
	chB, _ := b.Receive(ctx)
	chC, _ := c.Receive(ctx)

	sig, err := message.NewSignal(a, a.Name(), "/p", "com.example.X", "Ping", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Send(ctx, sig); err != nil {
		t.Fatal(err)
	}

	for name, ch := range map[string]<-chan *message.Signal{"b": chB, "c": chC} {
		select {
		case rec := <-ch:
			if rec.Member() != "Ping" {
				t.Errorf("%s: got member %q", name, rec.Member())
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timeout waiting for signal", name)
		}
	}

	select {
	case rec := <-chA:
		t.Errorf("sender received its own signal: %v", rec)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnNames(t *testing.T) {
	bus := loopback.NewBus()
	defer bus.Close()

	first, _ := bus.Connect()
	second, _ := bus.Connect()

	if first.Name() != ":1.1" {
		t.Errorf("first name: got %q, want :1.1", first.Name())
	}
	if second.Name() != ":1.2" {
		t.Errorf("second name: got %q, want :1.2", second.Name())
	}
}

func TestSerialsPerConn(t *testing.T) {
	bus := loopback.NewBus()
	defer bus.Close()

	a, _ := bus.Connect()
	b, _ := bus.Connect()

	for want := uint32(1); want <= 3; want++ {
		if got := a.NextSerial(); got != want {
			t.Fatalf("a serial: got %d, want %d", got, want)
		}
	}
	if got := b.NextSerial(); got != 1 {
		t.Errorf("b serial: got %d, want 1", got)
	}
}

type lamp struct {
	path core.ObjectPath
	lit  bool
}

func (l *lamp) ObjectPath() core.ObjectPath { return l.path }

func TestExportResolve(t *testing.T) {
	bus := loopback.NewBus()
	defer bus.Close()

	a, _ := bus.Connect()
	b, _ := bus.Connect()

	porch := &lamp{path: "/com/example/Lamp/porch", lit: true}
	if err := a.Export(porch); err != nil {
		t.Fatal(err)
	}

	// 导出是总线范围的：任意连接都能解析
	got := b.Object("/com/example/Lamp/porch")
	if got != porch {
		t.Errorf("resolved object: got %v, want %v", got, porch)
	}
	if b.Object("/com/example/Lamp/attic") != nil {
		t.Error("unknown path should resolve to nil")
	}

	var bare lamp
	bare.path = "no/leading/slash"
	var invalid *core.InvalidPathError
	if err := a.Export(&bare); !errors.As(err, &invalid) {
		t.Errorf("invalid path export: got %v", err)
	}
}

func TestConnClose(t *testing.T) {
	bus := loopback.NewBus()
	defer bus.Close()

	a, _ := bus.Connect()
	b, _ := bus.Connect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal("second close should be a no-op, got", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel, got signal")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if _, err := b.Receive(ctx); !errors.Is(err, loopback.ErrConnClosed) {
		t.Errorf("receive after close: got %v, want ErrConnClosed", err)
	}

	sig, err := message.NewSignal(a, "", "/p", "com.example.X", "Ping", "")
	if err != nil {
		t.Fatal(err)
	}
	// 已关闭的连接不再出现在广播名单中
	if err := a.Send(ctx, sig); err != nil {
		t.Errorf("send to shrunken bus: got %v", err)
	}

	sig2, _ := message.NewSignal(a, "", "/p", "com.example.X", "Ping", "")
	if err := b.Send(ctx, sig2); !errors.Is(err, loopback.ErrConnClosed) {
		t.Errorf("send on closed conn: got %v, want ErrConnClosed", err)
	}
}

func TestBusClose(t *testing.T) {
	bus := loopback.NewBus()

	a, err := bus.Connect()
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	ch, err := a.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := bus.Connect(); !errors.Is(err, loopback.ErrBusClosed) {
		t.Errorf("connect after close: got %v, want ErrBusClosed", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after bus close")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestContextCancel(t *testing.T) {
	bus := loopback.NewBus()
	defer bus.Close()

	a, _ := bus.Connect()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := a.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestSendFinalizesDeferredBody(t *testing.T) {
	bus := loopback.NewBus()
	defer bus.Close()

	emitter, _ := bus.Connect()
	listener, _ := bus.Connect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := listener.Receive(ctx)

	declared := []reflect.Type{reflect.TypeOf(""), reflect.TypeOf(uint32(0))}
	sig, err := message.NewTypedSignal(emitter, "", "/p", "com.example.X", "Moved", declared, []any{"west", uint32(9)})
	if err != nil {
		t.Fatal(err)
	}
	if sig.Finalized() {
		t.Fatal("body should be deferred until send")
	}

	if err := emitter.Send(ctx, sig); err != nil {
		t.Fatal(err)
	}
	if !sig.Finalized() {
		t.Error("send should finalize the envelope")
	}

	select {
	case rec := <-ch:
		args := rec.Args()
		if len(args) != 2 || args[0] != "west" || args[1] != uint32(9) {
			t.Errorf("args: got %v", args)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
	}
}
