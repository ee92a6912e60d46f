package dbus

import (
	"context"
	"testing"

	"github.com/uniyakcom/dbus/dispatch"
)

// BenchmarkSignalBuild 基准测试信封构造（头字段 + 单 string 体）
func BenchmarkSignalBuild(b *testing.B) {
	bus := quietBus()
	defer bus.Close()
	conn, err := bus.Connect()
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, err := NewSignal(conn, "", "/org/test/obj", "org.test.Iface", "Changed", "s", "hello")
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSignalDecode 基准测试信封解码
func BenchmarkSignalDecode(b *testing.B) {
	bus := quietBus()
	defer bus.Close()
	conn, _ := bus.Connect()

	sig, err := NewSignal(conn, ":1.9", "/org/test/obj", "org.test.Iface", "Changed", "s", "hello")
	if err != nil {
		b.Fatal(err)
	}
	wire := sig.Wire()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeSignal(wire); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkResolveCached 基准测试解析热路径（缓存命中）
func BenchmarkResolveCached(b *testing.B) {
	type moved struct {
		SignalBase
		To string
	}
	reg := quietRegistry()
	reg.MustRegister("org.bench.Piece$Moved",
		func(_ ObjectPath, to string) *moved { return &moved{To: to} })

	if _, err := reg.Resolve("org.bench.Piece", "Moved"); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := reg.Resolve("org.bench.Piece", "Moved"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRehydrate 基准测试入站再水化（解析 + 候选匹配 + 构造）
func BenchmarkRehydrate(b *testing.B) {
	bus := quietBus()
	defer bus.Close()
	conn, _ := bus.Connect()

	type moved struct {
		SignalBase
		To string
	}
	reg := quietRegistry()
	reg.MustRegister("org.bench.Pawn$Moved",
		func(_ ObjectPath, to string) *moved { return &moved{To: to} })

	sig, err := NewSignal(conn, "", "/org/bench/pawn", "org.bench.Pawn", "Moved", "s", "e4")
	if err != nil {
		b.Fatal(err)
	}
	rec, err := DecodeSignal(sig.Wire())
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ev, err := reg.Rehydrate(rec, conn)
		if err != nil {
			b.Fatal(err)
		}
		if ev == nil {
			b.Fatal("unexpected no-match")
		}
	}
}

// BenchmarkLoopbackDispatch 基准测试环回总线端到端分发
func BenchmarkLoopbackDispatch(b *testing.B) {
	bus := quietBus()
	defer bus.Close()

	emitter, _ := bus.Connect()
	listener, _ := bus.Connect()

	type ticked struct {
		SignalBase
	}
	reg := quietRegistry()
	reg.MustRegister("org.bench.Clock$Ticked",
		func(_ ObjectPath) *ticked { return &ticked{} })

	d, err := NewDispatcher(listener, reg, dispatch.Config{Logger: quietLogger()})
	if err != nil {
		b.Fatal(err)
	}

	delivered := make(chan struct{}, 256)
	d.Subscribe(Rule{Interface: "org.bench.Clock"}, func(ev Event) error {
		delivered <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = d.Run(ctx, listener)
	}()
	<-d.Running()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		sig, err := NewSignal(emitter, "", "/org/bench/clock", "org.bench.Clock", "Ticked", "")
		if err != nil {
			b.Fatal(err)
		}
		if err := emitter.Send(ctx, sig); err != nil {
			b.Fatal(err)
		}
		<-delivered
	}
	throughput := float64(b.N) / b.Elapsed().Seconds()
	b.ReportMetric(throughput/1e6, "M/s")
}
