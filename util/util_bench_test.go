package util

import (
	"testing"
)

// BenchmarkCounterAdd 测量 Counter.Add 的性能
func BenchmarkCounterAdd(b *testing.B) {
	c := NewCounter()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Add(1)
	}
}

// BenchmarkCounterRead 测量 Counter.Read 的性能
func BenchmarkCounterRead(b *testing.B) {
	c := NewCounter()
	// 预热
	for i := 0; i < 1000; i++ {
		c.Add(1)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Read()
	}
}

// BenchmarkCounterParallel 并发测试 Add
func BenchmarkCounterParallel(b *testing.B) {
	c := NewCounter()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Add(1)
		}
	})
}
