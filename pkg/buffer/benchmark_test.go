package buffer

import (
	"fmt"
	"testing"
)

// BenchmarkBufferWrite benchmarks Write across capacities and overflow policies.
func BenchmarkBufferWrite(b *testing.B) {
	configs := []struct {
		name     string
		capacity int
		policy   OverflowPolicy
	}{
		{"Cap100_DropOldest", 100, DropOldest},
		{"Cap100_DropNewest", 100, DropNewest},
		{"Cap1000_DropOldest", 1000, DropOldest},
	}

	for _, cfg := range configs {
		b.Run(cfg.name, func(b *testing.B) {
			buf, err := NewCircularBuffer[int](cfg.capacity, WithOverflowPolicy[int](cfg.policy))
			if err != nil {
				b.Fatal(err)
			}
			defer buf.Close()

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					buf.Write(i)
					i++
				}
			})
		})
	}
}

// BenchmarkBufferRead benchmarks Read from a pre-populated buffer.
func BenchmarkBufferRead(b *testing.B) {
	buf, err := NewCircularBuffer[int](10000)
	if err != nil {
		b.Fatal(err)
	}
	defer buf.Close()

	for i := 0; i < 10000; i++ {
		_ = buf.Write(i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf.Read()
		}
	})
}

// BenchmarkBufferReadBatch benchmarks batch read operations.
func BenchmarkBufferReadBatch(b *testing.B) {
	batchSizes := []int{1, 10, 100}

	for _, batchSize := range batchSizes {
		b.Run(fmt.Sprintf("BatchSize_%d", batchSize), func(b *testing.B) {
			buf, err := NewCircularBuffer[int](1000)
			if err != nil {
				b.Fatal(err)
			}
			defer buf.Close()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for j := 0; j < 1000; j++ {
					buf.Write(j)
				}
				for !buf.IsEmpty() {
					buf.ReadBatch(batchSize)
				}
			}
		})
	}
}

// BenchmarkBufferOverflow benchmarks overflow handling under sustained writes.
func BenchmarkBufferOverflow(b *testing.B) {
	policies := []struct {
		name   string
		policy OverflowPolicy
	}{
		{"DropOldest", DropOldest},
		{"DropNewest", DropNewest},
	}

	for _, pol := range policies {
		b.Run(pol.name, func(b *testing.B) {
			buf, err := NewCircularBuffer[int](100, WithOverflowPolicy[int](pol.policy))
			if err != nil {
				b.Fatal(err)
			}
			defer buf.Close()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buf.Write(i)
			}
		})
	}
}
