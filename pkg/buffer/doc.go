// Package buffer provides thread-safe circular buffers with configurable overflow policies,
// built-in statistics tracking, and optional Prometheus metrics integration.
//
// # Overview
//
// The buffer package implements circular buffers for managing data flow between
// producers and consumers in concurrent pipelines. Buffers are generic, thread-safe,
// and observable through always-on statistics plus optional metrics.
//
// # Quick Start
//
// Basic buffer creation:
//
//	buf, err := buffer.NewCircularBuffer[int](1000)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	err = buf.Write(42)
//	value, ok := buf.Read()
//
// With overflow policy and metrics:
//
//	buf, err := buffer.NewCircularBuffer[[]byte](5000,
//		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
//		buffer.WithMetrics[[]byte](registry, "device_inbound"),
//	)
//
// # Overflow Policies
//
// The buffer supports three overflow behaviors when capacity is reached:
//
//   - DropOldest: Remove oldest item to make room (default)
//   - DropNewest: Reject new items when full
//   - Block: Write operations wait for available space
//
// Example with blocking policy:
//
//	buf, _ := buffer.NewCircularBuffer[*Chunk](100,
//		buffer.WithOverflowPolicy[*Chunk](buffer.Block),
//	)
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	err := buf.WriteWithContext(ctx, chunk)
//
// # Observability
//
// Two independent layers:
//
// Statistics (always on):
//   - Atomic counters for every operation, no configuration needed
//   - Available via buf.Stats(): throughput, drop rate, utilization
//   - No external dependencies; works in tests and minimal deployments
//
// Prometheus metrics (optional):
//   - Enabled via WithMetrics()
//   - Counters and gauges with a component label per buffer instance
//
// Both layers track independently so Statistics keeps working when metrics are
// disabled, and derived values (rates, throughput) stay cheap atomic reads.
// The dual-tracking overhead is a few nanoseconds per operation.
//
// # Thread Safety
//
// All buffer operations are safe for concurrent use:
//   - Multiple producers can write concurrently
//   - Multiple consumers can read concurrently
//   - Statistics use atomic operations
//   - Internal state protected by sync.RWMutex
//   - Block policy uses sync.Cond for waiting
//
// # Common Use Cases
//
// Device stream buffering (sensor chunks arriving faster than inference drains them):
//
//	chunkBuf, _ := buffer.NewCircularBuffer[[]byte](10000,
//		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
//		buffer.WithMetrics[[]byte](registry, "ws_inbound"),
//	)
//
// Rate-limited processing with drop accounting:
//
//	taskBuf, _ := buffer.NewCircularBuffer[*Task](500,
//		buffer.WithOverflowPolicy[*Task](buffer.DropNewest),
//		buffer.WithDropCallback[*Task](func(t *Task) {
//			log.Printf("dropped task %s", t.ID)
//		}),
//	)
package buffer
