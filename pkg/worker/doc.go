// Package worker provides a generic, thread-safe worker pool for concurrent task processing.
//
// # Overview
//
// The worker package implements a bounded worker pool with:
//   - Generic type support (Go 1.18+) for type-safe work processing
//   - Bounded queues with backpressure (non-blocking submit)
//   - Context-aware cancellation and graceful shutdown
//   - Dual-tracking observability (always-on statistics + optional Prometheus metrics)
//   - Panic containment (a panicking processor counts as a failure, never kills a worker)
//
// # Core Concepts
//
// The pool manages a fixed number of goroutines (workers) that process work items
// from a bounded channel (queue). Using Go generics, the pool can process any work
// type T without type assertions:
//
//	type InferenceTask struct {
//	    SessionID string
//	    Payload   []byte
//	}
//
//	pool := worker.NewPool[InferenceTask](
//	    10,    // workers
//	    1000,  // queue size
//	    func(ctx context.Context, task InferenceTask) error {
//	        // Run inference on the chunk
//	        return nil
//	    },
//	)
//
// Statistics are ALWAYS tracked using atomic operations; Prometheus metrics are
// opt-in via WithMetricsRegistry. Internal observability stays available even
// when no metrics registry is wired.
//
// # Submit Semantics
//
// Submit() uses a non-blocking send rather than blocking on a full queue. Callers
// never wait for queue space; ErrQueueFull is the overload signal and the natural
// load-shedding point for pipelines that prefer dropping work over building
// unbounded backlogs.
//
// # Shutdown
//
// Stop(timeout) closes the work channel, lets workers drain the remaining queue,
// and waits up to timeout for them to finish. ErrStopTimeout means workers were
// still busy when the grace period expired. Stop is idempotent. There is no
// per-item timeout; enforce one inside the processor with the context if needed.
//
// # Usage
//
//	pool := worker.NewPool[Job](5, 100, processJob)
//
//	ctx := context.Background()
//	if err := pool.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Stop(5 * time.Second)
//
//	if err := pool.Submit(job); err != nil {
//	    if errors.Is(err, worker.ErrQueueFull) {
//	        // Shed load: drop or reject upstream.
//	    }
//	}
//
// With Prometheus metrics:
//
//	import "github.com/YuvDwi/Cradle/metric"
//
//	registry := metric.NewRegistry()
//
//	pool := worker.NewPool[Job](
//	    10, 1000, processJob,
//	    worker.WithMetricsRegistry[Job](registry, "inference_pool"),
//	)
//
//	// Metrics exposed:
//	// - inference_pool_queue_depth (current queue depth)
//	// - inference_pool_utilization (queue depth / queue size)
//	// - inference_pool_submitted_total (total submitted)
//	// - inference_pool_processed_total (total processed)
//	// - inference_pool_failed_total (total failed, including panics)
//	// - inference_pool_dropped_total (total dropped when queue full)
//	// - inference_pool_processing_duration_seconds (histogram by status)
//
// # Thread Safety
//
// All public methods are safe for concurrent use:
//
//   - Submit(): Lock-free using channel semantics
//   - Start()/Stop(): Protected by lifecycleMu mutex
//   - Stats(): Atomic loads, no locks required
//
// Lifecycle guarantees:
//   - Start() can only be called once
//   - Submit() fails if not started or already stopped
//   - Stop() is idempotent (safe to call multiple times)
//   - Workers complete in-flight work before exiting
//
// # Error Handling
//
// The pool uses plain sentinel errors rather than classified errors because pool
// errors are always programming errors or resource exhaustion:
//
//   - ErrPoolNotStarted: Submit before Start
//   - ErrPoolAlreadyStarted: Start called twice
//   - ErrPoolStopped: Expected after Stop()
//   - ErrQueueFull: Backpressure signal
//   - ErrNilProcessor: Validation failure
//   - ErrStopTimeout: Workers stuck past the grace period
//
// Processor functions may return classified errors; the pool records them in the
// failed counter but does not interpret them.
//
// # Known Limitations
//
//  1. No per-work-item timeout: enforce in the processor function
//  2. No priority queues: all work is FIFO
//  3. No cancellation of individual queued items
//  4. Queue depth metrics have 1-second granularity (ticker-based)
//  5. Worker count is fixed at construction
//
// # See Also
//
//   - buffer package: For buffering with overflow policies
//   - retry package: For retry logic with exponential backoff
//   - metric package: For Prometheus metrics integration
package worker
