// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff, designed to
// handle transient failures in network operations, resource initialization, and
// component startup.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (component startup)
//   - Persistent(): 30 attempts, 200ms-10s delay (critical resources)
//
// # Usage Examples
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return notifier.Push(ctx, alert)
//	})
//
// Retry with result (KV compare-and-swap loops):
//
//	count, err := retry.DoWithResult(ctx, retry.Quick(), func() (int64, error) {
//	    return store.IncrWithTTL(ctx, key, window)
//	})
//
// Mark an error non-retryable to fail fast:
//
//	return retry.NonRetryable(err)
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breakers (the bus client carries its own)
//   - No metrics collection (instrument at the call site)
//   - No error classification (caller decides what to retry)
//   - Just exponential backoff with jitter
//
// # Context Cancellation
//
// All retry operations respect context cancellation and stop retrying when the
// context is cancelled, either during operation execution or during backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use. The jitter mechanism uses a
// thread-safe random source to avoid contention.
package retry
