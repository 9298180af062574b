// Package kvstore provides the shared key-value layer behind rate
// limiting, result caching and device presence.
//
// Three backends implement the same Store contract:
//
//   - RedisStore: production default. Counters use INCR with a window
//     TTL stamped on first hit; documents are JSON strings with
//     server-side expiry.
//   - NATSStore: for deployments that already run NATS and want to
//     avoid a second stateful service. Expiry travels inside each
//     record because JetStream KV has no per-key TTL; counters
//     increment through CAS with retry.
//   - MemoryStore: single-replica and test use. A janitor goroutine
//     sweeps expired entries; reads double-check expiry so a stale
//     entry is never served between sweeps.
//
// Callers treat the store as best-effort infrastructure: the rate
// limiter fails open when the store errors, and cache misses fall
// through to recomputation. Nothing here is a system of record.
package kvstore
