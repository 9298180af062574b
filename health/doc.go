// Package health provides thread-safe component health tracking and
// aggregation for the Cradle pipeline.
//
// Each component (NATS connection, key-value store, session store, inference
// coordinator) reports a Status; a Monitor collects them and rolls them up
// into a single system-wide view suitable for a health endpoint or a
// readiness probe.
//
// # Health States
//
// The package models three states rather than a binary up/down:
//
//   - healthy: component operating normally
//   - degraded: component operating with reduced functionality
//   - unhealthy: component not functioning
//
// A degraded cache lets the pipeline keep serving while operators scale it;
// an unhealthy session store warrants paging someone.
//
// # Basic Usage
//
// Tracking and aggregating component health:
//
//	monitor := health.NewMonitor()
//
//	monitor.UpdateHealthy("sessions", "Session store responding")
//	monitor.UpdateDegraded("cache", "Redis latency above threshold")
//	monitor.Update("kvstore", health.FromError("kvstore", kv.Ping(ctx)))
//
//	system := monitor.AggregateHealth("cradled")
//	if system.IsUnhealthy() {
//	    log.Printf("system unhealthy: %s", system.Message)
//	}
//
// Aggregation is conservative: any unhealthy component marks the system
// unhealthy, any degraded component (with none unhealthy) marks it degraded,
// and only an all-healthy set reports healthy. Sub-statuses attached via
// WithSubStatus participate in the same rules recursively.
//
// # Probes and Sanitization
//
// FromError adapts the usual probe shape (a Ping returning error) into a
// Status. Error messages are sanitized before they can reach a dashboard or
// log aggregator:
//
//   - URLs (http://, nats://, ws://, postgres://, redis://) become [URL]
//   - file paths become [PATH]
//   - IP addresses become [IP], bare ports become :[PORT]
//   - password=, token=, key=, secret= values become [REDACTED]
//
// Sanitization is unconditional. Over-redacting an error string during
// debugging is cheaper than leaking a broker credential to a status page.
//
// # Thread Safety
//
// Monitor is safe for concurrent use; reads proceed in parallel and writes
// are serialized. Status is a value type, and WithMetrics and WithSubStatus
// return copies, so a Status handed to another goroutine never mutates
// underneath it.
package health
