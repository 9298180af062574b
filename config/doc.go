// Package config provides configuration management for the Cradle daemon.
//
// Configuration is assembled from three layers with last-wins semantics:
// built-in defaults, one or more JSON files, and CRADLE_* environment
// variable overrides. The result is validated before the daemon wires any
// component.
//
// # Core Components
//
// Config: the complete daemon configuration. Sections cover the message
// bus (NATS), the counter/TTL store backend (memory, Redis, or JetStream
// KV), durable storage (Postgres), the telemetry sink (ClickHouse), the
// MQTT ingest bridge, the WebSocket server, the metrics endpoint, the
// inference engine, rate limits, cache TTLs, bus topics, and push
// notification delivery.
//
// SafeConfig: thread-safe wrapper using RWMutex and deep cloning to
// prevent concurrent access issues and accidental mutations.
//
// Loader: loads configuration with layer merging (base + overrides) and
// environment variable substitution for flexible deployment scenarios.
//
// # Basic Usage
//
// Loading configuration from files with layer merging:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/production.json") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Durations
//
// Duration fields in JSON files accept Go duration strings and a day
// suffix:
//
//	{
//	  "rate_limit": {"window": "60s"},
//	  "cache": {"result_ttl": "1h", "presence_ttl": "5m"},
//	  "nats": {"kv_bucket": {"ttl": "14d"}}
//	}
//
// # Environment Variable Overrides
//
// Environment variables override file values:
//
//	# Point at a different Redis
//	export CRADLE_REDIS_ADDR="redis.internal:6379"
//
//	# Override NATS URLs (comma-separated)
//	export CRADLE_NATS_URLS="nats://server1:4222,nats://server2:4222"
//
//	# Switch to the HTTP inference sidecar
//	export CRADLE_INFERENCE_MODE="http"
//	export CRADLE_INFERENCE_URL="http://inference.internal:8001"
//
// # Layer Merging
//
// Configuration layers are merged with last-wins semantics:
//
//	base.json:
//	  {"postgres": {"enabled": true, "host": "localhost"}}
//
//	production.json:
//	  {"postgres": {"host": "db.internal"}}
//
//	Result:
//	  {"postgres": {"enabled": true, "host": "db.internal"}}
//
// # Security
//
// The package includes input validation:
//   - File size limits (10MB max) to prevent memory exhaustion
//   - JSON depth validation (100 levels max) to prevent DoS attacks
//   - Path validation to prevent directory traversal
//   - Regular file checks (no symlinks or device files)
package config
