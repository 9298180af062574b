// Package cradle provides the backend for a smart baby monitor: stream
// ingestion, ML inference over audio and video chunks, alerting, and
// realtime delivery to parent devices.
//
// # Architecture
//
// Cradle is a single pipeline. Media chunks enter at the edges, ride
// the NATS bus, pass a per-device rate gate into inference, and leave
// as cached results, stored alerts and realtime broadcasts:
//
//	┌──────────────┐          ┌──────────────┐
//	│  WebSocket   │          │     MQTT     │
//	│  (realtime)  │          │   (ingest)   │
//	└──────┬───────┘          └──────┬───────┘
//	       │                         │
//	       └──────────┬──────────────┘
//	                  ↓
//	      audio-stream / video-stream  (NATS queue groups)
//	                  ↓
//	       ┌─────────────────────┐
//	       │     Coordinator     │  rate gate → engine →
//	       │     (inference)     │  result cache → alerts
//	       └──────────┬──────────┘
//	                  ↓
//	               alerts
//	                  ↓
//	       ┌─────────────────────┐
//	       │     Dispatcher      │  store, broadcast,
//	       │       (alert)       │  push, telemetry
//	       └─────────────────────┘
//
// Every stage degrades independently. A full rate window drops the
// chunk, not the connection. A dead cache loses freshness, not alerts.
// A failed push retries with backoff while the broadcast has already
// gone out.
//
// # Packages
//
// Pipeline:
//   - message: chunk envelope, inference results, alert events
//   - inference: coordinator, rate-gated workers, heuristic and HTTP engines
//   - ratelimit: fixed-window per-device gate over a kvstore counter
//   - resultcache: latest-result and device-presence cache
//   - alert: dispatcher fanning alerts to store, broadcast, push, telemetry
//   - session: stream session lifecycle and stats
//
// Edges:
//   - realtime: WebSocket server, connection registry, broadcasts
//   - ingest: MQTT bridge republishing device topics onto the bus
//
// Infrastructure:
//   - natsclient: NATS connection management with circuit breaker
//   - kvstore: memory, Redis and JetStream KV counter/TTL backends
//   - store: Postgres (and in-memory) sessions, alerts, devices
//   - telemetry: batching ClickHouse sink for inference telemetry
//   - config: layered JSON + CRADLE_* environment configuration
//   - errors: structured error handling
//   - metric: Prometheus metrics
//   - health: component health aggregation
//   - pkg/retry: backoff policies
//
// # Usage
//
// The cradled binary wires the whole pipeline, but every package works
// standalone. A minimal embedded setup:
//
//	natsClient, _ := natsclient.NewClient("nats://localhost:4222")
//	natsClient.Connect(ctx)
//
//	kv := kvstore.NewMemoryStore(ctx)
//	gate := ratelimit.NewLimiter(kv, ratelimit.DefaultConfig())
//	cache := resultcache.NewCache(kv)
//
//	coordinator, _ := inference.NewCoordinator(inference.Deps{
//	    Bus:    natsClient,
//	    Engine: inference.NewHeuristicEngine(),
//	    Gate:   gate,
//	    Cache:  cache,
//	    Sink:   dispatcher,
//	})
//	coordinator.Start(ctx)
//
// Chunks published to the audio and video topics now flow through the
// gate and engine; alerts come out of the dispatcher.
//
// # Binary
//
//	# Run with defaults (memory kvstore, memory store, heuristic engine)
//	./bin/cradled
//
//	# Run against real backends
//	CRADLE_KVSTORE_BACKEND=redis CRADLE_POSTGRES_ENABLED=true \
//	  ./bin/cradled -config configs/production.json
//
//	# Check a config file without starting
//	./bin/cradled -config configs/production.json -validate
//
// # Version
//
// Current: v0.1.0
package cradle
