// Package natsclient provides a NATS client with circuit breaker
// protection, automatic reconnection, and JetStream KV support. It is
// the transport for the Cradle stream bus and for the NATS-backed
// counter store.
//
// # Core Features
//
// Circuit Breaker: after a threshold of consecutive failures
// (default 5) the circuit opens and operations fail fast with
// ErrCircuitOpen. The circuit retests the connection after an
// exponentially growing backoff, capped at one minute.
//
// Connection Lifecycle: states move through
// Disconnected → Connecting → Connected → Reconnecting → Connected,
// with callbacks available for disconnect, reconnect, and health
// changes. A background monitor verifies the connection with RTT
// probes.
//
// Fire-and-Forget Publishing: Publish uses core NATS. Messages sent
// while no consumer is subscribed are dropped by the broker, which is
// the intended at-most-once behavior of the chunk bus: a missed
// envelope means one skipped inference, not a stalled pipeline.
//
// Queue Subscriptions: QueueSubscribe joins a queue group so multiple
// daemon instances split the chunk traffic instead of each processing
// every message.
//
// KVStore: a thin layer over a JetStream KV bucket with automatic CAS
// retry (via pkg/retry with jitter), used by the NATS backend of the
// counter/TTL store.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("cradle-1"),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.QueueSubscribe(ctx, "audio-stream", "inference", handle)
//
// # Testing
//
// TestClient starts a containerized NATS server (testcontainers) and
// returns a connected Client:
//
//	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
//	tc.Client.Publish(ctx, "audio-stream", data)
package natsclient
