// Package metric provides Prometheus-based metrics collection and an HTTP server
// for monitoring the Cradle pipeline.
//
// The package offers a centralized metrics registry managing both core pipeline
// metrics (service status, message counts, inference timing, alert volume, NATS
// health) and custom component-specific metrics. It includes an HTTP server
// exposing metrics in Prometheus format.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: Pipeline-level metrics automatically registered (Metrics type)
//  2. Component Registry: Extensible registration for component-specific metrics (Registrar interface)
//  3. HTTP Server: Metrics endpoint with health checks (Server type)
//
// Core metrics cover what every deployment needs; components register their own
// series through the registry so the /metrics endpoint stays unified.
//
// # Basic Usage
//
// Setting up metrics collection and HTTP server:
//
//	registry := metric.NewRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	core := registry.CoreMetrics()
//	core.RecordServiceStatus("inference", 2) // running
//	core.RecordInferenceDuration("audio", 85*time.Millisecond)
//	core.RecordAlertGenerated("cry_detected", "high")
//
// Metrics are exposed at http://localhost:9090/metrics with a health check at
// http://localhost:9090/health.
//
// # Core Metrics
//
// Automatically registered series include:
//
//   - cradle_service_status{service}: lifecycle state per component
//   - cradle_messages_received_total / processed_total / published_total
//   - cradle_processing_duration_seconds{service,operation}
//   - cradle_ml_inference_duration_seconds{modality}
//   - cradle_alerts_generated_total{type,severity}
//   - cradle_websocket_active_connections
//   - cradle_rate_limit_denials_total{modality}
//   - cradle_result_cache_events_total{modality,outcome}
//   - cradle_nats_connected, cradle_nats_reconnects_total, cradle_nats_circuit_breaker
//
// # Component-Specific Metrics
//
// Components register custom metrics through the registry, keyed by
// "service.metric" to catch duplicate registrations early:
//
//	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
//	    Name: "inference_pool_queue_depth",
//	    Help: "Current depth of the inference work queue",
//	})
//	err := registry.RegisterGauge("inference", "pool_queue_depth", queueDepth)
//
// Vector variants (RegisterCounterVec, RegisterGaugeVec, RegisterHistogramVec)
// follow the same pattern. Duplicate keys and Prometheus naming conflicts return
// classified invalid errors; treat them as wiring bugs, not runtime failures.
//
// # Go Runtime Metrics
//
// NewRegistry also registers the standard Go and process collectors, so heap,
// GC, and file descriptor series come for free.
package metric
