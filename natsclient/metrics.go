package natsclient

import (
	"context"
	"time"

	"github.com/YuvDwi/Cradle/metric"
)

// connMetrics publishes connection state into the shared core metrics.
// All methods are safe on a nil receiver so the client can run with
// metrics disabled.
type connMetrics struct {
	core *metric.Metrics
}

func newConnMetrics(core *metric.Metrics) *connMetrics {
	if core == nil {
		return nil
	}
	return &connMetrics{core: core}
}

// recordStatus maps the connection status onto the connected gauge and
// circuit breaker gauge.
func (cm *connMetrics) recordStatus(status ConnectionStatus) {
	if cm == nil {
		return
	}
	cm.core.RecordNATSStatus(status == StatusConnected)

	circuit := 0
	if status == StatusCircuitOpen {
		circuit = 1
	}
	cm.core.RecordCircuitBreakerState(circuit)
}

func (cm *connMetrics) recordReconnect() {
	if cm == nil {
		return
	}
	cm.core.RecordNATSReconnect()
}

func (cm *connMetrics) recordRTT(rtt time.Duration) {
	if cm == nil {
		return
	}
	cm.core.RecordNATSRTT(rtt)
}

// startMetricsPoller samples connection state and RTT on a fixed
// interval. Returns a cancel function to stop the poller.
func (m *Client) startMetricsPoller(ctx context.Context, interval time.Duration) context.CancelFunc {
	if m.metrics == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.metrics.recordStatus(m.Status())
				if rtt, err := m.RTT(); err == nil {
					m.metrics.recordRTT(rtt)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return cancel
}
