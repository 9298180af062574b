package health

import (
	"errors"
	"testing"
	"time"
)

func TestStatus_IsHealthy(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{
			name:   "healthy status returns true",
			status: Status{Status: "healthy"},
			want:   true,
		},
		{
			name:   "unhealthy status returns false",
			status: Status{Status: "unhealthy"},
			want:   false,
		},
		{
			name:   "degraded status returns false",
			status: Status{Status: "degraded"},
			want:   false,
		},
		{
			name:   "empty status returns false",
			status: Status{Status: ""},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsHealthy(); got != tt.want {
				t.Errorf("Status.IsHealthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsDegraded(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{
			name:   "degraded status returns true",
			status: Status{Status: "degraded"},
			want:   true,
		},
		{
			name:   "healthy status returns false",
			status: Status{Status: "healthy"},
			want:   false,
		},
		{
			name:   "unhealthy status returns false",
			status: Status{Status: "unhealthy"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsDegraded(); got != tt.want {
				t.Errorf("Status.IsDegraded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsUnhealthy(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{
			name:   "unhealthy status returns true",
			status: Status{Status: "unhealthy"},
			want:   true,
		},
		{
			name:   "healthy status returns false",
			status: Status{Status: "healthy"},
			want:   false,
		},
		{
			name:   "degraded status returns false",
			status: Status{Status: "degraded"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsUnhealthy(); got != tt.want {
				t.Errorf("Status.IsUnhealthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_WithMetrics(t *testing.T) {
	original := Status{
		Component: "test",
		Status:    "healthy",
		Message:   "test message",
	}

	metrics := &Metrics{
		Uptime:     time.Hour,
		ErrorCount: 5,
	}

	result := original.WithMetrics(metrics)

	// Should not modify original
	if original.Metrics != nil {
		t.Error("WithMetrics should not modify original status")
	}

	// Should return copy with metrics
	if result.Metrics == nil {
		t.Error("WithMetrics should return status with metrics")
	}

	if result.Metrics.Uptime != time.Hour {
		t.Errorf("Expected uptime %v, got %v", time.Hour, result.Metrics.Uptime)
	}

	if result.Metrics.ErrorCount != 5 {
		t.Errorf("Expected error count 5, got %d", result.Metrics.ErrorCount)
	}
}

func TestStatus_WithSubStatus(t *testing.T) {
	original := Status{
		Component: "parent",
		Status:    "healthy",
		Message:   "parent message",
	}

	subStatus := Status{
		Component: "child",
		Status:    "unhealthy",
		Message:   "child message",
	}

	result := original.WithSubStatus(subStatus)

	// Should not modify original
	if len(original.SubStatuses) != 0 {
		t.Error("WithSubStatus should not modify original status")
	}

	// Should return copy with sub-status
	if len(result.SubStatuses) != 1 {
		t.Errorf("Expected 1 sub-status, got %d", len(result.SubStatuses))
	}

	if result.SubStatuses[0].Component != "child" {
		t.Errorf("Expected child component, got %s", result.SubStatuses[0].Component)
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name          string
		componentName string
		err           error
		wantStatus    string
		wantMessage   string
	}{
		{
			name:          "nil error reports healthy",
			componentName: "kvstore",
			err:           nil,
			wantStatus:    "healthy",
			wantMessage:   "Component healthy",
		},
		{
			name:          "plain error reports unhealthy",
			componentName: "store",
			err:           errors.New("connection refused"),
			wantStatus:    "unhealthy",
			wantMessage:   "connection refused",
		},
		{
			name:          "error message is sanitized",
			componentName: "bus",
			err:           errors.New("cannot connect to nats://localhost:4222"),
			wantStatus:    "unhealthy",
			wantMessage:   "cannot connect to [URL]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FromError(tt.componentName, tt.err)

			if result.Component != tt.componentName {
				t.Errorf("Expected component name %s, got %s", tt.componentName, result.Component)
			}

			if result.Status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s", tt.wantStatus, result.Status)
			}

			if result.Healthy != (tt.err == nil) {
				t.Errorf("Expected healthy=%v, got %v", tt.err == nil, result.Healthy)
			}

			if result.Message != tt.wantMessage {
				t.Errorf("Expected message %s, got %s", tt.wantMessage, result.Message)
			}

			if result.Timestamp.IsZero() {
				t.Error("Expected timestamp to be set")
			}
		})
	}
}
