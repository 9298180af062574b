package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorNotFound, "not_found"},
		{ErrorInvalidState, "invalid_state"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"no connection", ErrNoConnection, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"rate limited", ErrRateLimited, true},
		{"circuit open", ErrCircuitOpen, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid data", ErrInvalidData, false},
		{"session not found", ErrSessionNotFound, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network connection failed"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"session not found", ErrSessionNotFound, true},
		{"device not found", ErrDeviceNotFound, true},
		{"alert not found", ErrAlertNotFound, true},
		{"key not found", ErrKeyNotFound, true},
		{"wrapped session not found", fmt.Errorf("lookup: %w", ErrSessionNotFound), true},
		{"session ended", ErrSessionEnded, false},
		{"invalid data", ErrInvalidData, false},
		{"classified not found", &ClassifiedError{Class: ErrorNotFound, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsNotFound(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalidState(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"session ended", ErrSessionEnded, true},
		{"session inactive", ErrSessionInactive, true},
		{"already started", ErrAlreadyStarted, true},
		{"shutting down", ErrShuttingDown, true},
		{"wrapped session ended", fmt.Errorf("ingest: %w", ErrSessionEnded), true},
		{"session not found", ErrSessionNotFound, false},
		{"classified invalid state", &ClassifiedError{Class: ErrorInvalidState, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalidState(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid data", ErrInvalidData, true},
		{"empty payload", ErrEmptyPayload, true},
		{"parsing failed", ErrParsingFailed, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"session not found", ErrSessionNotFound, ErrorNotFound},
		{"session ended", ErrSessionEnded, ErrorInvalidState},
		{"empty payload", ErrEmptyPayload, ErrorInvalid},
		{"invalid config", ErrInvalidConfig, ErrorFatal},
		{"connection lost", ErrConnectionLost, ErrorTransient},
		{"unknown error", fmt.Errorf("something odd"), ErrorTransient},
		{"classified wins over message", &ClassifiedError{Class: ErrorNotFound, Err: fmt.Errorf("timeout")}, ErrorNotFound},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Classify(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"not found", ErrSessionNotFound, http.StatusNotFound},
		{"invalid state", ErrSessionEnded, http.StatusConflict},
		{"validation", ErrEmptyPayload, http.StatusBadRequest},
		{"transport", ErrConnectionLost, http.StatusServiceUnavailable},
		{"fatal", ErrInvalidConfig, http.StatusInternalServerError},
		{"wrapped not found", WrapNotFound(ErrSessionNotFound, "session", "Get", "load session"), http.StatusNotFound},
		{"wrapped invalid state", WrapInvalidState(ErrSessionEnded, "session", "End", "transition"), http.StatusConflict},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := HTTPStatus(test.err)
			if result != test.expected {
				t.Errorf("expected %d, got %d for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(base, "session", "Start", "persist session")

	if wrapped == nil {
		t.Fatal("expected non-nil wrapped error")
	}
	expected := "session.Start: persist session failed: boom"
	if wrapped.Error() != expected {
		t.Errorf("expected %q, got %q", expected, wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should match base via errors.Is")
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"not found", WrapNotFound, ErrorNotFound},
		{"invalid state", WrapInvalidState, ErrorInvalidState},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.wrap(base, "store", "Insert", "write row")
			if err == nil {
				t.Fatal("expected non-nil error")
			}

			var ce *ClassifiedError
			if !errors.As(err, &ce) {
				t.Fatal("expected ClassifiedError in chain")
			}
			if ce.Class != test.class {
				t.Errorf("expected class %v, got %v", test.class, ce.Class)
			}
			if ce.Component != "store" || ce.Operation != "Insert" {
				t.Errorf("unexpected component/operation: %s/%s", ce.Component, ce.Operation)
			}
			if !errors.Is(err, base) {
				t.Error("classification must preserve the wrapped chain")
			}
			if !strings.Contains(err.Error(), "store.Insert") {
				t.Errorf("expected standard wrap format, got %q", err.Error())
			}
			if test.wrap(nil, "a", "b", "c") != nil {
				t.Error("wrapping nil should return nil")
			}
		})
	}
}

func TestClassifiedError_NoMessage(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	ce := newClassified(ErrorTransient, baseErr, "testComponent", "testOperation", "")

	if ce.Error() != "base error" {
		t.Errorf("expected 'base error', got %s", ce.Error())
	}
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.ShouldRetry(nil, 0) {
		t.Error("nil error should not retry")
	}
	if !cfg.ShouldRetry(ErrConnectionTimeout, 0) {
		t.Error("transient error should retry")
	}
	if cfg.ShouldRetry(ErrConnectionTimeout, cfg.MaxRetries) {
		t.Error("should not retry past MaxRetries")
	}
	if cfg.ShouldRetry(ErrInvalidData, 0) {
		t.Error("invalid error should not retry")
	}

	scoped := RetryConfig{
		MaxRetries:      3,
		RetryableErrors: []error{ErrConnectionLost},
	}
	if !scoped.ShouldRetry(ErrConnectionLost, 0) {
		t.Error("listed error should retry")
	}
	if scoped.ShouldRetry(ErrConnectionTimeout, 0) {
		t.Error("unlisted error should not retry when list is set")
	}
}

func TestRetryConfig_BackoffDelay(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
	}

	if d := cfg.BackoffDelay(0); d != 100*time.Millisecond {
		t.Errorf("attempt 0: expected 100ms, got %v", d)
	}
	if d := cfg.BackoffDelay(1); d != 200*time.Millisecond {
		t.Errorf("attempt 1: expected 200ms, got %v", d)
	}
	if d := cfg.BackoffDelay(10); d != 1*time.Second {
		t.Errorf("attempt 10: expected cap at 1s, got %v", d)
	}
}

func TestRetryConfig_ToRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	rc := cfg.ToRetryConfig()

	if rc.MaxAttempts != cfg.MaxRetries+1 {
		t.Errorf("expected %d total attempts, got %d", cfg.MaxRetries+1, rc.MaxAttempts)
	}
	if rc.InitialDelay != cfg.InitialDelay || rc.MaxDelay != cfg.MaxDelay {
		t.Error("delays should carry over")
	}
	if !rc.AddJitter {
		t.Error("jitter should be enabled")
	}
}
