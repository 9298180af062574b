// Package errors provides standardized error handling patterns for Cradle
// components.
//
// # Overview
//
// The package implements a five-class error classification system for the
// monitoring pipeline: Transient (temporary, retryable), Invalid (bad
// input, non-retryable), NotFound (entity lookup misses), InvalidState
// (state-machine rejections such as ingesting into an ended session), and
// Fatal (unrecoverable, stop processing).
//
// Classification enables components to make retry, drop, and escalation
// decisions without error string matching, and gives API edges a single
// mapping from error class to HTTP status:
//
//	404 NotFound, 409 InvalidState, 400 Invalid, 503 Transient, 500 Fatal
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// The Wrap family applies this pattern while attaching classification:
//
//	errors.WrapTransient(err, "natsclient", "Publish", "publish message")
//	errors.WrapInvalid(err, "session", "IngestChunk", "validate payload")
//	errors.WrapNotFound(err, "session", "Get", "load session")
//	errors.WrapInvalidState(err, "session", "End", "transition state")
//	errors.WrapFatal(err, "config", "Load", "parse config file")
//
// # Standard Error Variables
//
// Pre-defined variables cover common conditions (ErrSessionNotFound,
// ErrSessionEnded, ErrRateLimited, ErrQueueFull, ...). Prefer them over
// ad-hoc error strings so errors.Is checks work across package borders:
//
//	if errors.Is(err, errors.ErrSessionEnded) {
//	    // reject ingest, surface 409 to the caller
//	}
//
// # Retry Integration
//
// RetryConfig bridges classification into the pkg/retry framework:
//
//	cfg := errors.DefaultRetryConfig()
//	err := retry.Do(ctx, cfg.ToRetryConfig(), func() error {
//	    return notifier.Push(ctx, alert)
//	})
//
// Context errors (context.DeadlineExceeded, context.Canceled) classify as
// Transient so context-based timeouts and transport timeouts are handled
// uniformly.
package errors
