// Package queue implements the Send Queue and File Send Queue (spec
// §4.3, §4.4): priority-ordered durable outbound work with retry/backoff,
// built on an in-memory priority heap + fixed-goroutine-pool worker shape and
// github.com/cenkalti/backoff/v4 for the retry curve.
package queue

// FailureReason is the eight-way classification taxonomy a send effect's
// error is mapped into before the queue decides Retry vs Failed (spec
// §4.3; exact shape supplied by original_source's storage/message_state.rs
// per SPEC_FULL.md's dropped-feature supplement).
type FailureReason int32

const (
	ReasonNetworkTimeout FailureReason = iota
	ReasonNetworkUnavailable
	ReasonServerError // carries an HTTP-like status via EffectError.HTTPStatus, see ClassifyHTTPStatus
	ReasonAuthFailure
	ReasonRateLimited
	ReasonMessageTooLarge
	ReasonForbidden
	ReasonUnknown
)

// Outcome is what the worker does in response to a classified failure.
type Outcome int32

const (
	OutcomeRetry Outcome = iota
	OutcomeFailed
)

// backoffMultiplier is the per-reason multiplier applied on top of the
// retry policy's base*factor^retry_count curve (spec §4.3 failure
// classification table).
var backoffMultiplier = map[FailureReason]float64{
	ReasonNetworkTimeout:     1.0,
	ReasonNetworkUnavailable: 2.0,
	ReasonServerError:        1.5,
	ReasonAuthFailure:        0.5,
	ReasonRateLimited:        3.0,
	ReasonMessageTooLarge:    1.0, // Failed, multiplier unused
	ReasonForbidden:          1.0, // Failed, multiplier unused
	ReasonUnknown:            1.0,
}

// Outcome reports whether reason is retried or terminal (spec §4.3).
func (reason FailureReason) Outcome() Outcome {
	switch reason {
	case ReasonMessageTooLarge, ReasonForbidden:
		return OutcomeFailed
	default:
		// Server 4xx (distinct from the 5xx ServerError reason, see
		// ClassifyHTTPStatus) is also terminal; callers that only have a
		// FailureReason in hand (not a raw status) get OutcomeRetry by
		// default, matching "Unknown -> Retry (conservative)".
		return OutcomeRetry
	}
}

// Multiplier returns the backoff multiplier applied for this reason on
// top of the base retry curve (spec §4.3).
func (reason FailureReason) Multiplier() float64 {
	if m, ok := backoffMultiplier[reason]; ok {
		return m
	}
	return 1.0
}

func (reason FailureReason) String() string {
	switch reason {
	case ReasonNetworkTimeout:
		return "network_timeout"
	case ReasonNetworkUnavailable:
		return "network_unavailable"
	case ReasonServerError:
		return "server_error"
	case ReasonAuthFailure:
		return "auth_failure"
	case ReasonRateLimited:
		return "rate_limited"
	case ReasonMessageTooLarge:
		return "message_too_large"
	case ReasonForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// EffectError is the structured error an effect function returns so the
// queue can classify it without string-sniffing.
type EffectError struct {
	Reason     FailureReason
	HTTPStatus int // meaningful when Reason == ReasonServerError, 0 otherwise
	Err        error
}

func (e *EffectError) Error() string { return e.Err.Error() }
func (e *EffectError) Unwrap() error { return e.Err }

// ClassifyHTTPStatus maps a raw HTTP-like status code to the taxonomy
// (spec §4.3: "Server 5xx -> Retry (multiplier 1.5)", "Server 4xx ->
// Failed").
func ClassifyHTTPStatus(status int) FailureReason {
	switch {
	case status >= 500:
		return ReasonServerError
	case status == 429:
		return ReasonRateLimited
	case status >= 400:
		return ReasonForbidden
	default:
		return ReasonUnknown
	}
}
