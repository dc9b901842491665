// Package hipserr defines the error kinds the core recognizes (spec.md §7).
// Only constructor-like initialization (Initialize/Start) ever returns one of
// these to a caller as a plain bool failure; everywhere else an error here
// becomes a logged event, a counter increment, or a false return — never
// control flow propagated above the dispatcher.
package hipserr

import "errors"

// Kind classifies an internal failure for logging/metrics purposes.
type Kind string

const (
	// InvalidLifecycleState: start before init, or similar out-of-order
	// transition. Surfaced to the caller as a failure.
	InvalidLifecycleState Kind = "invalid_lifecycle_state"

	// MonitorSetupFailed: an OS facility a monitor depends on is
	// unavailable. The monitor's Start returns failure; the engine's Start
	// proceeds and logs the sub-failure.
	MonitorSetupFailed Kind = "monitor_setup_failed"

	// ResourceMissing: a protected file/key/service is absent. Surfaced as
	// a SelfProtectionEvent rather than a caller-visible error.
	ResourceMissing Kind = "resource_missing"

	// ApiFault: a platform call failed. Handled by retry+barrier, then
	// logged as a safety violation, then returned as false.
	ApiFault Kind = "api_fault"

	// PolicyMismatch is not an error: no rule matched, default Allow.
	PolicyMismatch Kind = "policy_mismatch"
)

// Error wraps a Kind with a free-text reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Reason
}

// New constructs an *Error for the given kind and reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Is reports whether err carries the given Kind, so callers can use
// errors.Is(err, hipserr.New(hipserr.ApiFault, "")) style matching via Kind
// alone (the Reason is ignored for equality).
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.Kind == te.Kind
}
