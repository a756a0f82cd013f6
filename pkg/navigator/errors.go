package navigator

import "fmt"

// Reason is one member of the closed error set returned by Manager
// operations (§6.1).
type Reason string

const (
	ReasonNotFound            Reason = "not_found"
	ReasonInvalidTransition   Reason = "invalid_transition"
	ReasonGuardDenied         Reason = "guard_denied"
	ReasonHookFailed          Reason = "hook_failed"
	ReasonKindUnknown         Reason = "kind_unknown"
	ReasonValidationError     Reason = "validation_error"
	ReasonCancelled           Reason = "cancelled"
	ReasonTimeout             Reason = "timeout"
	ReasonMaxRetriesExceeded  Reason = "max_retries_exceeded"
	ReasonFunctionNotExported Reason = "function_not_exported"
	ReasonRaised              Reason = "raised"
	ReasonStoreError          Reason = "store_error"
)

// Error is returned by Send and by Manager operations. Name carries
// the failing guard/hook's name for guard_denied/hook_failed.
type Error struct {
	Reason Reason
	Name   string
	Cause  error
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s{%s}", e.Reason, e.Name)
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(reason Reason, name string, cause error) *Error {
	return &Error{Reason: reason, Name: name, Cause: cause}
}
