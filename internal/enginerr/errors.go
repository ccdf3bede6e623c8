// Package enginerr defines the engine's typed error kinds (spec.md §7),
// generalized from internal/exchange's ExchangeError{Exchange, Code,
// Message, Original}+Unwrap shape.
package enginerr

import "fmt"

// BadConditionError is returned when a condition or playbook fails
// validation at register/subscribe time. Never logged-and-swallowed: it
// is always returned to the caller.
type BadConditionError struct {
	Fingerprint string
	Reason      string
}

func (e *BadConditionError) Error() string {
	return fmt.Sprintf("bad condition %s: %s", e.Fingerprint, e.Reason)
}

// InvalidStateTransition is returned when a DCA bot state machine is asked
// to perform a transition ValidTransitions doesn't allow.
type InvalidStateTransition struct {
	BotID int64
	From  string
	Event string
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("bot %d: invalid transition %q from state %q", e.BotID, e.Event, e.From)
}

// ExchangeRejection wraps an order rejected by the exchange (or the paper
// simulator acting in its place).
type ExchangeRejection struct {
	Symbol   string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeRejection) Error() string {
	return fmt.Sprintf("%s rejected: %s (%s)", e.Symbol, e.Message, e.Code)
}

func (e *ExchangeRejection) Unwrap() error {
	return e.Original
}

// InvariantViolation marks a broken internal invariant — e.g. the
// paper-trading balance law. These are bugs, not transient conditions;
// callers should treat them as fatal to the affected bot/position.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}

// TransientStoreError wraps a retryable datastore failure.
type TransientStoreError struct {
	Op       string
	Original error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store op %s failed (transient): %v", e.Op, e.Original)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Original
}

// TransientNetworkError wraps a retryable market-data/exchange-transport
// failure.
type TransientNetworkError struct {
	Op       string
	Original error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("network op %s failed (transient): %v", e.Op, e.Original)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Original
}

// Retryable reports whether err is one of the transient kinds. Mirrors the
// RetryableError contract pkg/retry already understands.
func Retryable(err error) bool {
	switch err.(type) {
	case *TransientStoreError, *TransientNetworkError:
		return true
	default:
		return false
	}
}
