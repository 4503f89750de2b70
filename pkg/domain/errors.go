package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrFlowNotFound is returned when a flow id or name does not resolve.
var ErrFlowNotFound = errors.New("flow not found")

// ErrStateNotFound is returned when a state is absent from its flow.
var ErrStateNotFound = errors.New("state not found")

// ErrUnknownAction is returned when an Invoke names a function no handler is registered for.
var ErrUnknownAction = errors.New("unknown action")

// ErrStepLimit is returned when a cycle chains more states or jumps than allowed.
var ErrStepLimit = errors.New("step limit exceeded")

// ErrNoEntryFlow is returned when an idle session receives an event and no entry flow is configured.
var ErrNoEntryFlow = errors.New("no entry flow configured")

// ErrDuplicateEvent is returned when an inbound message id was already processed.
var ErrDuplicateEvent = errors.New("duplicate event")

// ConfigurationError reports a defect in flow configuration.
// It is never retryable: the cycle that hit it is aborted and the session left untouched.
type ConfigurationError struct {
	Op    string
	Flow  string
	State string
	Err   error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Flow != "" && e.State != "":
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Flow, e.State, e.Err)
	case e.Flow != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Flow, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
