package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired    = sterrors.New("sockflow: event service is required")
	ErrConfigRequired     = sterrors.New("sockflow: configuration is required")
	ErrLoggerRequired     = sterrors.New("sockflow: logger is required")
	ErrAdapterRequired    = sterrors.New("sockflow: transport adapter is required")
	ErrHandlerRequired    = sterrors.New("sockflow: handler function is required")
	ErrEventTypeRequired  = sterrors.New("sockflow: event type is required")
	ErrGuardRequired      = sterrors.New("sockflow: guard function is required")
	ErrMiddlewareRequired = sterrors.New("sockflow: middleware function is required")
	ErrCallbackRequired   = sterrors.New("sockflow: callback function is required")
	ErrEmitterRequired    = sterrors.New("sockflow: emitter is required")
	ErrPluginRequired     = sterrors.New("sockflow: plugin is required")
	ErrPluginInstalled    = sterrors.New("sockflow: plugin is already installed")
	ErrAlreadyStarted     = sterrors.New("sockflow: service is already started")
	ErrInvalidHookShape   = sterrors.New("sockflow: hook callback has the wrong signature")
	ErrRawPayloadType     = sterrors.New("sockflow: raw payload must be []byte, string or json.RawMessage")

	ErrPayloadRequired          = sterrors.New("sockflow: message payload is required")
	ErrPayloadTypeRequired      = sterrors.New("sockflow: payload type is required")
	ErrPayloadTypePointerNeeded = sterrors.New("sockflow: payload type must be a pointer")
)

// NotConfiguredError reports an operation that needs a bound transport
// adapter when none is bound.
type NotConfiguredError struct {
	Op string
}

func (e *NotConfiguredError) Error() string {
	if e.Op == "" {
		return "sockflow: no transport adapter is bound"
	}
	return fmt.Sprintf("sockflow: %s requires a bound transport adapter", e.Op)
}

// DoubleContinuationError reports a middleware that invoked its continuation
// more than once. Index is the zero-based chain position whose continuation
// was re-entered.
type DoubleContinuationError struct {
	Index int
}

func (e *DoubleContinuationError) Error() string {
	return fmt.Sprintf("sockflow: middleware continuation at index %d invoked twice", e.Index)
}

// UnknownHookError reports a hook registration under a name the service does
// not expose.
type UnknownHookError struct {
	Name string
}

func (e *UnknownHookError) Error() string {
	return fmt.Sprintf("sockflow: unknown hook %q", e.Name)
}

// ConfigValidationError wraps the aggregate of all configuration problems
// found during validation.
type ConfigValidationError struct {
	Err error
}

func NewConfigValidationError(err error) *ConfigValidationError {
	return &ConfigValidationError{Err: err}
}

func (e *ConfigValidationError) Error() string {
	if e.Err == nil {
		return "sockflow: invalid configuration"
	}
	return fmt.Sprintf("sockflow: invalid configuration: %v", e.Err)
}

func (e *ConfigValidationError) Unwrap() error { return e.Err }
