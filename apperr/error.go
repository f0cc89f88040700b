// Package apperr provides the structured error type shared across the
// runtime's packages: event store, reducer, turn service, session actor,
// registry, and facade all wrap their failures in an *Error so callers can
// branch on Kind with errors.As instead of string matching.
package apperr

import "fmt"

// Kind identifies which error category produced an Error.
type Kind string

const (
	// KindLoad marks a failure reading a conversation's event log.
	KindLoad Kind = "load"
	// KindSave marks a failure appending events to the store.
	KindSave Kind = "save"
	// KindReducer marks an unknown event variant encountered while folding.
	KindReducer Kind = "reducer"
	// KindTurn marks a language-model streaming failure.
	KindTurn Kind = "turn"
	// KindNotFound marks a lookup for an unknown session.
	KindNotFound Kind = "not_found"
	// KindService is the facade-level catch-all wrapping any other kind.
	KindService Kind = "service"
)

// Error is a structured error carrying the component and operation that
// produced it, plus an optional cause chain.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Details   map[string]any
	Cause     error
}

// New creates an Error with the given kind, component, operation, and cause.
func New(kind Kind, component, operation string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
}

// Error returns a human-readable representation of the error.
func (e *Error) Error() string {
	base := fmt.Sprintf("[%s:%s] %s", e.Kind, e.Component, e.Operation)
	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}
	return base
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails returns the same error with the given details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Is reports whether target shares this error's Kind, so callers can write
// errors.Is(err, apperr.KindKind) style checks via a sentinel comparison.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// LoadError wraps a conversation log read failure (corruption or I/O).
func LoadError(name string, cause error) *Error {
	return New(KindLoad, "store", "load:"+name, cause)
}

// SaveError wraps a conversation log append failure.
func SaveError(name string, cause error) *Error {
	return New(KindSave, "store", "append:"+name, cause)
}

// ReducerError wraps an unknown event variant encountered while folding.
func ReducerError(operation string, cause error) *Error {
	return New(KindReducer, "reduce", operation, cause)
}

// TurnError wraps a language-model streaming failure, naming the provider.
func TurnError(provider string, cause error) *Error {
	return New(KindTurn, "turn", "execute:"+provider, cause).WithDetails(map[string]any{"provider": provider})
}

// NotFoundError wraps a lookup for an unknown session name.
func NotFoundError(name string) *Error {
	return New(KindNotFound, "registry", "get:"+name, fmt.Errorf("session %q not found", name))
}

// ServiceError wraps any of the above for the facade surface, preserving cause.
func ServiceError(operation string, cause error) *Error {
	return New(KindService, "service", operation, cause)
}
