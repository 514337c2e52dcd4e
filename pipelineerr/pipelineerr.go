// Package pipelineerr classifies the error kinds named in the so
// callers can branch on policy (skip-and-log, throttle-retry, drop-and-warn,
// fatal) without re-deriving the classification at every call site.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind selects the handling policy for an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindParse
	KindDeserialize
	KindExternalTransient
	KindInvariant
	KindConfiguration
	KindCancellation
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindDeserialize:
		return "deserialize"
	case KindExternalTransient:
		return "external_transient"
	case KindInvariant:
		return "invariant"
	case KindConfiguration:
		return "configuration"
	case KindCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with its classification kind and the
// component that raised it.
type Error struct {
	Kind      Kind
	Component string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, component string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Cause: cause}
}

func Parse(component string, cause error) *Error {
	return New(KindParse, component, cause)
}

func Deserialize(component string, cause error) *Error {
	return New(KindDeserialize, component, cause)
}

func ExternalTransient(component string, cause error) *Error {
	return New(KindExternalTransient, component, cause)
}

func Invariant(component string, cause error) *Error {
	return New(KindInvariant, component, cause)
}

func Configuration(component string, cause error) *Error {
	return New(KindConfiguration, component, cause)
}

// KindOf returns the classification of err, or KindUnknown if err was not
// raised through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
