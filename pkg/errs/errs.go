// Package errs implements the error taxonomy used to classify every
// failure that crosses a component boundary in the pipeline.
package errs

import (
	"context"
	"errors"
	"strings"
)

// Kind is a taxonomy entry, not a Go type name: multiple failures map to
// the same Kind and are handled identically by callers.
type Kind string

const (
	InvalidInput     Kind = "INVALID_INPUT"
	TransientStore   Kind = "TRANSIENT_STORE"
	FatalStore       Kind = "FATAL_STORE"
	TaskTimeout      Kind = "TASK_TIMEOUT"
	ProtocolError    Kind = "PROTOCOL_ERROR"
	PowMaxIterations Kind = "POW_MAX_ITERATIONS"
	ProxyExhausted   Kind = "PROXY_EXHAUSTED"
	ExceededRetries  Kind = "EXCEEDED_RETRIES"
	Cancelled        Kind = "CANCELLED"
)

// Error wraps an underlying error with its taxonomy Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given Kind. Returns nil if err is nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// As reports whether err carries the taxonomy and, if so, returns its Kind.
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// fatalStoreMarkers are substrings of a store-client error message that, per
// §4.8, classify the failure as fatal for a worker rather than transient.
var fatalStoreMarkers = []string{
	"connection closed",
	"connection refused",
	"host not found",
	"store connection",
}

// ClassifyTaskError maps an error surfaced by the protocol driver to its
// taxonomy Kind. A context deadline means the task ran past §4.8's task
// timeout; anything else inside the login dialog is a protocol error
// reported with the upstream message rather than a fixed code.
// POW_MAX_ITERATIONS never reaches this classifier as an error — the PoW
// Service Client degrades to a random cres and returns nil instead — and
// CANCELLED never produces a Result at all, so neither Kind is returned here.
func ClassifyTaskError(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return TaskTimeout
	}
	return ProtocolError
}

// IsFatalStore reports whether err's message matches one of the fatal-store
// markers. Timeout errors are never fatal, regardless of message content.
func IsFatalStore(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return false
	}
	for _, marker := range fatalStoreMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
