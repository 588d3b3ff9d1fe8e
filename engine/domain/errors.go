package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure per the propagation policy: every
// error reaching a caller carries a kind and a human-readable cause.
type Kind string

const (
	KindConfig     Kind = "config"
	KindSource     Kind = "source"
	KindIndexBuild Kind = "index_build"
	KindRetrieval  Kind = "retrieval"
	KindGeneration Kind = "generation"
)

// Sentinel errors for usage violations.
var (
	// ErrNotReady is returned when a query is issued before the index
	// build has completed.
	ErrNotReady = errors.New("index not ready")
	// ErrSessionBusy is returned when a second Ask is issued on a session
	// that is already serving one.
	ErrSessionBusy = errors.New("session busy: concurrent ask")
)

// PipelineError wraps a cause with its kind and the failing operation.
type PipelineError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// E wraps err as a PipelineError.
func E(kind Kind, op string, err error) error {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// Ef wraps a formatted cause as a PipelineError.
func Ef(kind Kind, op, format string, args ...any) error {
	return E(kind, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of err, or the empty string if err carries none.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
