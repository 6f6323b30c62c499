package bankfeed

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat means the uploaded content matched no known
	// statement shape at all (not even a recognizable header).
	ErrUnsupportedFormat = errors.New("unsupported statement format")

	// ErrEmptyStatement means the content was structurally valid but no
	// row/block yielded a usable transaction. Callers may treat "nothing
	// to import" differently from "could not read this".
	ErrEmptyStatement = errors.New("no valid transactions found in statement")

	// ErrUnauthorized terminates a sync pass at the Authorize step.
	ErrUnauthorized = errors.New("unauthorized")
)

// FormatError reports a statement whose structure could not be understood
// (missing mandatory columns, truncated file). Fails the whole parse call.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "statement format error: " + e.Reason
}

// BadRequestError reports caller input insufficient to resolve an operation.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return e.Reason
}

// UpstreamError wraps a failed aggregator call. The core does not retry;
// retry policy belongs to the caller (see internal/jobs).
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("aggregator %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed store operation (existence check or
// batch write).
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
