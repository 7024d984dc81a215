package index

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexClosed indicates an operation was attempted on a closed handle.
	ErrIndexClosed = errors.New("index is closed")

	// ErrWriterLockTimeout indicates the single-writer lock could not be acquired in time.
	// The operation may be retried.
	ErrWriterLockTimeout = errors.New("timed out waiting for index writer lock")

	// ErrWriterDone indicates a writer session was used after Commit or Cancel.
	ErrWriterDone = errors.New("writer session already finished")

	// ErrStoreInUse indicates the current generation is held open, usually by a running server.
	ErrStoreInUse = errors.New("index store is in use")
)

// ProvisioningError reports a failure to create a store or register a schema.
type ProvisioningError struct {
	Path string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning index at %s: %v", e.Path, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// SchemaError reports a malformed schema definition.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "invalid schema: " + e.Reason
	}
	return fmt.Sprintf("invalid schema field %q: %s", e.Field, e.Reason)
}

// IndexWriteError reports a failed add, update, delete or commit.
type IndexWriteError struct {
	Op    string
	DocID string
	Err   error
}

func (e *IndexWriteError) Error() string {
	if e.DocID == "" {
		return fmt.Sprintf("index %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index %s %s: %v", e.Op, e.DocID, e.Err)
}

func (e *IndexWriteError) Unwrap() error { return e.Err }

// Retryable reports whether the write failed only because the writer lock was busy.
func (e *IndexWriteError) Retryable() bool {
	return errors.Is(e.Err, ErrWriterLockTimeout)
}

// QueryError reports malformed query input. It maps to a client error.
type QueryError struct {
	Query  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Reason)
}

// NotFoundError reports a missing store or generation.
type NotFoundError struct {
	Path string
	What string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found at %s (run index-create first)", e.What, e.Path)
}

// IsQueryError reports whether err is or wraps a *QueryError.
func IsQueryError(err error) bool {
	var target *QueryError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsWriteError reports whether err is or wraps an *IndexWriteError.
func IsWriteError(err error) bool {
	var target *IndexWriteError
	return errors.As(err, &target)
}

// IsProvisioning reports whether err is or wraps a *ProvisioningError.
func IsProvisioning(err error) bool {
	var target *ProvisioningError
	return errors.As(err, &target)
}

// IsRetryable reports whether err is a write error that may succeed on retry.
func IsRetryable(err error) bool {
	var target *IndexWriteError
	return errors.As(err, &target) && target.Retryable()
}
