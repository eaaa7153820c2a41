package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the embedding and generation endpoints.
var (
	// ErrServiceUnavailable means the model endpoint could not be reached.
	ErrServiceUnavailable = errors.New("model service unavailable")
	// ErrEmptyEmbedding means the model returned a zero-length vector.
	ErrEmptyEmbedding = errors.New("empty embedding returned")
)

// UpstreamStatusError is a non-2xx response from a model endpoint.
type UpstreamStatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// StoreError wraps a vector store operation failure.
type StoreError struct {
	Op      string
	Wrapped error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s: %s", e.Op, e.Wrapped)
}

func (e *StoreError) Unwrap() error { return e.Wrapped }

// NewStoreError wraps err as a StoreError for the given operation.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Wrapped: err}
}
