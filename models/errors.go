package models

import (
	"errors"
	"fmt"
)

// ErrEmptyDocument is returned when chunking produced zero usable chunks.
// Callers must reject the upload rather than silently ingesting nothing.
var ErrEmptyDocument = errors.New("document produced no text chunks")

// ErrUnsupportedFormat is returned for upload mime types the digitization
// service does not accept.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// EmbeddingError indicates the embedding service failed (network error,
// non-2xx status or a malformed response). It is never retried internally.
type EmbeddingError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("embedding service error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("embedding service error: %s", e.Message)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StoreError indicates the vector index was unreachable or rejected an
// operation. Prior writes in the same ingestion are not rolled back.
type StoreError struct {
	Op      string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s failed: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ParseError indicates the document digitization service rejected or failed
// to process an upload. Ingestion never starts when parsing fails.
type ParseError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ParseError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("document parse failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("document parse failed: %s", e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RetrievalError wraps embedding or store failures during context
// retrieval. An empty result set is success, not a RetrievalError.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("context retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
