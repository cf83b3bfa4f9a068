// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrRefreshClosed  = errors.New("catalog refresh already committed or aborted")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Inference errors.
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrEmptyCompletion = errors.New("no completion returned")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error kinds reported in ingestion summaries and classification logs.
const (
	KindChunkCount = "chunk_count"
	KindShape      = "shape"
	KindChunkParse = "chunk_parse"
	KindMetadata   = "metadata_parse"
	KindRender     = "render"
	KindInference  = "inference_service"
	KindArtifact   = "artifact"
	KindCatalog    = "catalog"
	KindCanceled   = "canceled"
	KindUnknown    = "unknown"
)

// ChunkCountError reports an event folder without exactly the expected number of chunk files.
type ChunkCountError struct {
	Dir      string
	Expected int
	Found    int
}

func (e *ChunkCountError) Error() string {
	return fmt.Sprintf("expected %d chunk files in %s, found %d", e.Expected, e.Dir, e.Found)
}

// Kind implements Kinder.
func (e *ChunkCountError) Kind() string { return KindChunkCount }

// ShapeError reports an assembled waveform with the wrong dimensions.
type ShapeError struct {
	Source       string
	ExpectedRows int
	ExpectedCols int
	Rows         int
	Cols         int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: expected shape (%d, %d), got (%d, %d)",
		e.Source, e.ExpectedRows, e.ExpectedCols, e.Rows, e.Cols)
}

// Kind implements Kinder.
func (e *ShapeError) Kind() string { return KindShape }

// ChunkParseError reports a chunk cell that is not an integer sample.
type ChunkParseError struct {
	Err  error
	File string
	Line int
}

func (e *ChunkParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *ChunkParseError) Unwrap() error { return e.Err }

// Kind implements Kinder.
func (e *ChunkParseError) Kind() string { return KindChunkParse }

// MetadataParseError reports a metadata document from which no onset could be resolved,
// or whose fields are malformed.
type MetadataParseError struct {
	Err   error
	Field string
}

func (e *MetadataParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("metadata: %v", e.Err)
	}
	return fmt.Sprintf("metadata field %s: %v", e.Field, e.Err)
}

func (e *MetadataParseError) Unwrap() error { return e.Err }

// Kind implements Kinder.
func (e *MetadataParseError) Kind() string { return KindMetadata }

// RenderError reports a waveform that could not be rendered.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Kind implements Kinder.
func (e *RenderError) Kind() string { return KindRender }

// ArtifactError reports a canonical waveform artifact that could not be written or read.
type ArtifactError struct {
	Err  error
	Path string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Kind implements Kinder.
func (e *ArtifactError) Kind() string { return KindArtifact }

// InferenceServiceError reports a failed call to the inference service:
// transport failure, timeout, non-2xx status or a malformed body.
type InferenceServiceError struct {
	Err        error
	Provider   string
	StatusCode int
}

func (e *InferenceServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s inference error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s inference error: %v", e.Provider, e.Err)
}

func (e *InferenceServiceError) Unwrap() error { return e.Err }

// Kind implements Kinder.
func (e *InferenceServiceError) Kind() string { return KindInference }

// Kinder is implemented by errors that belong to the error taxonomy.
type Kinder interface {
	Kind() string
}

// ErrorKind returns the taxonomy kind of err, searching the wrap chain.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
// Caller cancellation is never retried; a per-attempt deadline is.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
