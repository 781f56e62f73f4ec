package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a submission that must be rejected (empty or oversized text, bad scope).
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransientIO signals an unreachable collaborator (embedding API, store, cache).
	ErrTransientIO = errors.New("transient io failure")
	// ErrPartialWindowFailure signals that one temporal window could not be computed.
	ErrPartialWindowFailure = errors.New("partial window failure")
	// ErrModerationTimeout signals that the moderation gate did not answer in time.
	ErrModerationTimeout = errors.New("moderation timeout")
	// ErrContentRejected signals an explicit moderation rejection.
	ErrContentRejected = errors.New("content rejected by moderation")
	// ErrContentTypeDisabled signals a submission for a content type switched off in config.
	ErrContentTypeDisabled = errors.New("content type disabled")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrModerationProviderError signals a moderation provider failure.
	ErrModerationProviderError = errors.New("moderation provider error")
	// ErrRateLimited signals a local rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrRangeQueryUnsupported signals a vector store without range query support.
	ErrRangeQueryUnsupported = errors.New("vector range queries not supported by store")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// InvalidInputError wraps ErrInvalidInput with the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidInput.Error(), e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// NewInvalidInput creates an invalid input error for a field.
func NewInvalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}
