package rarity

import "github.com/kailas-cloud/rarity/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput           = domain.ErrInvalidInput
	ErrContentRejected        = domain.ErrContentRejected
	ErrContentTypeDisabled    = domain.ErrContentTypeDisabled
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)
