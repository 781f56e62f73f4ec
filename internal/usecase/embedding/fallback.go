package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/content"
)

// FallbackEmbedder never fails on provider errors: it substitutes a
// deterministic unit vector derived from the normalized text and marks the
// result as Fallback. Cancellation is still returned as an error.
type FallbackEmbedder struct {
	inner  domain.Embedder
	dims   int
	logger *zap.Logger
}

// NewFallbackEmbedder wraps inner. dims is the vector dimension of the deployment.
func NewFallbackEmbedder(inner domain.Embedder, dims int, logger *zap.Logger) *FallbackEmbedder {
	if dims <= 0 {
		dims = domain.DefaultDimensions
	}
	return &FallbackEmbedder{inner: inner, dims: dims, logger: logger}
}

// Embed implements domain.Embedder.
func (f *FallbackEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := f.inner.Embed(ctx, text)
	if err == nil && len(res.Embedding) == f.dims {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", ctxErr)
	}
	if err == nil {
		err = fmt.Errorf("got %d dimensions, want %d: %w", len(res.Embedding), f.dims, domain.ErrVectorDimMismatch)
	}

	f.logger.Warn("Embedding provider unavailable, using fallback vector",
		zap.Bool("rate_limited", errors.Is(err, domain.ErrRateLimited)),
		zap.Error(err),
	)
	return domain.EmbeddingResult{Embedding: FallbackVector(text, f.dims), Fallback: true}, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (f *FallbackEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := f.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

// FallbackVector expands SHA-256 blocks of the normalized text into a unit vector of dims.
// Equal texts (after normalization) always map to the same vector.
func FallbackVector(text string, dims int) []float32 {
	seed := []byte(content.Normalize(text))
	vec := make([]float32, dims)

	var block [sha256.Size]byte
	var counter [4]byte
	for i := 0; i < dims; i++ {
		if i%(sha256.Size/4) == 0 {
			binary.BigEndian.PutUint32(counter[:], uint32(i/(sha256.Size/4)))
			block = sha256.Sum256(append(counter[:], seed...))
		}
		off := (i % (sha256.Size / 4)) * 4
		u := binary.BigEndian.Uint32(block[off : off+4])
		vec[i] = float32(float64(u)/math.MaxUint32*2 - 1)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
