// Package embed converts text to fixed-dimension float vectors through
// one of several provider backends.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default number of texts per API call.
	DefaultBatchSize = 16

	// MaxBatchSize caps a single API call (prevents memory exhaustion
	// and oversized request bodies).
	MaxBatchSize = 256

	// DefaultRequestTimeout bounds a single embedding HTTP request.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for transient provider errors.
	DefaultMaxRetries = 3
)

// Provider defaults.
const (
	// DefaultOpenAIModel is the default OpenAI embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// OpenAIDimensions is the dimensionality of text-embedding-3-small.
	OpenAIDimensions = 1536

	// DefaultGeminiModel is the default Gemini embedding model.
	DefaultGeminiModel = "text-embedding-004"

	// GeminiDimensions is the dimensionality of text-embedding-004.
	GeminiDimensions = 768

	// StaticDimensions is the dimensionality of the offline hash embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text. Document and query
// embeddings for the same text may legitimately differ: providers that
// distinguish retrieval tasks bias them differently.
type Embedder interface {
	// EmbedBatch generates document-task embeddings, order-preserving,
	// one vector per input text.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates a query-task embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
// Zero vectors are returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
