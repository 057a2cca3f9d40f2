// Package embedding generates vector embeddings for Tier 2 memory records
// and similarity queries: an Engine interface, a factory selecting the
// configured backend, and CosineSimilarity/FindTopK utilities shared by
// every backend's retrieval path.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/loomhq/loom/internal/logging"
	"go.uber.org/zap"
)

// Engine generates vector embeddings for text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Config selects and configures an embedding backend.
type Config struct {
	Provider string // "genai" or "local"

	GenAIAPIKey string
	GenAIModel  string // default "gemini-embedding-001"
	TaskType    string // "SEMANTIC_SIMILARITY", "RETRIEVAL_QUERY", "RETRIEVAL_DOCUMENT", ...

	LocalDimensions int // default 256
}

// DefaultConfig prefers the offline fallback so the memory manager works
// without network access or an API key.
func DefaultConfig() Config {
	return Config{
		Provider:        "local",
		GenAIModel:      "gemini-embedding-001",
		TaskType:        "SEMANTIC_SIMILARITY",
		LocalDimensions: 256,
	}
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg Config) (Engine, error) {
	log := logging.Get(logging.CategoryEmbedding)

	switch cfg.Provider {
	case "local", "":
		log.Info("initializing local embedding engine", zap.Int("dimensions", cfg.LocalDimensions))
		return NewLocalEngine(cfg.LocalDimensions), nil
	case "genai":
		log.Info("initializing genai embedding engine", zap.String("model", cfg.GenAIModel))
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		return nil, fmt.Errorf("embedding: unsupported provider %q (use \"local\" or \"genai\")", cfg.Provider)
	}
}

// CosineSimilarity computes the cosine similarity between two equal-length
// vectors; 1 is identical, 0 is orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding: vector dimension mismatch: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// SimilarityResult is one scored entry from FindTopK.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK ranks corpus against query by cosine similarity and returns the
// k best. Vectors whose dimension doesn't match query are skipped rather
// than failing the whole query.
func FindTopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}

	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}

	if len(results) > k {
		results = results[:k]
	}
	return results
}
