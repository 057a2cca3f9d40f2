package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

// LocalEngine produces deterministic embeddings from a seeded PRNG keyed by
// the text's FNV hash, so the same text always maps to the same vector
// without any network call or model weights. It exists for offline
// development and tests; retrieval quality is not its goal, stability is.
type LocalEngine struct {
	dimensions int
}

// NewLocalEngine builds a LocalEngine producing vectors of the given
// dimensionality (256 if dims <= 0).
func NewLocalEngine(dims int) *LocalEngine {
	if dims <= 0 {
		dims = 256
	}
	return &LocalEngine{dimensions: dims}
}

// Embed deterministically derives a unit vector from text's hash.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	return deterministicVector(text, e.dimensions), nil
}

// EmbedBatch embeds each text independently.
func (e *LocalEngine) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, e.dimensions)
	}
	return out, nil
}

// Dimensions returns the configured vector size.
func (e *LocalEngine) Dimensions() int { return e.dimensions }

// Name identifies this engine for logging.
func (e *LocalEngine) Name() string { return "local:fnv-seeded" }

func deterministicVector(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	r := rand.New(rand.NewSource(int64(seed)))
	vec := make([]float32, dims)
	var mag float64
	for i := range vec {
		v := r.NormFloat64()
		vec[i] = float32(v)
		mag += v * v
	}

	mag = math.Sqrt(mag)
	if mag == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / mag)
	}
	return vec
}
