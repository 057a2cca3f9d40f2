package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalEngine_Deterministic(t *testing.T) {
	e := NewLocalEngine(32)
	ctx := context.Background()

	a, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "hello world")
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := e.Embed(ctx, "something else entirely")
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestGenAIEngine_DimensionsFallsBackUntilObserved(t *testing.T) {
	e := &GenAIEngine{model: "gemini-embedding-001"}
	require.Equal(t, 768, e.Dimensions())

	e.recordDimensions(3072)
	require.Equal(t, 3072, e.Dimensions())
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	e := NewLocalEngine(16)
	v, err := e.Embed(context.Background(), "vector")
	require.NoError(t, err)

	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	require.InDelta(t, 1.0, sim, 1e-6)
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)
}

func TestFindTopK_RanksBySimilarity(t *testing.T) {
	e := NewLocalEngine(16)
	ctx := context.Background()

	query, err := e.Embed(ctx, "needle")
	require.NoError(t, err)

	corpus := make([][]float32, 0, 5)
	for _, text := range []string{"needle", "hay", "straw", "grass", "dirt"} {
		v, err := e.Embed(ctx, text)
		require.NoError(t, err)
		corpus = append(corpus, v)
	}

	results := FindTopK(query, corpus, 3)
	require.Len(t, results, 3)
	require.Equal(t, 0, results[0].Index)
}

func TestNewEngine_DefaultsToLocal(t *testing.T) {
	eng, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 256, eng.Dimensions())
}

func TestNewEngine_RejectsUnknownProvider(t *testing.T) {
	_, err := NewEngine(Config{Provider: "bogus"})
	require.Error(t, err)
}
