package embedding

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secondbrain/internal/domain"
)

func TestHashEmbedDeterministic(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()
	a, err := e.Embed(ctx, "Paris is the capital of France.")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Paris is the capital of France.")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
}

func TestHashEmbedNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	vec, err := e.Embed(context.Background(), "vectors should have unit length after normalization")
	require.NoError(t, err)
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestHashEmbedRejectsBadInput(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	_, err := e.Embed(ctx, "")
	assert.ErrorIs(t, err, domain.ErrEmbedding)

	_, err = e.Embed(ctx, "   \n\t ")
	assert.ErrorIs(t, err, domain.ErrEmbedding)

	_, err = e.Embed(ctx, strings.Repeat("a", MaxInputBytes+1))
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestHashEmbedBatchPreservesOrder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	texts := []string{"first text about cats", "second text about dogs", "third text about birds"}
	vecs, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, vecs[i])
	}
}

func TestHashEmbedSimilarTextsScoreHigher(t *testing.T) {
	e := NewHashEmbedder(384)
	ctx := context.Background()
	q, err := e.Embed(ctx, "What is the capital of France?")
	require.NoError(t, err)
	rel, err := e.Embed(ctx, "Paris is the capital of France.")
	require.NoError(t, err)
	unrel, err := e.Embed(ctx, "Quarterly revenue grew eight percent year over year.")
	require.NoError(t, err)
	assert.Greater(t, dot(q, rel), dot(q, unrel))
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
