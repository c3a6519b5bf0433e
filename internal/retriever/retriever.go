// Package retriever turns a free-text query into a ranked context set by
// embedding the query, searching the vector index and applying a secondary
// lexical-overlap filter against low-relevance matches.
package retriever

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"secondbrain/internal/domain"
	"secondbrain/internal/log"
)

// Retriever orchestrates the embedder and the vector index for queries.
type Retriever struct {
	embedder domain.Embedder
	idx      domain.VectorIndex
	logger   log.Logger
	// lexicalFloor is the minimum Ochiai token-overlap coefficient between
	// query and chunk. Purely semantic matches below it are discarded to
	// reduce hallucination risk from weakly related context.
	lexicalFloor float64
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLexicalFloor overrides the default secondary relevance floor.
func WithLexicalFloor(floor float64) Option {
	return func(r *Retriever) { r.lexicalFloor = floor }
}

func New(embedder domain.Embedder, idx domain.VectorIndex, logger log.Logger, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:     embedder,
		idx:          idx,
		logger:       logger,
		lexicalFloor: 0.05,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to maxChunks chunks for the owner, ranked by
// similarity. An empty result is a valid outcome, never an error: absence
// of saved context is expected for new users.
func (r *Retriever) Retrieve(ctx context.Context, query, owner string, maxChunks int, minScore float64) ([]domain.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results := r.idx.Search(vec, owner, maxChunks, minScore)
	if len(results) == 0 {
		return nil, nil
	}
	qset := tokenSet(query)
	filtered := results[:0]
	for _, res := range results {
		if ochiai(qset, res.Chunk.Text) >= r.lexicalFloor {
			filtered = append(filtered, res)
		}
	}
	if dropped := len(results) - len(filtered); dropped > 0 {
		r.logger.Debug("dropped low-overlap matches", "owner", owner, "dropped", dropped)
	}
	return filtered, nil
}

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// ochiai computes |A∩B| / sqrt(|A||B|) over the distinct token sets of the
// query and the chunk text.
func ochiai(qset map[string]struct{}, text string) float64 {
	if len(qset) == 0 {
		return 0
	}
	seen := make(map[string]struct{})
	inter := 0
	for _, t := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(seen) == 0 {
		return 0
	}
	return float64(inter) / (math.Sqrt(float64(len(qset))) * math.Sqrt(float64(len(seen))))
}
