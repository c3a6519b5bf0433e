// Package index implements the in-memory cosine similarity index over
// embedded chunks. Owner filtering is a post-filter over one global index,
// which is acceptable at single-user or small-team scale; per-tenant
// partitioning is out of scope.
package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"secondbrain/internal/domain"
)

type entry struct {
	Chunk  domain.Chunk `json:"chunk"`
	Vector []float64    `json:"vector"`
	// Seq records insertion order for deterministic tie-breaking.
	Seq uint64 `json:"seq"`
}

// Index is a brute-force cosine similarity index guarded by a RWMutex:
// concurrent searches observe either the pre- or post-mutation state,
// never a partial one.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
	byID      map[string]int // chunk id -> position in entries
	nextSeq   uint64
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, errors.New("invalid dimension")
	}
	return &Index{
		dimension: dimension,
		byID:      make(map[string]int),
	}, nil
}

// Dimension returns the vector size the index was created with.
func (ix *Index) Dimension() int {
	return ix.dimension
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Upsert adds an entry, replacing any existing entry with the same chunk id.
// A replacement keeps the original insertion order.
func (ix *Index) Upsert(chunk domain.Chunk, vector []float64) error {
	if chunk.ID == "" {
		return errors.New("empty chunk id")
	}
	if len(vector) != ix.dimension {
		return fmt.Errorf("vector dimension %d, index expects %d", len(vector), ix.dimension)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if pos, ok := ix.byID[chunk.ID]; ok {
		seq := ix.entries[pos].Seq
		ix.entries[pos] = entry{Chunk: chunk, Vector: vector, Seq: seq}
		return nil
	}
	ix.entries = append(ix.entries, entry{Chunk: chunk, Vector: vector, Seq: ix.nextSeq})
	ix.byID[chunk.ID] = len(ix.entries) - 1
	ix.nextSeq++
	return nil
}

// Delete removes the entry with the given chunk id. Absent ids are a no-op.
func (ix *Index) Delete(chunkID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.deleteLocked(chunkID)
}

// DeleteDocument removes every chunk of a document and reports how many
// entries were dropped.
func (ix *Index) DeleteDocument(documentID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var ids []string
	for _, e := range ix.entries {
		if e.Chunk.DocumentID == documentID {
			ids = append(ids, e.Chunk.ID)
		}
	}
	for _, id := range ids {
		ix.deleteLocked(id)
	}
	return len(ids)
}

// DeleteOwner purges all entries for an owner key.
func (ix *Index) DeleteOwner(owner string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var ids []string
	for _, e := range ix.entries {
		if e.Chunk.Owner == owner {
			ids = append(ids, e.Chunk.ID)
		}
	}
	for _, id := range ids {
		ix.deleteLocked(id)
	}
	return len(ids)
}

func (ix *Index) deleteLocked(chunkID string) {
	pos, ok := ix.byID[chunkID]
	if !ok {
		return
	}
	last := len(ix.entries) - 1
	if pos != last {
		ix.entries[pos] = ix.entries[last]
		ix.byID[ix.entries[pos].Chunk.ID] = pos
	}
	ix.entries = ix.entries[:last]
	delete(ix.byID, chunkID)
}

// Search returns up to k entries for the owner ranked by descending cosine
// similarity, excluding scores below minScore. Ties are broken by insertion
// order, earlier first.
func (ix *Index) Search(vector []float64, owner string, k int, minScore float64) []domain.SearchResult {
	if k <= 0 {
		k = 5
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type scored struct {
		e     entry
		score float64
	}
	var matches []scored
	for _, e := range ix.entries {
		if e.Chunk.Owner != owner {
			continue
		}
		score := cosine(vector, e.Vector)
		if score < minScore {
			continue
		}
		matches = append(matches, scored{e: e, score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].e.Seq < matches[j].e.Seq
	})
	if k > len(matches) {
		k = len(matches)
	}
	results := make([]domain.SearchResult, 0, k)
	for _, m := range matches[:k] {
		results = append(results, domain.SearchResult{Chunk: m.e.Chunk, Score: m.score})
	}
	return results
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
