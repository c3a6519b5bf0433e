package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secondbrain/internal/domain"
)

func chunk(id, owner, text string) domain.Chunk {
	return domain.Chunk{ID: id, DocumentID: "doc-" + id, Owner: owner, Text: text}
}

func TestUpsertThenSearchTopRank(t *testing.T) {
	ix, err := New(3)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(chunk("a", "u1", "alpha"), []float64{1, 0, 0}))
	require.NoError(t, ix.Upsert(chunk("b", "u1", "beta"), []float64{0, 1, 0}))

	results := ix.Search([]float64{1, 0, 0}, "u1", 5, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestUpsertReplacesExistingID(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(chunk("a", "u1", "old"), []float64{1, 0}))
	require.NoError(t, ix.Upsert(chunk("a", "u1", "new"), []float64{0, 1}))
	assert.Equal(t, 1, ix.Len())

	results := ix.Search([]float64{0, 1}, "u1", 5, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Chunk.Text)
}

func TestDeleteExcludesID(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, ix.Upsert(chunk(id, "u1", id), []float64{1, 0}))
	}
	ix.Delete("c4")
	results := ix.Search([]float64{1, 0}, "u1", 20, 0)
	assert.Len(t, results, 9)
	for _, r := range results {
		assert.NotEqual(t, "c4", r.Chunk.ID)
	}
	// absent id is a no-op
	ix.Delete("nope")
	assert.Equal(t, 9, ix.Len())
}

func TestSearchNeverCrossesOwners(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(chunk("a", "userA", "a"), []float64{1, 0}))
	require.NoError(t, ix.Upsert(chunk("b", "userB", "b"), []float64{1, 0}))

	for _, r := range ix.Search([]float64{1, 0}, "userA", 10, 0) {
		assert.Equal(t, "userA", r.Chunk.Owner)
	}
	assert.Empty(t, ix.Search([]float64{1, 0}, "userC", 10, 0))
}

func TestSearchMinScoreAndK(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(chunk("close", "u1", "close"), []float64{1, 0}))
	require.NoError(t, ix.Upsert(chunk("far", "u1", "far"), []float64{0, 1}))
	require.NoError(t, ix.Upsert(chunk("mid", "u1", "mid"), []float64{1, 1}))

	results := ix.Search([]float64{1, 0}, "u1", 10, 0.5)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].Chunk.ID)
	assert.Equal(t, "mid", results[1].Chunk.ID)

	results = ix.Search([]float64{1, 0}, "u1", 1, 0)
	assert.Len(t, results, 1)
}

func TestSearchTieBrokenByInsertionOrder(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(chunk("second", "u1", "s"), []float64{2, 0}))
	require.NoError(t, ix.Upsert(chunk("first", "u1", "f"), []float64{3, 0}))

	// identical direction means identical cosine score
	results := ix.Search([]float64{1, 0}, "u1", 2, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "second", results[0].Chunk.ID, "earlier insertion wins the tie")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(chunk("a", "u1", "alpha text"), []float64{1, 0}))
	require.NoError(t, ix.Upsert(chunk("b", "u2", "beta text"), []float64{0, 1}))
	require.NoError(t, ix.Save(path))

	loaded, err := New(2)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Len())

	results := loaded.Search([]float64{1, 0}, "u1", 5, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha text", results[0].Chunk.Text)

	// id map restored: delete and upsert still behave
	loaded.Delete("a")
	assert.Equal(t, 1, loaded.Len())
}

func TestLoadMissingFileWarnsAndStartsEmpty(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	warn := ix.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, warn)
	assert.NotErrorIs(t, warn, domain.ErrIndexCorrupt)
	assert.Equal(t, 0, ix.Len())
}

func TestLoadTruncatedFileWarnsAndStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(chunk("a", "u1", "alpha"), []float64{1, 0}))
	require.NoError(t, ix.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	fresh, err := New(2)
	require.NoError(t, err)
	warn := fresh.Load(path)
	assert.ErrorIs(t, warn, domain.ErrIndexCorrupt)
	assert.Equal(t, 0, fresh.Len())
}

func TestLoadDimensionMismatchWarns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(chunk("a", "u1", "alpha"), []float64{1, 0}))
	require.NoError(t, ix.Save(path))

	other, err := New(3)
	require.NoError(t, err)
	warn := other.Load(path)
	assert.ErrorIs(t, warn, domain.ErrIndexCorrupt)
	assert.Equal(t, 0, other.Len())
}

func TestConcurrentMutationAndSearch(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				_ = ix.Upsert(chunk(id, "u1", id), []float64{1, float64(i)})
				if i%3 == 0 {
					ix.Delete(id)
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = ix.Search([]float64{1, 0}, "u1", 5, 0)
		}
	}()
	wg.Wait()

	// id map must stay consistent with the entry slice
	results := ix.Search([]float64{1, 0}, "u1", ix.Len()+1, -1)
	seen := make(map[string]bool)
	for _, r := range results {
		assert.False(t, seen[r.Chunk.ID], "duplicate id in results")
		seen[r.Chunk.ID] = true
	}
}

func TestDeleteOwnerPurges(t *testing.T) {
	ix, err := New(2)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(chunk("a1", "alice", "one"), []float64{1, 0}))
	require.NoError(t, ix.Upsert(chunk("a2", "alice", "two"), []float64{0, 1}))
	require.NoError(t, ix.Upsert(chunk("b1", "bob", "keep"), []float64{1, 0}))

	assert.Equal(t, 2, ix.DeleteOwner("alice"))
	assert.Equal(t, 1, ix.Len())
	assert.Empty(t, ix.Search([]float64{1, 0}, "alice", 5, 0))
	assert.Len(t, ix.Search([]float64{1, 0}, "bob", 5, 0), 1)
}
