package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"secondbrain/internal/domain"
)

// snapshot is the on-disk form of the index. The format is not promised to
// be cross-version stable; Load rejects anything it cannot read.
type snapshot struct {
	Dimension int     `json:"dimension"`
	NextSeq   uint64  `json:"next_seq"`
	Entries   []entry `json:"entries"`
}

// Save serializes the index to path. The entries are snapshotted under the
// read lock and marshaled and written afterwards, so searches are only
// blocked for the copy, not for disk I/O. The file is written to a
// temporary name and renamed into place.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	snap := snapshot{
		Dimension: ix.dimension,
		NextSeq:   ix.nextSeq,
		Entries:   make([]entry, len(ix.entries)),
	}
	copy(snap.Entries, ix.entries)
	ix.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load replaces the index contents from the file at path. A missing,
// unreadable or dimension-mismatched file leaves the index empty and
// returns a non-nil warning; availability is preferred over durability, and
// the caller decides whether to re-ingest.
func (ix *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		ix.reset()
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("index file %s does not exist, starting empty", path)
		}
		return fmt.Errorf("%w: %v", domain.ErrIndexCorrupt, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		ix.reset()
		return fmt.Errorf("%w: %v", domain.ErrIndexCorrupt, err)
	}
	if snap.Dimension != ix.dimension {
		ix.reset()
		return fmt.Errorf("%w: stored dimension %d does not match configured embedder dimension %d",
			domain.ErrIndexCorrupt, snap.Dimension, ix.dimension)
	}
	byID := make(map[string]int, len(snap.Entries))
	for pos, e := range snap.Entries {
		if e.Chunk.ID == "" || len(e.Vector) != snap.Dimension {
			ix.reset()
			return fmt.Errorf("%w: malformed entry at position %d", domain.ErrIndexCorrupt, pos)
		}
		if _, dup := byID[e.Chunk.ID]; dup {
			ix.reset()
			return fmt.Errorf("%w: duplicate chunk id %s", domain.ErrIndexCorrupt, e.Chunk.ID)
		}
		byID[e.Chunk.ID] = pos
	}
	ix.mu.Lock()
	ix.entries = snap.Entries
	ix.byID = byID
	ix.nextSeq = snap.NextSeq
	ix.mu.Unlock()
	return nil
}

func (ix *Index) reset() {
	ix.mu.Lock()
	ix.entries = nil
	ix.byID = make(map[string]int)
	ix.nextSeq = 0
	ix.mu.Unlock()
}
