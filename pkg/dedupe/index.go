// Package dedupe tracks which photo IDs have already been acquired so a
// run never downloads or records the same photo twice.
package dedupe

import (
	"context"
	"sync"
)

// IDSource provides the committed photo IDs used to seed an index
type IDSource interface {
	LoadKnownIDs(ctx context.Context) ([]string, error)
}

// Index is an in-memory set of known photo IDs. It is seeded from the
// store at startup and grows as the run commits new photos.
type Index struct {
	mu    sync.RWMutex
	known map[string]struct{}
}

// New creates an empty index
func New() *Index {
	return &Index{
		known: make(map[string]struct{}),
	}
}

// Load builds an index seeded from the given source
func Load(ctx context.Context, src IDSource) (*Index, error) {
	ids, err := src.LoadKnownIDs(ctx)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		known: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		idx.known[id] = struct{}{}
	}
	return idx, nil
}

// IsKnown reports whether the given photo ID has been seen
func (i *Index) IsKnown(id string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	_, ok := i.known[id]
	return ok
}

// MarkKnown records a photo ID. Marking an already-known ID is a no-op.
func (i *Index) MarkKnown(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.known[id] = struct{}{}
}

// Len returns the number of known IDs
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.known)
}
