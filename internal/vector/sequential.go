package vector

import (
	"context"
	"sort"
	"sync"
)

// SequentialBackend is the single-threaded reference backend. It scores every vector and keeps
// the best k+1 by worst-slot replacement: the buffer is re-sorted whenever a candidate beats
// one of its entries. Other backends are checked against its rankings.
type SequentialBackend struct {
	store *Store
	mu    sync.RWMutex
}

// NewSequentialBackend returns a backend that must be Setup before use.
func NewSequentialBackend() *SequentialBackend {
	return &SequentialBackend{}
}

// Type returns the backend type identifier.
func (b *SequentialBackend) Type() string {
	return string(BackendSequential)
}

// Setup retains a reference to store; nothing is copied.
func (b *SequentialBackend) Setup(store *Store) error {
	if store == nil {
		return &BackendError{Code: CodeUnavailable, Op: "sequential setup", Err: ErrBackendUnavailable}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = store
	return nil
}

// Teardown drops the store reference.
func (b *SequentialBackend) Teardown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = nil
	return nil
}

// Search scans the whole store and returns the top k+1 neighbours.
func (b *SequentialBackend) Search(ctx context.Context, query []float32, queryNorm float32, k int) ([]Neighbor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := validateQuery(ctx, "sequential search", b.store, query, k); err != nil {
		return nil, err
	}
	store := b.store
	n := store.Len()

	similarities := make([]Neighbor, n)
	for i := 0; i < n; i++ {
		similarities[i] = Neighbor{
			Index: i,
			Score: Similarity(query, queryNorm, store.Embedding(i), store.Norm(i)),
		}
	}

	m := slots(k, n)
	ordered := make([]Neighbor, m)
	copy(ordered, similarities[:m])
	sortDescending(ordered)
	if m == 0 {
		return ordered, nil
	}
	last := m - 1
	for i := m; i < n; i++ {
		candidate := similarities[i]
		for j := range ordered {
			if ordered[j].Score < candidate.Score {
				ordered[last] = candidate
				sortDescending(ordered)
				break
			}
		}
	}
	return ordered, nil
}

// sortDescending orders by score only. The sort is stable, so among equal scores the entry
// that entered the buffer first stays ahead and a new equal candidate never evicts it.
func sortDescending(ns []Neighbor) {
	sort.SliceStable(ns, func(a, b int) bool { return ns[a].Score > ns[b].Score })
}
