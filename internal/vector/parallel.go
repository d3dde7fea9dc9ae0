package vector

import (
	"container/heap"
	"context"
	"runtime"
	"sort"
	"sync"
)

// ParallelBackend is the accelerated backend. Setup copies the store into a private buffer,
// and Search splits the index range across worker goroutines. Each worker keeps a bounded
// min-heap of its k+1 best candidates; the partial results are merged at the end.
//
// Scores come from the same Similarity function the sequential backend uses, so both backends
// agree on every score bit for bit and therefore on the ranking.
type ParallelBackend struct {
	workers int
	device  *Store
	mu      sync.RWMutex
}

// NewParallelBackend creates a backend using the given number of workers.
// workers <= 0 means one per CPU.
func NewParallelBackend(workers int) *ParallelBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &ParallelBackend{workers: workers}
}

// Type returns the backend type identifier.
func (b *ParallelBackend) Type() string {
	return string(BackendParallel)
}

// Workers returns the configured worker count.
func (b *ParallelBackend) Workers() int {
	return b.workers
}

// Setup copies store into backend-owned memory. Calling Setup again replaces the copy.
func (b *ParallelBackend) Setup(store *Store) error {
	if store == nil {
		return &BackendError{Code: CodeUnavailable, Op: "parallel setup", Err: ErrBackendUnavailable}
	}
	device := &Store{
		dimensions: store.dimensions,
		kind:       store.kind,
		data:       make([]float32, len(store.data)),
		norms:      make([]float32, len(store.norms)),
	}
	copy(device.data, store.data)
	copy(device.norms, store.norms)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.device = device
	return nil
}

// Teardown frees the device copy.
func (b *ParallelBackend) Teardown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device = nil
	return nil
}

// Search returns the top k+1 neighbours. The caller blocks until every worker is done.
func (b *ParallelBackend) Search(ctx context.Context, query []float32, queryNorm float32, k int) ([]Neighbor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := validateQuery(ctx, "parallel search", b.device, query, k); err != nil {
		return nil, err
	}
	device := b.device
	n := device.Len()
	m := slots(k, n)
	if m == 0 {
		return []Neighbor{}, nil
	}

	workers := min(b.workers, n)
	chunk := (n + workers - 1) / workers
	partials := make([][]Neighbor, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			partials[w] = topRange(device, query, queryNorm, lo, hi, m)
		}(w, lo, hi)
	}
	wg.Wait()

	merged := make([]Neighbor, 0, workers*m)
	for _, p := range partials {
		merged = append(merged, p...)
	}
	sort.Slice(merged, func(i, j int) bool { return ranksAbove(merged[i], merged[j]) })
	if len(merged) > m {
		merged = merged[:m]
	}
	return merged, nil
}

// topRange returns the best m neighbours among indices [lo, hi), unordered.
func topRange(store *Store, query []float32, queryNorm float32, lo, hi, m int) []Neighbor {
	h := make(worstFirst, 0, m)
	for i := lo; i < hi; i++ {
		candidate := Neighbor{
			Index: i,
			Score: Similarity(query, queryNorm, store.Embedding(i), store.Norm(i)),
		}
		if len(h) < m {
			heap.Push(&h, candidate)
			continue
		}
		if ranksAbove(candidate, h[0]) {
			h[0] = candidate
			heap.Fix(&h, 0)
		}
	}
	return h
}

// ranksAbove orders by score descending, then by index ascending. Among equal scores this
// matches the order the sequential backend's stable replacement produces.
func ranksAbove(a, b Neighbor) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// worstFirst is a heap whose root is the lowest-ranked neighbour.
type worstFirst []Neighbor

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return ranksAbove(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x any) {
	*h = append(*h, x.(Neighbor))
}

func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
