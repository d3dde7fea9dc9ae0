package vector

import "fmt"

// Store holds the embeddings and their precomputed norms in contiguous memory.
// It is read-only after construction and safe to share between goroutines.
type Store struct {
	dimensions int
	kind       NormKind
	data       []float32
	norms      []float32
}

// NewStore copies vectors into a new store and computes their norms under kind.
func NewStore(dimensions int, vectors [][]float32, kind NormKind) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	s := &Store{
		dimensions: dimensions,
		kind:       kind,
		data:       make([]float32, 0, len(vectors)*dimensions),
		norms:      make([]float32, len(vectors)),
	}
	for i, vec := range vectors {
		if len(vec) != dimensions {
			return nil, fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), dimensions)
		}
		s.data = append(s.data, vec...)
		s.norms[i] = Norm(vec, kind)
	}
	return s, nil
}

// NewStoreWithNorms builds a store from vectors whose norms were computed by the producer.
// The norms must follow the kind convention; they are trusted as given.
func NewStoreWithNorms(dimensions int, vectors [][]float32, norms []float32, kind NormKind) (*Store, error) {
	if len(norms) != len(vectors) {
		return nil, fmt.Errorf("norms and vectors length mismatch: %d != %d", len(norms), len(vectors))
	}
	s, err := NewStore(dimensions, vectors, kind)
	if err != nil {
		return nil, err
	}
	copy(s.norms, norms)
	return s, nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	return len(s.norms)
}

// Dimensions returns the embedding width.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// NormKind returns the norm convention the stored norms follow.
func (s *Store) NormKind() NormKind {
	return s.kind
}

// NormOf computes the norm of v under the store's convention.
func (s *Store) NormOf(v []float32) float32 {
	return Norm(v, s.kind)
}

// Embedding returns a view of vector i. Callers must not modify it.
func (s *Store) Embedding(i int) []float32 {
	s.checkIndex(i)
	start := i * s.dimensions
	end := start + s.dimensions
	return s.data[start:end:end]
}

// Norm returns the precomputed norm of vector i.
func (s *Store) Norm(i int) float32 {
	s.checkIndex(i)
	return s.norms[i]
}

func (s *Store) checkIndex(i int) {
	if i < 0 || i >= len(s.norms) {
		panic(fmt.Sprintf("vector: index %d out of range [0, %d)", i, len(s.norms)))
	}
}
