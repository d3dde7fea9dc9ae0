// Package loader reads embedding files into a sorted, index-aligned dataset.
package loader

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/nearest/internal/vector"
	"github.com/hyperjump/nearest/internal/vocab"
)

// ErrLoad marks every loading failure. Callers must not start a session after it.
var ErrLoad = errors.New("embeddings not loaded")

// Dataset is a vocabulary with index-aligned embeddings. Norms is nil when the source did not
// carry precomputed norms.
type Dataset struct {
	Words      []string
	Vectors    [][]float32
	Norms      []float32
	Dimensions int
	// Duplicates counts words dropped because an earlier line already defined them.
	Duplicates int
}

// CheckFinite reports the first NaN or infinite value in values.
func CheckFinite(values []float32) error {
	for i, v := range values {
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("component %d is %v", i, v)
		}
	}
	return nil
}

// Len returns the number of entries.
func (d *Dataset) Len() int {
	return len(d.Words)
}

// sortByWord orders the dataset by word, keeping the first occurrence of a repeated word.
func (d *Dataset) sortByWord() {
	order := make([]int, len(d.Words))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return d.Words[order[a]] < d.Words[order[b]] })

	words := make([]string, 0, len(order))
	vectors := make([][]float32, 0, len(order))
	var norms []float32
	if d.Norms != nil {
		norms = make([]float32, 0, len(order))
	}
	for _, i := range order {
		if n := len(words); n > 0 && words[n-1] == d.Words[i] {
			d.Duplicates++
			continue
		}
		words = append(words, d.Words[i])
		vectors = append(vectors, d.Vectors[i])
		if norms != nil {
			norms = append(norms, d.Norms[i])
		}
	}
	d.Words, d.Vectors, d.Norms = words, vectors, norms
}

// Build turns the dataset into the read-only store and the vocabulary that indexes it.
// Precomputed norms are used as given; otherwise they are computed under kind.
func Build(d *Dataset, kind vector.NormKind) (*vector.Store, *vocab.Vocabulary, error) {
	if d.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: no embeddings", ErrLoad)
	}
	var (
		store *vector.Store
		err   error
	)
	if d.Norms != nil {
		store, err = vector.NewStoreWithNorms(d.Dimensions, d.Vectors, d.Norms, kind)
	} else {
		store, err = vector.NewStore(d.Dimensions, d.Vectors, kind)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	words, err := vocab.New(d.Words)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return store, words, nil
}
