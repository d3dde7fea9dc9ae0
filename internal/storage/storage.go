// Package storage defines the persistence interface for imported embeddings.
package storage

import (
	"context"

	"github.com/hyperjump/nearest/internal/loader"
	"github.com/hyperjump/nearest/internal/vector"
)

// Storage persists a vocabulary with its embeddings and norms.
type Storage interface {
	// SaveDataset replaces the stored embeddings with d. norms must be computed under kind.
	SaveDataset(ctx context.Context, d *loader.Dataset, norms []float32, kind vector.NormKind) error
	// LoadDataset returns every embedding ordered by word. Stored norms are only returned
	// when they were computed under kind; otherwise Norms is nil and callers recompute.
	LoadDataset(ctx context.Context, kind vector.NormKind) (*loader.Dataset, error)

	CountWords(ctx context.Context) (int64, error)
	Metadata(ctx context.Context, key string) (string, error)

	Close() error
}
