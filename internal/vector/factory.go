package vector

import "fmt"

// BackendType represents the kind of search backend to use.
type BackendType string

const (
	// BackendSequential scans on a single goroutine. It is the reference for rankings.
	BackendSequential BackendType = "sequential"
	// BackendParallel fans the scan out across worker goroutines.
	BackendParallel BackendType = "parallel"
)

// NewBackend creates a backend of the specified type.
// Supported types: "parallel" (default), "sequential". workers only applies to parallel.
func NewBackend(backendType string, workers int) (Backend, error) {
	switch BackendType(backendType) {
	case BackendParallel, "":
		return NewParallelBackend(workers), nil
	case BackendSequential:
		return NewSequentialBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s (supported: parallel, sequential)", backendType)
	}
}
