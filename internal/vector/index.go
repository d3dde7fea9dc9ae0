// Package vector provides the embedding store and the top-K search backends.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// Backend ranks every stored vector against a query and returns the best k+1.
// The extra slot leaves room for the query's own entry, which callers filter out.
type Backend interface {
	// Setup hands the backend the store it will search. It must be called once before Search.
	Setup(store *Store) error
	// Search returns min(k+1, store.Len()) neighbours ordered by descending score.
	// On error no partial ranking is returned.
	Search(ctx context.Context, query []float32, queryNorm float32, k int) ([]Neighbor, error)
	// Teardown releases whatever Setup acquired. Search fails afterwards.
	Teardown() error
	Type() string
}

// Neighbor is one ranked hit: the store index and its cosine similarity to the query.
type Neighbor struct {
	Index int
	Score float32
}

// ErrorCode is the numeric status a backend reports. It doubles as the process exit code.
type ErrorCode int

const (
	CodeSuccess ErrorCode = iota
	CodeUnavailable
	CodeInvalidQuery
	CodeCanceled
	CodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeUnavailable:
		return "backend unavailable"
	case CodeInvalidQuery:
		return "invalid query"
	case CodeCanceled:
		return "canceled"
	default:
		return "internal error"
	}
}

// ErrBackendUnavailable is returned when a backend is searched before Setup or after Teardown.
var ErrBackendUnavailable = errors.New("backend unavailable")

// BackendError is the failure type every backend returns.
type BackendError struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// CodeOf maps err to the code a backend would report for it. nil is CodeSuccess.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeSuccess
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	switch {
	case errors.Is(err, ErrBackendUnavailable):
		return CodeUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}

// validateQuery checks the arguments shared by every backend's Search.
func validateQuery(ctx context.Context, op string, store *Store, query []float32, k int) error {
	if store == nil {
		return &BackendError{Code: CodeUnavailable, Op: op, Err: ErrBackendUnavailable}
	}
	if err := ctx.Err(); err != nil {
		return &BackendError{Code: CodeCanceled, Op: op, Err: err}
	}
	if len(query) != store.Dimensions() {
		return &BackendError{
			Code: CodeInvalidQuery,
			Op:   op,
			Err:  fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), store.Dimensions()),
		}
	}
	if k < 1 {
		return &BackendError{Code: CodeInvalidQuery, Op: op, Err: fmt.Errorf("k must be positive, got %d", k)}
	}
	return nil
}

// slots returns how many neighbours a search over n vectors yields for k.
func slots(k, n int) int {
	if k+1 > n {
		return n
	}
	return k + 1
}
