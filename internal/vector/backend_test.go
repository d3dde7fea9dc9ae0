package vector

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

func backends() map[string]func() Backend {
	return map[string]func() Backend{
		"sequential": func() Backend { return NewSequentialBackend() },
		"parallel":   func() Backend { return NewParallelBackend(3) },
	}
}

func exampleStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(2, [][]float32{{1, 0}, {0, 1}, {1, 1}}, NormSumAbs)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func randomStore(t testing.TB, n, dims int, seed int64) *Store {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, dims)
		for j := range vecs[i] {
			vecs[i][j] = r.Float32()*2 - 1
		}
	}
	s, err := NewStore(dims, vecs, NormSumAbs)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func indices(ns []Neighbor) []int {
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = n.Index
	}
	return out
}

func TestBackend_ExampleRanking(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			store := exampleStore(t)
			b := newBackend()
			if err := b.Setup(store); err != nil {
				t.Fatal(err)
			}
			defer b.Teardown()

			got, err := b.Search(context.Background(), store.Embedding(0), store.Norm(0), 2)
			if err != nil {
				t.Fatal(err)
			}
			want := []int{0, 2, 1}
			if len(got) != len(want) {
				t.Fatalf("got %d neighbours, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i].Index != want[i] {
					t.Fatalf("ranking = %v, want %v", indices(got), want)
				}
			}
			if got[0].Score != 1 || got[1].Score != 0.5 || got[2].Score != 0 {
				t.Errorf("scores = %v", got)
			}
		})
	}
}

func TestBackend_RankingProperties(t *testing.T) {
	store := randomStore(t, 300, 8, 1)
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			b := newBackend()
			if err := b.Setup(store); err != nil {
				t.Fatal(err)
			}
			defer b.Teardown()
			for _, k := range []int{1, 5, 11} {
				got, err := b.Search(context.Background(), store.Embedding(42), store.Norm(42), k)
				if err != nil {
					t.Fatal(err)
				}
				if len(got) != k+1 {
					t.Fatalf("k=%d: got %d neighbours, want %d", k, len(got), k+1)
				}
				seen := map[int]bool{}
				for i, n := range got {
					if n.Index < 0 || n.Index >= store.Len() {
						t.Errorf("index %d out of range", n.Index)
					}
					if seen[n.Index] {
						t.Errorf("duplicate index %d", n.Index)
					}
					seen[n.Index] = true
					if i > 0 && got[i-1].Score < n.Score {
						t.Errorf("scores not non-increasing at %d: %v", i, got)
					}
				}
			}
		})
	}
}

func TestBackend_SelfMatchLeadsUnderEuclideanNorm(t *testing.T) {
	// Under the sum-abs convention a vector's self similarity is |v|2^2/|v|1^2, which is below 1
	// and need not be the maximum, so the self-match property is checked with Euclidean norms.
	r := rand.New(rand.NewSource(6))
	vecs := make([][]float32, 300)
	for i := range vecs {
		vecs[i] = []float32{r.Float32() - 0.5, r.Float32() - 0.5, r.Float32() - 0.5, r.Float32() - 0.5}
	}
	store, err := NewStore(4, vecs, NormEuclidean)
	if err != nil {
		t.Fatal(err)
	}
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			b := newBackend()
			_ = b.Setup(store)
			defer b.Teardown()
			got, err := b.Search(context.Background(), store.Embedding(42), store.Norm(42), 11)
			if err != nil {
				t.Fatal(err)
			}
			if got[0].Index != 42 {
				t.Errorf("self match should lead, got %+v", got[0])
			}
			if d := got[0].Score - 1; d > 1e-5 || d < -1e-5 {
				t.Errorf("self score = %v, want ~1", got[0].Score)
			}
		})
	}
}

func TestBackend_Idempotent(t *testing.T) {
	store := randomStore(t, 200, 6, 2)
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			b := newBackend()
			_ = b.Setup(store)
			defer b.Teardown()
			q := []float32{0.1, -0.3, 0.5, 0.2, 0, -0.9}
			qn := store.NormOf(q)
			first, _ := b.Search(context.Background(), q, qn, 11)
			second, _ := b.Search(context.Background(), q, qn, 11)
			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("repeat search differs: %v vs %v", first, second)
				}
			}
		})
	}
}

func TestBackend_Agreement(t *testing.T) {
	store := randomStore(t, 1000, 16, 3)
	seq := NewSequentialBackend()
	par := NewParallelBackend(7)
	_ = seq.Setup(store)
	_ = par.Setup(store)
	defer seq.Teardown()
	defer par.Teardown()

	r := rand.New(rand.NewSource(4))
	ctx := context.Background()
	for trial := 0; trial < 25; trial++ {
		q := make([]float32, 16)
		for j := range q {
			q[j] = r.Float32()*2 - 1
		}
		qn := store.NormOf(q)
		a, err := seq.Search(ctx, q, qn, 11)
		if err != nil {
			t.Fatal(err)
		}
		b, err := par.Search(ctx, q, qn, 11)
		if err != nil {
			t.Fatal(err)
		}
		if len(a) != len(b) {
			t.Fatalf("length mismatch %d vs %d", len(a), len(b))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("trial %d rank %d: sequential %v, parallel %v", trial, i, indices(a), indices(b))
			}
		}
	}
}

func TestBackend_TiesKeepLowerIndex(t *testing.T) {
	vecs := [][]float32{{0, 1}, {1, 0}, {1, 0}, {1, 0}, {1, 0}}
	store, _ := NewStore(2, vecs, NormSumAbs)
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			b := newBackend()
			_ = b.Setup(store)
			defer b.Teardown()
			got, _ := b.Search(context.Background(), []float32{1, 0}, 1, 2)
			want := []int{1, 2, 3}
			for i := range want {
				if got[i].Index != want[i] {
					t.Fatalf("ranking = %v, want %v", indices(got), want)
				}
			}
		})
	}
}

func TestBackend_SmallStoreClamps(t *testing.T) {
	store := exampleStore(t)
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			b := newBackend()
			_ = b.Setup(store)
			defer b.Teardown()
			got, err := b.Search(context.Background(), []float32{1, 0}, 1, 11)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 3 {
				t.Errorf("expected all 3 vectors, got %d", len(got))
			}
		})
	}
}

func TestBackend_Errors(t *testing.T) {
	store := exampleStore(t)
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := newBackend()

			_, err := b.Search(ctx, []float32{1, 0}, 1, 2)
			if CodeOf(err) != CodeUnavailable || !errors.Is(err, ErrBackendUnavailable) {
				t.Errorf("search before setup: %v", err)
			}

			if err := b.Setup(nil); CodeOf(err) != CodeUnavailable {
				t.Errorf("setup(nil): %v", err)
			}
			_ = b.Setup(store)

			if _, err := b.Search(ctx, []float32{1, 0, 0}, 1, 2); CodeOf(err) != CodeInvalidQuery {
				t.Errorf("dimension mismatch: %v", err)
			}
			if _, err := b.Search(ctx, []float32{1, 0}, 1, 0); CodeOf(err) != CodeInvalidQuery {
				t.Errorf("k=0: %v", err)
			}

			canceled, cancel := context.WithCancel(ctx)
			cancel()
			if _, err := b.Search(canceled, []float32{1, 0}, 1, 2); CodeOf(err) != CodeCanceled {
				t.Errorf("canceled: %v", err)
			}

			_ = b.Teardown()
			if _, err := b.Search(ctx, []float32{1, 0}, 1, 2); CodeOf(err) != CodeUnavailable {
				t.Errorf("search after teardown: %v", err)
			}
		})
	}
}

func TestParallelBackend_SetupCopiesStore(t *testing.T) {
	store := exampleStore(t)
	b := NewParallelBackend(2)
	_ = b.Setup(store)
	defer b.Teardown()
	if &b.device.data[0] == &store.data[0] {
		t.Error("parallel backend should own a copy of the store")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeSuccess},
		{"backend error", &BackendError{Code: CodeInvalidQuery, Op: "x"}, CodeInvalidQuery},
		{"sentinel", ErrBackendUnavailable, CodeUnavailable},
		{"canceled", context.Canceled, CodeCanceled},
		{"other", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func benchmarkBackend(b *testing.B, backend Backend) {
	store := randomStore(b, 50000, 64, 5)
	if err := backend.Setup(store); err != nil {
		b.Fatal(err)
	}
	defer backend.Teardown()
	q := store.Embedding(7)
	qn := store.Norm(7)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := backend.Search(ctx, q, qn, 11); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSequentialBackend(b *testing.B) { benchmarkBackend(b, NewSequentialBackend()) }

func BenchmarkParallelBackend(b *testing.B) { benchmarkBackend(b, NewParallelBackend(0)) }
