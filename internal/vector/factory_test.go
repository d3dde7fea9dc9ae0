package vector

import (
	"context"
	"testing"
)

func TestNewBackend_Parallel(t *testing.T) {
	b, err := NewBackend("parallel", 2)
	if err != nil {
		t.Fatalf("NewBackend(parallel): %v", err)
	}
	if b.Type() != "parallel" {
		t.Errorf("Type()=%q, want parallel", b.Type())
	}
	if pb, ok := b.(*ParallelBackend); !ok || pb.Workers() != 2 {
		t.Errorf("expected *ParallelBackend with 2 workers, got %T", b)
	}
}

func TestNewBackend_Empty(t *testing.T) {
	// Empty string should default to parallel
	b, err := NewBackend("", 0)
	if err != nil {
		t.Fatalf("NewBackend(''): %v", err)
	}
	if b.Type() != "parallel" {
		t.Errorf("Type()=%q, want parallel", b.Type())
	}
	if b.(*ParallelBackend).Workers() < 1 {
		t.Error("workers should default to at least one")
	}
}

func TestNewBackend_Sequential(t *testing.T) {
	b, err := NewBackend("sequential", 0)
	if err != nil {
		t.Fatalf("NewBackend(sequential): %v", err)
	}
	store, _ := NewStore(2, [][]float32{{1, 0}, {0, 1}}, NormSumAbs)
	if err := b.Setup(store); err != nil {
		t.Fatal(err)
	}
	defer b.Teardown()
	got, err := b.Search(context.Background(), []float32{1, 0}, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Index != 0 {
		t.Errorf("Search: got %v", got)
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := NewBackend("cuda", 0)
	if err == nil {
		t.Error("expected error for unknown backend type")
	}
}
