package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/nearest/internal/vector"
)

const sample = `c 1 1
a 1 0
b 0 1
`

func TestReadText(t *testing.T) {
	d, err := ReadText(strings.NewReader(sample), 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.Dimensions != 2 || d.Len() != 3 {
		t.Fatalf("Dimensions=%d Len=%d", d.Dimensions, d.Len())
	}
	wantWords := []string{"a", "b", "c"}
	for i, w := range wantWords {
		if d.Words[i] != w {
			t.Errorf("Words = %v, want %v", d.Words, wantWords)
		}
	}
	// Vectors must move with their words.
	if d.Vectors[2][0] != 1 || d.Vectors[2][1] != 1 {
		t.Errorf("vector for c = %v", d.Vectors[2])
	}
	if d.Norms != nil {
		t.Error("text files carry no norms")
	}
}

func TestReadText_HeaderAndBlankLines(t *testing.T) {
	in := "3 2\n\nb 0 1\na 1 0\n\nc 1 1\n"
	d, err := ReadText(strings.NewReader(in), 2)
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 3 || d.Words[0] != "a" {
		t.Errorf("Words = %v", d.Words)
	}
}

func TestReadText_DuplicatesKeepFirst(t *testing.T) {
	in := "a 1 0\nb 0 1\na 5 5\n"
	d, err := ReadText(strings.NewReader(in), 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 2 || d.Duplicates != 1 {
		t.Fatalf("Len=%d Duplicates=%d", d.Len(), d.Duplicates)
	}
	if d.Vectors[0][0] != 1 {
		t.Errorf("first definition of a should win, got %v", d.Vectors[0])
	}
}

func TestReadText_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		dims int
	}{
		{"empty", "", 0},
		{"dimension mismatch", "a 1 0\nb 1\n", 0},
		{"configured dims", "a 1 0\n", 3},
		{"bad float", "a 1 x\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadText(strings.NewReader(tt.in), tt.dims)
			if !errors.Is(err, ErrLoad) {
				t.Errorf("expected ErrLoad, got %v", err)
			}
		})
	}
}

func TestLoadTextFile_Missing(t *testing.T) {
	_, err := LoadTextFile(filepath.Join(t.TempDir(), "missing.txt"), 0)
	if !errors.Is(err, ErrLoad) {
		t.Errorf("expected ErrLoad, got %v", err)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	d, err := ReadText(strings.NewReader(sample), 0)
	if err != nil {
		t.Fatal(err)
	}
	norms := []float32{1, 1, 2}
	dir := t.TempDir()
	wordsPath := filepath.Join(dir, "out", "words.txt")
	binPath := filepath.Join(dir, "out", "vectors.bin")
	if err := SaveBinaryFiles(wordsPath, binPath, d, norms, vector.NormSumAbs); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadBinaryFiles(wordsPath, binPath, vector.NormSumAbs)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 3 || loaded.Dimensions != 2 {
		t.Fatalf("Len=%d Dimensions=%d", loaded.Len(), loaded.Dimensions)
	}
	for i := range d.Words {
		if loaded.Words[i] != d.Words[i] || loaded.Norms[i] != norms[i] {
			t.Errorf("entry %d: %q/%v, want %q/%v", i, loaded.Words[i], loaded.Norms[i], d.Words[i], norms[i])
		}
		for j := range d.Vectors[i] {
			if loaded.Vectors[i][j] != d.Vectors[i][j] {
				t.Errorf("vector %d differs: %v vs %v", i, loaded.Vectors[i], d.Vectors[i])
			}
		}
	}
}

func TestReadBinary_UnsortedWordsKeepNormsAligned(t *testing.T) {
	unsorted := &Dataset{
		Words:      []string{"z", "a"},
		Vectors:    [][]float32{{1, 1}, {1, 0}},
		Dimensions: 2,
	}
	var buf bytes.Buffer
	if err := WriteBinary(&buf, unsorted, []float32{2, 1}, vector.NormSumAbs); err != nil {
		t.Fatal(err)
	}
	d, err := ReadBinary(strings.NewReader("z\na\n"), &buf, vector.NormSumAbs)
	if err != nil {
		t.Fatal(err)
	}
	if d.Words[0] != "a" || d.Norms[0] != 1 || d.Norms[1] != 2 {
		t.Errorf("Words=%v Norms=%v", d.Words, d.Norms)
	}
}

func TestReadBinary_Errors(t *testing.T) {
	d := &Dataset{Words: []string{"a"}, Vectors: [][]float32{{1, 0}}, Dimensions: 2}
	var good bytes.Buffer
	if err := WriteBinary(&good, d, []float32{1}, vector.NormSumAbs); err != nil {
		t.Fatal(err)
	}
	raw := good.Bytes()

	tests := []struct {
		name  string
		words string
		data  []byte
	}{
		{"bad magic", "a\n", append([]byte("XXXX"), raw[4:]...)},
		{"count mismatch", "a\nb\n", raw},
		{"truncated", "a\n", raw[:len(raw)-2]},
		{"unknown version", "a\n", append(append([]byte("NRST"), 9, 0, 0, 0), raw[8:]...)},
		{"empty", "a\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadBinary(strings.NewReader(tt.words), bytes.NewReader(tt.data), vector.NormSumAbs)
			if !errors.Is(err, ErrLoad) {
				t.Errorf("expected ErrLoad, got %v", err)
			}
		})
	}
}

func TestWriteBinary_NormsMismatch(t *testing.T) {
	d := &Dataset{Words: []string{"a"}, Vectors: [][]float32{{1, 0}}, Dimensions: 2}
	if err := WriteBinary(&bytes.Buffer{}, d, nil, vector.NormSumAbs); err == nil {
		t.Error("expected error for missing norms")
	}
	if err := WriteBinary(&bytes.Buffer{}, d, []float32{1}, "cosine"); err == nil {
		t.Error("expected error for unknown norm kind")
	}
}

func TestReadText_RejectsNonFinite(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"nan", "a 1 0\nb NaN 1\n"},
		{"inf", "a 1 0\nc Inf 0\n"},
		{"negative inf", "a 1 0\nc 0 -inf\n"},
		{"overflow", "a 1 0\nc 1e40 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadText(strings.NewReader(tt.in), 2)
			if !errors.Is(err, ErrLoad) {
				t.Errorf("expected ErrLoad, got %v", err)
			}
		})
	}
}

func TestReadBinary_RejectsNonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		name   string
		vector []float32
		norm   float32
	}{
		{"nan component", []float32{nan, 1}, 1},
		{"inf component", []float32{0, inf}, 1},
		{"nan norm", []float32{1, 0}, nan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Dataset{Words: []string{"a", "b"}, Vectors: [][]float32{{1, 0}, tt.vector}, Dimensions: 2}
			var buf bytes.Buffer
			if err := WriteBinary(&buf, d, []float32{1, tt.norm}, vector.NormSumAbs); err != nil {
				t.Fatal(err)
			}
			_, err := ReadBinary(strings.NewReader("a\nb\n"), &buf, vector.NormSumAbs)
			if !errors.Is(err, ErrLoad) {
				t.Errorf("expected ErrLoad, got %v", err)
			}
		})
	}
}

func TestReadBinary_NormKindMismatchDropsNorms(t *testing.T) {
	d := &Dataset{Words: []string{"a"}, Vectors: [][]float32{{3, 4}}, Dimensions: 2}
	var buf bytes.Buffer
	if err := WriteBinary(&buf, d, []float32{5}, vector.NormEuclidean); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	same, err := ReadBinary(strings.NewReader("a\n"), bytes.NewReader(raw), vector.NormEuclidean)
	if err != nil {
		t.Fatal(err)
	}
	if len(same.Norms) != 1 || same.Norms[0] != 5 {
		t.Errorf("Norms = %v, want [5]", same.Norms)
	}

	other, err := ReadBinary(strings.NewReader("a\n"), bytes.NewReader(raw), vector.NormSumAbs)
	if err != nil {
		t.Fatal(err)
	}
	if other.Norms != nil {
		t.Fatalf("Norms = %v, want nil for a different norm kind", other.Norms)
	}
	store, _, err := Build(other, vector.NormSumAbs)
	if err != nil {
		t.Fatal(err)
	}
	if store.Norm(0) != 7 {
		t.Errorf("Norm(0) = %v, want 7", store.Norm(0))
	}
}

func TestReadBinary_VersionOneDropsNorms(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("NRST")
	for _, v := range []any{[]uint32{1, 2, 1}, []float32{3, 4}, []float32{5}} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	d, err := ReadBinary(strings.NewReader("a\n"), &buf, vector.NormSumAbs)
	if err != nil {
		t.Fatal(err)
	}
	if d.Norms != nil || d.Vectors[0][1] != 4 {
		t.Errorf("Norms=%v Vectors=%v", d.Norms, d.Vectors)
	}
}

func TestBuild(t *testing.T) {
	d, _ := ReadText(strings.NewReader(sample), 0)
	store, words, err := Build(d, vector.NormSumAbs)
	if err != nil {
		t.Fatal(err)
	}
	idx, ok := words.Lookup("c")
	if !ok || idx != 2 {
		t.Fatalf("Lookup(c) = %d, %v", idx, ok)
	}
	if store.Norm(idx) != 2 {
		t.Errorf("Norm(c) = %v, want 2", store.Norm(idx))
	}
}

func TestBuild_UsesPrecomputedNorms(t *testing.T) {
	d := &Dataset{Words: []string{"a"}, Vectors: [][]float32{{3, 4}}, Norms: []float32{5}, Dimensions: 2}
	store, _, err := Build(d, vector.NormEuclidean)
	if err != nil {
		t.Fatal(err)
	}
	if store.Norm(0) != 5 {
		t.Errorf("Norm(0) = %v, want 5", store.Norm(0))
	}
}

func TestBuild_Empty(t *testing.T) {
	if _, _, err := Build(&Dataset{}, vector.NormSumAbs); !errors.Is(err, ErrLoad) {
		t.Errorf("expected ErrLoad, got %v", err)
	}
}

func TestSaveBinaryFiles_BadDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}
	d := &Dataset{Words: []string{"a"}, Vectors: [][]float32{{1}}, Dimensions: 1}
	if err := SaveBinaryFiles(filepath.Join(blocker, "w.txt"), filepath.Join(blocker, "v.bin"), d, []float32{1}, vector.NormSumAbs); err == nil {
		t.Error("expected error when parent is a file")
	}
}
