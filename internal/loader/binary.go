package loader

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/nearest/internal/vector"
)

// binaryMagic opens every binary embeddings file.
const binaryMagic = "NRST"

// Version 1 files carry no norm kind; their norms are never trusted.
const (
	binaryVersionNoKind uint32 = 1
	binaryVersion       uint32 = 2
)

// normCodes identifies the norm convention in the file header.
var normCodes = map[vector.NormKind]uint32{
	vector.NormSumAbs:    1,
	vector.NormEuclidean: 2,
}

// WriteBinary writes the dataset's vectors and norms. Format, little endian:
// magic (4), version (4), dimensions (4), count (4), norm kind (4),
// count*dimensions float32 components, then count float32 norms computed under kind.
// Words go to a separate file, one per line, in the same order.
func WriteBinary(w io.Writer, d *Dataset, norms []float32, kind vector.NormKind) error {
	if len(norms) != d.Len() {
		return fmt.Errorf("norms and words length mismatch: %d != %d", len(norms), d.Len())
	}
	code, ok := normCodes[kind]
	if !ok {
		return fmt.Errorf("unknown norm kind %q", kind)
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(binaryMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	header := []uint32{binaryVersion, uint32(d.Dimensions), uint32(d.Len()), code}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, vec := range d.Vectors {
		if len(vec) != d.Dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), d.Dimensions)
		}
		if err := binary.Write(bw, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, norms); err != nil {
		return fmt.Errorf("write norms: %w", err)
	}
	return bw.Flush()
}

// WriteWords writes one word per line.
func WriteWords(w io.Writer, words []string) error {
	bw := bufio.NewWriter(w)
	for _, word := range words {
		if _, err := bw.WriteString(word + "\n"); err != nil {
			return fmt.Errorf("write words: %w", err)
		}
	}
	return bw.Flush()
}

// SaveBinaryFiles writes wordsPath and binaryPath, creating parent directories.
func SaveBinaryFiles(wordsPath, binaryPath string, d *Dataset, norms []float32, kind vector.NormKind) error {
	for _, p := range []string{wordsPath, binaryPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	wf, err := os.Create(wordsPath)
	if err != nil {
		return fmt.Errorf("create words file: %w", err)
	}
	defer wf.Close()
	if err := WriteWords(wf, d.Words); err != nil {
		return err
	}
	bf, err := os.Create(binaryPath)
	if err != nil {
		return fmt.Errorf("create binary file: %w", err)
	}
	defer bf.Close()
	if err := WriteBinary(bf, d, norms, kind); err != nil {
		return err
	}
	if err := wf.Close(); err != nil {
		return fmt.Errorf("close words file: %w", err)
	}
	return bf.Close()
}

// LoadBinaryFiles reads a words file and its binary embeddings file. See ReadBinary.
func LoadBinaryFiles(wordsPath, binaryPath string, kind vector.NormKind) (*Dataset, error) {
	wf, err := os.Open(wordsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open words: %w", ErrLoad, err)
	}
	defer wf.Close()
	bf, err := os.Open(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open binary embeddings: %w", ErrLoad, err)
	}
	defer bf.Close()
	return ReadBinary(wf, bf, kind)
}

// ReadBinary reads words (one per line) and the matching binary vectors and norms.
// The stored norms are only returned when the file says they were computed under kind;
// otherwise Norms is nil and Build recomputes them. The result is sorted by word with
// norms kept aligned.
func ReadBinary(words io.Reader, data io.Reader, kind vector.NormKind) (*Dataset, error) {
	var list []string
	scanner := bufio.NewScanner(words)
	for scanner.Scan() {
		if w := strings.TrimSpace(scanner.Text()); w != "" {
			list = append(list, w)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read words: %w", ErrLoad, err)
	}

	br := bufio.NewReader(data)
	magic := make([]byte, len(binaryMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("%w: read magic: %w", ErrLoad, err)
	}
	if string(magic) != binaryMagic {
		return nil, fmt.Errorf("%w: not a binary embeddings file", ErrLoad)
	}
	var header [3]uint32
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrLoad, err)
	}
	version, dims, n := header[0], int(header[1]), int(header[2])
	var storedCode uint32
	switch version {
	case binaryVersion:
		if err := binary.Read(br, binary.LittleEndian, &storedCode); err != nil {
			return nil, fmt.Errorf("%w: read norm kind: %w", ErrLoad, err)
		}
	case binaryVersionNoKind:
	default:
		return nil, fmt.Errorf("%w: unsupported binary version %d", ErrLoad, version)
	}
	if n != len(list) {
		return nil, fmt.Errorf("%w: %d words but %d vectors", ErrLoad, len(list), n)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %d", ErrLoad, dims)
	}

	d := &Dataset{
		Words:      list,
		Vectors:    make([][]float32, n),
		Norms:      make([]float32, n),
		Dimensions: dims,
	}
	for i := range d.Vectors {
		vec := make([]float32, dims)
		if err := binary.Read(br, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("%w: read vector %d: %w", ErrLoad, i, err)
		}
		if err := CheckFinite(vec); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrLoad, list[i], err)
		}
		d.Vectors[i] = vec
	}
	if err := binary.Read(br, binary.LittleEndian, d.Norms); err != nil {
		return nil, fmt.Errorf("%w: read norms: %w", ErrLoad, err)
	}
	if code, ok := normCodes[kind]; !ok || storedCode != code {
		d.Norms = nil
	}
	for i, norm := range d.Norms {
		if err := CheckFinite([]float32{norm}); err != nil {
			return nil, fmt.Errorf("%w: norm of %q: %w", ErrLoad, list[i], err)
		}
	}
	d.sortByWord()
	return d, nil
}
