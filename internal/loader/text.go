package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// maxLineBytes bounds a single "word v1 ... vd" line; 300 floats fit comfortably.
const maxLineBytes = 1 << 20

// LoadTextFile reads a text embedding file. See ReadText.
func LoadTextFile(path string, dimensions int) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open embeddings: %w", ErrLoad, err)
	}
	defer f.Close()
	return ReadText(f, dimensions)
}

// ReadText parses lines of the form "word v1 v2 ... vd". A leading "count dims" header line,
// as written by word2vec, is skipped. dimensions <= 0 means take the width of the first row.
// The result is sorted by word.
func ReadText(r io.Reader, dimensions int) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	d := &Dataset{Dimensions: dimensions}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if lineNo == 1 && isHeader(fields) {
			continue
		}
		if d.Dimensions <= 0 {
			d.Dimensions = len(fields) - 1
		}
		if len(fields)-1 != d.Dimensions {
			return nil, fmt.Errorf("%w: line %d: got %d components, expected %d", ErrLoad, lineNo, len(fields)-1, d.Dimensions)
		}
		vec := make([]float32, d.Dimensions)
		for i, field := range fields[1:] {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: component %d: %w", ErrLoad, lineNo, i, err)
			}
			vec[i] = float32(v)
		}
		if err := CheckFinite(vec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %q: %w", ErrLoad, lineNo, fields[0], err)
		}
		d.Words = append(d.Words, fields[0])
		d.Vectors = append(d.Vectors, vec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read embeddings: %w", ErrLoad, err)
	}
	if d.Dimensions <= 0 || len(d.Words) == 0 {
		return nil, fmt.Errorf("%w: no embeddings found", ErrLoad)
	}
	d.sortByWord()
	return d, nil
}

func isHeader(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	for _, f := range fields {
		if _, err := strconv.Atoi(f); err != nil {
			return false
		}
	}
	return true
}
