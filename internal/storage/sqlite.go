package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/nearest/internal/loader"
	"github.com/hyperjump/nearest/internal/vector"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		word TEXT PRIMARY KEY,
		norm REAL NOT NULL,
		vector BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveDataset replaces the stored embeddings in a single transaction.
func (s *SQLiteStorage) SaveDataset(ctx context.Context, d *loader.Dataset, norms []float32, kind vector.NormKind) error {
	if len(norms) != d.Len() || len(d.Vectors) != d.Len() {
		return fmt.Errorf("dataset length mismatch: %d words, %d vectors, %d norms", d.Len(), len(d.Vectors), len(norms))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO embeddings (word, norm, vector) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, word := range d.Words {
		if len(d.Vectors[i]) != d.Dimensions {
			return fmt.Errorf("vector %q dimension mismatch: got %d, expected %d", word, len(d.Vectors[i]), d.Dimensions)
		}
		if _, err := stmt.ExecContext(ctx, word, float64(norms[i]), encodeVector(d.Vectors[i])); err != nil {
			return fmt.Errorf("failed to insert %q: %w", word, err)
		}
	}

	meta := map[string]string{
		"dimensions":  strconv.Itoa(d.Dimensions),
		"norm":        string(kind),
		"count":       strconv.Itoa(d.Len()),
		"imported_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// LoadDataset reads every embedding ordered by word.
func (s *SQLiteStorage) LoadDataset(ctx context.Context, kind vector.NormKind) (*loader.Dataset, error) {
	dimsText, err := s.Metadata(ctx, "dimensions")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", loader.ErrLoad, err)
	}
	dims, err := strconv.Atoi(dimsText)
	if err != nil || dims <= 0 {
		return nil, fmt.Errorf("%w: invalid stored dimensions %q", loader.ErrLoad, dimsText)
	}
	storedKind, err := s.Metadata(ctx, "norm")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", loader.ErrLoad, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT word, norm, vector FROM embeddings ORDER BY word`)
	if err != nil {
		return nil, fmt.Errorf("%w: query embeddings: %w", loader.ErrLoad, err)
	}
	defer rows.Close()

	d := &loader.Dataset{Dimensions: dims}
	var norms []float32
	for rows.Next() {
		var (
			word string
			norm float64
			blob []byte
		)
		if err := rows.Scan(&word, &norm, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan embedding: %w", loader.ErrLoad, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", loader.ErrLoad, word, err)
		}
		if len(vec) != dims {
			return nil, fmt.Errorf("%w: %q has %d components, expected %d", loader.ErrLoad, word, len(vec), dims)
		}
		if err := loader.CheckFinite(vec); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", loader.ErrLoad, word, err)
		}
		if math.IsNaN(norm) || math.IsInf(norm, 0) {
			return nil, fmt.Errorf("%w: %q: stored norm is %v", loader.ErrLoad, word, norm)
		}
		d.Words = append(d.Words, word)
		d.Vectors = append(d.Vectors, vec)
		norms = append(norms, float32(norm))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", loader.ErrLoad, err)
	}
	if vector.NormKind(storedKind) == kind {
		d.Norms = norms
	}
	return d, nil
}

// CountWords returns the number of stored embeddings.
func (s *SQLiteStorage) CountWords(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}

// Metadata returns the value stored under key.
func (s *SQLiteStorage) Metadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("metadata not found: %s", key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// encodeVector stores components as little-endian IEEE 754 float32 values.
func encodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
