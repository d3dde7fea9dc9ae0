package models

// Neighbor is one displayed hit of a query.
type Neighbor struct {
	Rank  int     `json:"rank"`
	Index int     `json:"index"`
	Word  string  `json:"word"`
	Score float32 `json:"score"`
}

// Timings holds per-phase elapsed times in microseconds.
type Timings struct {
	ComposeMicros    int64 `json:"compose_us"`
	SequentialMicros int64 `json:"sequential_us,omitempty"`
	PrimaryMicros    int64 `json:"primary_us"`
}

// QueryResponse is the result of one query turn.
// Neighbors come from the primary backend; Reference is only set when the sequential
// backend was also run for comparison.
type QueryResponse struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	Word      string     `json:"word"`
	BaseIndex int        `json:"base_index"`
	Applied   []Term     `json:"applied,omitempty"`
	Skipped   []Term     `json:"skipped,omitempty"`
	Backend   string     `json:"backend"`
	Neighbors []Neighbor `json:"neighbors"`
	Reference []Neighbor `json:"reference,omitempty"`
	Agree     *bool      `json:"agree,omitempty"` // both backends ranked the same indices, set when compared
	Timings   Timings    `json:"timings"`
	Cached    bool       `json:"cached,omitempty"`
}

// WordInfo describes a vocabulary entry.
type WordInfo struct {
	Word        string   `json:"word"`
	Index       int      `json:"index"`
	Norm        float32  `json:"norm"`
	Found       bool     `json:"found"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Status summarizes the loaded store and backend.
type Status struct {
	Words      int    `json:"words"`
	Dimensions int    `json:"dimensions"`
	Norm       string `json:"norm"`
	Backend    string `json:"backend"`
	K          int    `json:"k"`
	Source     string `json:"source,omitempty"`
	// Stored and ImportedAt are only set for database sources.
	Stored     int64  `json:"stored,omitempty"`
	ImportedAt string `json:"imported_at,omitempty"`
}
