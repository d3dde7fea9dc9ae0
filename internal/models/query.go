// Package models defines the request and response shapes shared by the CLI and the HTTP API.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery marks a malformed query.
var ErrInvalidQuery = errors.New("invalid query")

// Op is the operator applied to a composition term.
type Op string

const (
	OpAdd      Op = "+"
	OpSubtract Op = "-"
)

// ParseOp accepts "+", "-", "add" and "subtract".
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(s) {
	case "+", "add":
		return OpAdd, nil
	case "-", "subtract", "sub":
		return OpSubtract, nil
	default:
		return "", fmt.Errorf("unknown operator %q (use + or -)", s)
	}
}

// Term is one "+ word" or "- word" step of an analogy query.
type Term struct {
	Op   Op     `json:"op"`
	Word string `json:"word"`
}

// Query is a neighbour search request: a base word optionally shifted by terms.
type Query struct {
	Word    string `json:"word"`
	Terms   []Term `json:"terms,omitempty"`
	K       int    `json:"k,omitempty"`       // ranked slots beyond the base; K-1 neighbours are displayed
	Compare bool   `json:"compare,omitempty"` // also run the sequential backend
}

// Validate checks the query and fills in defaults. defaultK is used when K is unset.
func (q *Query) Validate(defaultK, maxK int) error {
	q.Word = strings.TrimSpace(q.Word)
	if q.Word == "" {
		return fmt.Errorf("%w: word cannot be empty", ErrInvalidQuery)
	}
	for i := range q.Terms {
		op, err := ParseOp(string(q.Terms[i].Op))
		if err != nil {
			return fmt.Errorf("%w: term %d: %w", ErrInvalidQuery, i, err)
		}
		q.Terms[i].Op = op
		if strings.TrimSpace(q.Terms[i].Word) == "" {
			return fmt.Errorf("%w: term %d: word cannot be empty", ErrInvalidQuery, i)
		}
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	return nil
}

// String renders the query the way it is typed in a session, e.g. "king - man + woman".
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString(q.Word)
	for _, t := range q.Terms {
		b.WriteString(" ")
		b.WriteString(string(t.Op))
		b.WriteString(" ")
		b.WriteString(t.Word)
	}
	return b.String()
}

// ParseExpression parses "king - man + woman" (operators may also be attached: "king -man +woman").
func ParseExpression(fields []string) (*Query, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("word cannot be empty")
	}
	q := &Query{Word: fields[0]}
	for i := 1; i < len(fields); i++ {
		f := fields[i]
		if f == "!" {
			break
		}
		if f == "+" || f == "-" {
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("operator %q without a word", f)
			}
			q.Terms = append(q.Terms, Term{Op: Op(f), Word: fields[i+1]})
			i++
			continue
		}
		if op, word, ok := SplitTerm(f); ok {
			q.Terms = append(q.Terms, Term{Op: op, Word: word})
			continue
		}
		return nil, fmt.Errorf("expected + or - before %q", f)
	}
	return q, nil
}

// SplitTerm splits an attached term such as "+woman" into its operator and word.
func SplitTerm(token string) (Op, string, bool) {
	if len(token) < 2 {
		return "", "", false
	}
	switch token[0] {
	case '+':
		return OpAdd, token[1:], true
	case '-':
		return OpSubtract, token[1:], true
	}
	return "", "", false
}
