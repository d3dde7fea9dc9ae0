package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/hyperjump/nearest/internal/models"
	"github.com/hyperjump/nearest/internal/search"
	"github.com/hyperjump/nearest/internal/vector"
)

// Prompt is printed before every query.
const Prompt = "Enter a word to look for similarities: either 'word (0/1)' or 'word ((+/-) word)* ! (0/1)'. " +
	"The trailing 0/1 selects whether the sequential backend also runs."

// State is a step of the session loop.
type State int

const (
	StateAwaitingQuery State = iota
	StateParsingTerms
	StateDispatching
	StateReporting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingQuery:
		return "awaiting query"
	case StateParsingTerms:
		return "parsing terms"
	case StateDispatching:
		return "dispatching"
	case StateReporting:
		return "reporting"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Searcher is what the session needs from the search engine.
type Searcher interface {
	Lookup(word string) (int, error)
	Search(ctx context.Context, q *models.Query) (*models.QueryResponse, error)
}

// Session reads queries from a token stream and reports neighbours, one query at a time.
// It ends at end of input or when the primary backend fails.
type Session struct {
	searcher Searcher
	tokens   *tokenReader
	out      io.Writer
	k        int
	logger   *zap.Logger

	state State
	query *models.Query
	resp  *models.QueryResponse
	code  vector.ErrorCode
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithK sets the number of ranked slots per query. K-1 neighbours are shown.
func WithK(k int) SessionOption {
	return func(s *Session) {
		if k > 0 {
			s.k = k
		}
	}
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates a session reading whitespace-separated tokens from in.
func NewSession(searcher Searcher, in io.Reader, out io.Writer, opts ...SessionOption) *Session {
	s := &Session{
		searcher: searcher,
		tokens:   newTokenReader(in),
		out:      out,
		k:        11,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Run drives the loop until it terminates and returns the last code the primary backend
// reported.
func (s *Session) Run(ctx context.Context) vector.ErrorCode {
	fmt.Fprintln(s.out, Prompt)
	for s.state != StateTerminated {
		s.step(ctx)
	}
	return s.code
}

func (s *Session) step(ctx context.Context) {
	switch s.state {
	case StateAwaitingQuery:
		s.awaitQuery()
	case StateParsingTerms:
		s.parseTerms()
	case StateDispatching:
		s.dispatch(ctx)
	case StateReporting:
		s.report()
	}
}

func (s *Session) awaitQuery() {
	word, ok := s.tokens.next()
	if !ok {
		s.state = StateTerminated
		return
	}
	if _, err := s.searcher.Lookup(word); err != nil {
		s.notFound(err)
		fmt.Fprintln(s.out, Prompt)
		return
	}
	s.query = &models.Query{Word: word, K: s.k}
	s.state = StateParsingTerms
}

func (s *Session) parseTerms() {
	s.state = StateDispatching
	if next, ok := s.tokens.peek(); !ok || isFlag(next) {
		return
	}
	for {
		tok, ok := s.tokens.next()
		if !ok || tok == "!" {
			return
		}
		var op models.Op
		var word string
		switch tok {
		case "+", "-":
			if word, ok = s.tokens.next(); !ok {
				return
			}
			op = models.Op(tok)
		default:
			if op, word, ok = models.SplitTerm(tok); !ok {
				s.logger.Debug("ignoring token", zap.String("token", tok))
				continue
			}
		}
		if _, err := s.searcher.Lookup(word); err != nil {
			s.notFound(err)
			continue
		}
		s.query.Terms = append(s.query.Terms, models.Term{Op: op, Word: word})
	}
}

func (s *Session) dispatch(ctx context.Context) {
	if tok, ok := s.tokens.next(); ok {
		compare, err := strconv.ParseBool(tok)
		if err != nil {
			fmt.Fprintf(s.out, "Could not read %q as 0 or 1, skipping the sequential backend\n", tok)
		}
		s.query.Compare = compare
	}

	resp, err := s.searcher.Search(ctx, s.query)
	if errors.Is(err, search.ErrWordNotFound) {
		s.notFound(err)
		fmt.Fprintln(s.out, Prompt)
		s.state = StateAwaitingQuery
		return
	}
	if err != nil {
		s.code = vector.CodeOf(err)
		s.logger.Error("search failed", zap.String("query", s.query.String()), zap.Error(err))
		color.New(color.FgRed).Fprintf(s.out, "Search failed: %v\n", err)
		s.state = StateTerminated
		return
	}
	s.code = vector.CodeSuccess
	s.resp = resp
	s.state = StateReporting
}

func (s *Session) report() {
	header := color.New(color.FgCyan, color.Bold)
	if s.resp.Reference != nil {
		header.Fprintln(s.out, "Most similar words (sequential):")
		s.printWords(s.resp.Reference)
		fmt.Fprintf(s.out, "CPU execution took: %d milliseconds\n", s.resp.Timings.SequentialMicros/1000)
	}
	fmt.Fprintf(s.out, "Accelerated execution took: %d milliseconds\n", s.resp.Timings.PrimaryMicros/1000)
	header.Fprintln(s.out, "Most similar words:")
	s.printWords(s.resp.Neighbors)
	fmt.Fprintln(s.out, Prompt)

	s.query, s.resp = nil, nil
	s.state = StateAwaitingQuery
}

func (s *Session) printWords(neighbors []models.Neighbor) {
	for _, n := range neighbors {
		fmt.Fprintln(s.out, n.Word)
	}
}

func (s *Session) notFound(err error) {
	var nf *search.WordNotFoundError
	if !errors.As(err, &nf) {
		fmt.Fprintf(s.out, "Lookup failed: %v\n", err)
		return
	}
	color.New(color.FgRed).Fprintf(s.out, "Could not find word %q\n", nf.Word)
	if len(nf.Suggestions) > 0 {
		fmt.Fprintf(s.out, "Did you mean: %s?\n", strings.Join(nf.Suggestions, ", "))
	}
}

// isFlag reports whether tok is the comparison flag that ends a query with no terms.
func isFlag(tok string) bool {
	_, err := strconv.ParseBool(tok)
	return err == nil
}

// tokenReader yields whitespace-separated tokens with one token of lookahead.
type tokenReader struct {
	scanner *bufio.Scanner
	buf     string
	hasBuf  bool
}

func newTokenReader(r io.Reader) *tokenReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)
	return &tokenReader{scanner: sc}
}

func (t *tokenReader) peek() (string, bool) {
	if !t.hasBuf {
		if !t.scanner.Scan() {
			return "", false
		}
		t.buf, t.hasBuf = t.scanner.Text(), true
	}
	return t.buf, true
}

func (t *tokenReader) next() (string, bool) {
	tok, ok := t.peek()
	t.hasBuf = false
	return tok, ok
}
