package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/nearest/internal/models"
	"github.com/hyperjump/nearest/internal/vector"
	"github.com/hyperjump/nearest/internal/vocab"
)

// ErrWordNotFound is matched by every WordNotFoundError.
var ErrWordNotFound = errors.New("word not found")

// WordNotFoundError reports a word missing from the vocabulary, with spelling suggestions
// when a suggester is configured.
type WordNotFoundError struct {
	Word        string
	Suggestions []string
}

func (e *WordNotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("could not find word %q", e.Word)
	}
	return fmt.Sprintf("could not find word %q (did you mean %s?)", e.Word, strings.Join(e.Suggestions, ", "))
}

func (e *WordNotFoundError) Is(target error) bool {
	return target == ErrWordNotFound
}

// Composition is a query vector built from a base word and its terms.
type Composition struct {
	Vector    []float32
	Norm      float32
	BaseIndex int
	Applied   []models.Term
	Skipped   []models.Term
}

// Composer builds query vectors. It only reads the store.
type Composer struct {
	store     *vector.Store
	vocab     *vocab.Vocabulary
	suggester *vocab.Suggester
}

// NewComposer creates a Composer. suggester may be nil.
func NewComposer(store *vector.Store, v *vocab.Vocabulary, suggester *vocab.Suggester) *Composer {
	return &Composer{store: store, vocab: v, suggester: suggester}
}

// Lookup resolves word to its store index.
func (c *Composer) Lookup(word string) (int, error) {
	if i, ok := c.vocab.Lookup(word); ok {
		return i, nil
	}
	err := &WordNotFoundError{Word: word}
	if c.suggester != nil {
		err.Suggestions = vocab.Words(c.suggester.Suggest(word))
	}
	return -1, err
}

// Compose copies the base embedding and applies each term in order. Terms whose word is
// unknown are recorded in Skipped and do not abort the composition.
func (c *Composer) Compose(q *models.Query) (*Composition, error) {
	base, err := c.Lookup(q.Word)
	if err != nil {
		return nil, err
	}

	embedding := c.store.Embedding(base)
	out := &Composition{
		Vector:    make([]float32, len(embedding)),
		BaseIndex: base,
	}
	copy(out.Vector, embedding)

	for _, term := range q.Terms {
		i, ok := c.vocab.Lookup(term.Word)
		if !ok {
			out.Skipped = append(out.Skipped, term)
			continue
		}
		other := c.store.Embedding(i)
		switch term.Op {
		case models.OpAdd:
			for j := range out.Vector {
				out.Vector[j] += other[j]
			}
		case models.OpSubtract:
			for j := range out.Vector {
				out.Vector[j] -= other[j]
			}
		default:
			return nil, fmt.Errorf("unknown operator %q", term.Op)
		}
		out.Applied = append(out.Applied, term)
	}

	if len(out.Applied) == 0 {
		out.Norm = c.store.Norm(base)
	} else {
		out.Norm = c.store.NormOf(out.Vector)
	}
	return out, nil
}
