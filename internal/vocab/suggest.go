package vocab

import (
	"sort"
	"unicode/utf8"
)

// Suggestion is a vocabulary word close to a word that was not found.
type Suggestion struct {
	Word     string
	Distance int
}

// Suggester proposes vocabulary words within a small edit distance of a missing word.
type Suggester struct {
	vocab          *Vocabulary
	maxDistance    int
	maxSuggestions int
}

// SuggesterOption is a functional option for configuring Suggester.
type SuggesterOption func(*Suggester)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SuggesterOption {
	return func(s *Suggester) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMaxSuggestions sets how many suggestions Suggest returns at most.
func WithMaxSuggestions(n int) SuggesterOption {
	return func(s *Suggester) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSuggester creates a Suggester over v.
func NewSuggester(v *Vocabulary, opts ...SuggesterOption) *Suggester {
	s := &Suggester{
		vocab:          v,
		maxDistance:    2,
		maxSuggestions: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest returns the closest vocabulary words to word, nearest first, ties alphabetical.
// It scans the whole vocabulary, so it is meant for the not-found path only.
func (s *Suggester) Suggest(word string) []Suggestion {
	if word == "" || s.vocab == nil {
		return nil
	}
	n := utf8.RuneCountInString(word)
	var out []Suggestion
	for _, candidate := range s.vocab.words {
		// Length difference is a lower bound on the distance.
		if diff := utf8.RuneCountInString(candidate) - n; diff > s.maxDistance || -diff > s.maxDistance {
			continue
		}
		d := LevenshteinDistance(word, candidate)
		if d == 0 || d > s.maxDistance {
			continue
		}
		out = append(out, Suggestion{Word: candidate, Distance: d})
	}
	// The vocabulary is sorted, so a stable sort by distance keeps ties alphabetical.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out
}

// Words returns just the suggested words.
func Words(suggestions []Suggestion) []string {
	words := make([]string, len(suggestions))
	for i, s := range suggestions {
		words[i] = s.Word
	}
	return words
}
