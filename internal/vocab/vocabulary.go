// Package vocab maps words to their index in the embedding store.
package vocab

import (
	"fmt"
	"sort"
)

// Vocabulary is a sorted word list. A word's position is its index in the vector store.
type Vocabulary struct {
	words []string
}

// New wraps words, which must be sorted and free of duplicates.
func New(words []string) (*Vocabulary, error) {
	for i := 1; i < len(words); i++ {
		if words[i-1] >= words[i] {
			return nil, fmt.Errorf("vocabulary not strictly sorted at %d: %q >= %q", i, words[i-1], words[i])
		}
	}
	return &Vocabulary{words: words}, nil
}

// Lookup returns the index of word, or (-1, false) if it is absent.
func (v *Vocabulary) Lookup(word string) (int, bool) {
	i := sort.SearchStrings(v.words, word)
	if i < len(v.words) && v.words[i] == word {
		return i, true
	}
	return -1, false
}

// Word returns the word at index i.
func (v *Vocabulary) Word(i int) string {
	return v.words[i]
}

// Len returns the number of words.
func (v *Vocabulary) Len() int {
	return len(v.words)
}
