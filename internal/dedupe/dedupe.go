// Package dedupe detects imported cards that already exist in the deck.
package dedupe

import (
	"strings"

	"golang.org/x/text/cases"
)

// Normalize trims whitespace, normalizes line endings and case-folds s so
// that texts differing only in case compare equal.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	return cases.Fold().String(s)
}

// Index remembers every front and back it has seen. A card is a duplicate
// when its front or its back matches any remembered text.
type Index struct {
	texts map[string]struct{}
}

// NewIndex seeds an index with existing texts.
func NewIndex(texts ...string) *Index {
	idx := &Index{texts: make(map[string]struct{}, len(texts))}
	for _, t := range texts {
		idx.add(t)
	}
	return idx
}

// Seen reports whether front or back is already known. Empty sides never
// match.
func (idx *Index) Seen(front, back string) bool {
	for _, s := range []string{front, back} {
		n := Normalize(s)
		if n == "" {
			continue
		}
		if _, ok := idx.texts[n]; ok {
			return true
		}
	}
	return false
}

// Add remembers both sides of a card.
func (idx *Index) Add(front, back string) {
	idx.add(front)
	idx.add(back)
}

// Len is the number of distinct texts known.
func (idx *Index) Len() int {
	return len(idx.texts)
}

func (idx *Index) add(s string) {
	if n := Normalize(s); n != "" {
		idx.texts[n] = struct{}{}
	}
}
