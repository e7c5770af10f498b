// Package search finds cards by their text, ignoring case, accents, width
// and Hangul syllable composition.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/conorfennell/flashcards/internal/domain"
)

// Normalize folds s into the form the index compares. Hangul syllables are
// decomposed into jamo and compatibility jamo become conjoining jamo, so a
// lone "ㅎ" is a prefix of "한".
func Normalize(s string) string {
	t := transform.Chain(
		width.Fold,
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		cases.Fold(),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.TrimSpace(out)
}

type entry struct {
	card  *domain.Card
	front string
	back  string
	notes string
}

// Index is a snapshot of the cards' normalized text.
type Index struct {
	entries []entry
}

// NewIndex normalizes every card once. Results keep the order of cards.
func NewIndex(cards []*domain.Card) *Index {
	idx := &Index{entries: make([]entry, 0, len(cards))}
	for _, c := range cards {
		idx.entries = append(idx.entries, entry{
			card:  c,
			front: Normalize(c.Front),
			back:  Normalize(c.Back),
			notes: Normalize(c.Notes),
		})
	}
	return idx
}

// Including returns cards whose front, back or notes contain text.
func (idx *Index) Including(text string) []*domain.Card {
	q := Normalize(text)
	return idx.match(func(e entry) bool {
		return strings.Contains(e.front, q) || strings.Contains(e.back, q) || strings.Contains(e.notes, q)
	})
}

// StartingWith returns cards whose front or back starts with text.
func (idx *Index) StartingWith(text string) []*domain.Card {
	q := Normalize(text)
	return idx.match(func(e entry) bool {
		return strings.HasPrefix(e.front, q) || strings.HasPrefix(e.back, q)
	})
}

func (idx *Index) match(pred func(entry) bool) []*domain.Card {
	var out []*domain.Card
	for _, e := range idx.entries {
		if pred(e) {
			out = append(out, e.card)
		}
	}
	return out
}
