// Package export writes the deck out as delimited text or a JSON document.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/storage"
)

// Source is the part of the store an export reads from.
type Source interface {
	ListCards(ctx context.Context, opts storage.ListOptions) ([]*domain.Card, error)
	ListTags(ctx context.Context) ([]*domain.Tag, error)
}

// Deck is everything an export needs.
type Deck struct {
	Cards []*domain.Card
	Tags  []*domain.Tag
}

// Load reads cards and tags concurrently.
func Load(ctx context.Context, src Source) (Deck, error) {
	var deck Deck
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		deck.Cards, err = src.ListCards(gctx, storage.ListOptions{})
		if err != nil {
			return fmt.Errorf("list cards: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		deck.Tags, err = src.ListTags(gctx)
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Deck{}, err
	}
	return deck, nil
}

// WriteDelimited writes one front, back, notes row per non-empty card. Fields
// are quoted when they contain the separator, quotes or newlines.
func WriteDelimited(w io.Writer, cards []*domain.Card, separator string) error {
	sep, size := utf8.DecodeRuneInString(separator)
	if size == 0 || size != len(separator) {
		return fmt.Errorf("separator must be a single character, got %q", separator)
	}
	cw := csv.NewWriter(w)
	cw.Comma = sep
	for _, c := range cards {
		if c.IsEmpty() {
			continue
		}
		if err := cw.Write([]string{c.Front, c.Back, c.Notes}); err != nil {
			return fmt.Errorf("writing card %s: %w", c.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Document is the JSON export format.
type Document struct {
	ExportedAt string     `json:"exported_at"`
	Cards      []JSONCard `json:"cards"`
}

type JSONCard struct {
	Front   string       `json:"front"`
	Back    string       `json:"back"`
	Notes   string       `json:"notes,omitempty"`
	Created string       `json:"created"`
	Due     string       `json:"due"`
	Tags    []string     `json:"tags"`
	Reviews []JSONReview `json:"reviews"`
}

type JSONReview struct {
	Timestamp string         `json:"timestamp"`
	Outcome   domain.Outcome `json:"outcome"`
}

// BuildDocument converts the deck, naming tags instead of referencing ids.
// Dates are ISO-8601 in UTC.
func BuildDocument(deck Deck, now time.Time) Document {
	names := make(map[uuid.UUID]string, len(deck.Tags))
	for _, t := range deck.Tags {
		names[t.ID] = t.Name
	}

	doc := Document{ExportedAt: iso(now), Cards: make([]JSONCard, 0, len(deck.Cards))}
	for _, c := range deck.Cards {
		if c.IsEmpty() {
			continue
		}
		jc := JSONCard{
			Front:   c.Front,
			Back:    c.Back,
			Notes:   c.Notes,
			Created: iso(c.CreatedAt),
			Due:     iso(c.NextReviewDate),
			Tags:    []string{},
			Reviews: make([]JSONReview, 0, len(c.Reviews)),
		}
		for id := range c.Tags {
			if name, ok := names[id]; ok {
				jc.Tags = append(jc.Tags, name)
			}
		}
		slices.Sort(jc.Tags)
		for _, r := range c.Reviews {
			jc.Reviews = append(jc.Reviews, JSONReview{Timestamp: iso(r.Timestamp), Outcome: r.Outcome})
		}
		doc.Cards = append(doc.Cards, jc)
	}
	return doc
}

// WriteJSON writes the deck as an indented JSON document.
func WriteJSON(w io.Writer, deck Deck, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(BuildDocument(deck, now)); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}

func iso(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
