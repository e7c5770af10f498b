// Package queue decides which cards a tag selection shows, which card is
// studied next, and how cards are grouped by due day.
package queue

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/ledger"
)

// Mode selects how Current applies the tag selection.
type Mode int

const (
	// Simple ignores the selection; any card with a study mode qualifies.
	Simple Mode = iota
	// Filtered additionally requires the card to match the selection.
	Filtered
)

// Matches reports whether card passes sel.
func Matches(card *domain.Card, sel domain.TagSelection) bool {
	if len(card.Tags) == 0 {
		return !sel.HasPositiveFilter()
	}
	for _, id := range sel.Exclude() {
		if card.HasTag(id) {
			return false
		}
	}
	for _, id := range sel.All() {
		if !card.HasTag(id) {
			return false
		}
	}
	anyOf := sel.Any()
	if len(anyOf) == 0 {
		return true
	}
	for _, id := range anyOf {
		if card.HasTag(id) {
			return true
		}
	}
	return false
}

// Filter keeps the cards that match sel, preserving order.
func Filter(cards []*domain.Card, sel domain.TagSelection) []*domain.Card {
	var out []*domain.Card
	for _, c := range cards {
		if Matches(c, sel) {
			out = append(out, c)
		}
	}
	return out
}

// Sort orders cards by ascending due date. Ties keep their input order.
func Sort(cards []*domain.Card) {
	slices.SortStableFunc(cards, func(a, b *domain.Card) int {
		return a.NextReviewDate.Compare(b.NextReviewDate)
	})
}

// Current returns the card to present next: the earliest-due card with a
// study mode that (in Filtered mode) matches sel and is not done for now.
// It reports false when nothing is due.
func Current(cards []*domain.Card, tags map[uuid.UUID]*domain.Tag, sel domain.TagSelection, mode Mode, now time.Time) (*domain.Card, bool) {
	ordered := slices.Clone(cards)
	Sort(ordered)
	for _, c := range ordered {
		if domain.EffectiveStudyMode(c, tags) == domain.StudyModeUnset {
			continue
		}
		if mode == Filtered && !Matches(c, sel) {
			continue
		}
		if ledger.IsDoneForNow(c, now) {
			// Everything after this is due even later.
			return nil, false
		}
		return c, true
	}
	return nil, false
}

// DueCount counts the cards Current could still present.
func DueCount(cards []*domain.Card, tags map[uuid.UUID]*domain.Tag, sel domain.TagSelection, mode Mode, now time.Time) int {
	n := 0
	for _, c := range cards {
		if domain.EffectiveStudyMode(c, tags) == domain.StudyModeUnset {
			continue
		}
		if mode == Filtered && !Matches(c, sel) {
			continue
		}
		if !ledger.IsDoneForNow(c, now) {
			n++
		}
	}
	return n
}

// Group is one section of the card list.
type Group struct {
	Label        string
	NeverStudied bool
	// DayOffset is meaningless when NeverStudied is set.
	DayOffset int
	Cards     []*domain.Card
}

// GroupByDue partitions the cards matching sel into "never studied" and
// buckets of whole calendar days between today and the due day in loc.
// Overdue cards fall into the "due today" bucket.
func GroupByDue(cards []*domain.Card, sel domain.TagSelection, now time.Time, loc *time.Location) []Group {
	if loc == nil {
		loc = time.Local
	}
	var never []*domain.Card
	buckets := map[int][]*domain.Card{}

	ordered := Filter(cards, sel)
	Sort(ordered)
	for _, c := range ordered {
		if c.NeverStudied() {
			never = append(never, c)
			continue
		}
		offset := max(0, DaysBetween(now, c.NextReviewDate, loc))
		buckets[offset] = append(buckets[offset], c)
	}

	var groups []Group
	if len(never) > 0 {
		groups = append(groups, Group{Label: "Never studied", NeverStudied: true, Cards: never})
	}
	offsets := make([]int, 0, len(buckets))
	for o := range buckets {
		offsets = append(offsets, o)
	}
	slices.SortFunc(offsets, cmp.Compare[int])
	for _, o := range offsets {
		groups = append(groups, Group{Label: DueLabel(o), DayOffset: o, Cards: buckets[o]})
	}
	return groups
}

// DueLabel names a day offset.
func DueLabel(offset int) string {
	switch offset {
	case 0:
		return "Due today"
	case 1:
		return "Due tomorrow"
	default:
		return "Due in " + strconv.Itoa(offset) + " days"
	}
}

// DaysBetween counts calendar days from the local day of from to the local
// day of to. It is negative when to falls on an earlier day.
func DaysBetween(from, to time.Time, loc *time.Location) int {
	a := dayStart(from, loc)
	b := dayStart(to, loc)
	// Rounding absorbs the 23h and 25h days around DST changes.
	return int(math.Round(b.Sub(a).Hours() / 24))
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
