package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Outcome is the coarse result a learner reports for a review.
type Outcome string

const (
	OutcomeOK   Outcome = "ok"
	OutcomeFail Outcome = "fail"
)

// Valid reports whether o is one of the two known outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeOK || o == OutcomeFail
}

// ParseOutcome converts "ok" or "fail" into an Outcome.
func ParseOutcome(s string) (Outcome, bool) {
	o := Outcome(s)
	return o, o.Valid()
}

// SchedulerState is the spaced-repetition algorithm's per-card state.
// Only the scheduler interprets it.
type SchedulerState []byte

// Clone returns an independent copy of the state.
func (s SchedulerState) Clone() SchedulerState {
	if s == nil {
		return nil
	}
	out := make(SchedulerState, len(s))
	copy(out, s)
	return out
}

// ReviewEvent records a single review of a card. It is never modified after
// creation.
type ReviewEvent struct {
	ID        uuid.UUID `db:"id"`
	CardID    uuid.UUID `db:"card_id"`
	Timestamp time.Time `db:"reviewed_at"`
	Outcome   Outcome   `db:"outcome"`
}

// Card is a single flashcard with its own schedule.
type Card struct {
	ID             uuid.UUID
	Front          string
	Back           string
	Notes          string
	CreatedAt      time.Time
	ModifiedAt     time.Time
	NextReviewDate time.Time
	SchedulerState SchedulerState
	// Reviews is in chronological (insertion) order.
	Reviews []ReviewEvent
	Tags    TagSet
}

// NewCard creates a card due at now whose scheduler state is state.
func NewCard(front, back, notes string, now time.Time, state SchedulerState) *Card {
	return &Card{
		ID:             uuid.New(),
		Front:          front,
		Back:           back,
		Notes:          notes,
		CreatedAt:      now,
		ModifiedAt:     now,
		NextReviewDate: now,
		SchedulerState: state,
		Tags:           TagSet{},
	}
}

// Clone returns a deep copy of the card. Reviews, scheduler state and tags
// are not shared with c.
func (c *Card) Clone() *Card {
	out := *c
	out.SchedulerState = c.SchedulerState.Clone()
	out.Reviews = slices.Clone(c.Reviews)
	out.Tags = NewTagSet(c.Tags.IDs()...)
	return &out
}

// IsEmpty reports whether both front and back are empty. Empty cards are
// never persisted.
func (c *Card) IsEmpty() bool {
	return c.Front == "" && c.Back == ""
}

// HasTag reports whether the card carries the tag.
func (c *Card) HasTag(id uuid.UUID) bool {
	return c.Tags.Has(id)
}

// NeverStudied reports whether the card has no reviews.
func (c *Card) NeverStudied() bool {
	return len(c.Reviews) == 0
}

// TagSet is an unordered set of tag ids.
type TagSet map[uuid.UUID]struct{}

// NewTagSet builds a set from ids, dropping duplicates.
func NewTagSet(ids ...uuid.UUID) TagSet {
	s := make(TagSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s TagSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s TagSet) Add(id uuid.UUID) {
	s[id] = struct{}{}
}

func (s TagSet) Remove(id uuid.UUID) {
	delete(s, id)
}

// IDs returns the members in no particular order.
func (s TagSet) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}
