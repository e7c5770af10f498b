// Package study holds a learner's in-progress study session: the loaded deck,
// the active tag selection and the undo history.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/ledger"
	"github.com/conorfennell/flashcards/internal/queue"
	"github.com/conorfennell/flashcards/internal/scheduler"
	"github.com/conorfennell/flashcards/internal/undo"
)

var (
	ErrCardNotFound = errors.New("study: card not found")
	ErrTagNotFound  = errors.New("study: tag not found")
	ErrEmptyCard    = errors.New("study: card has neither front nor back")
)

// Store persists session changes. Each call must be atomic.
type Store interface {
	AppendReview(ctx context.Context, card *domain.Card, event domain.ReviewEvent) error
	RemoveReview(ctx context.Context, card *domain.Card, eventID uuid.UUID) error
	UpdateCard(ctx context.Context, card *domain.Card) error
	DeleteCard(ctx context.Context, id uuid.UUID) error
	SetCardTags(ctx context.Context, cardID uuid.UUID, tagIDs []uuid.UUID) error
}

// Options configures a Session. Zero values pick sensible defaults.
type Options struct {
	UndoDepth int
	Mode      queue.Mode
	Location  *time.Location
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Session is safe for concurrent use. Cards handed out by its methods are
// copies; changes go through Submit, Undo, Edit, SetTags and Delete.
type Session struct {
	mu sync.Mutex

	ledger *ledger.Ledger
	store  Store
	undo   *undo.Stack
	log    *slog.Logger
	now    func() time.Time
	loc    *time.Location
	mode   queue.Mode

	cards []*domain.Card
	byID  map[uuid.UUID]*domain.Card
	tags  map[uuid.UUID]*domain.Tag
	sel   domain.TagSelection
}

// New starts a session over cards and tags. The selection is taken from the
// tags' persisted buckets.
func New(l *ledger.Ledger, store Store, cards []*domain.Card, tags []*domain.Tag, opts Options) *Session {
	if opts.UndoDepth == 0 {
		opts.UndoDepth = undo.DefaultDepth
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Session{
		ledger: l,
		store:  store,
		undo:   undo.NewStack(opts.UndoDepth),
		log:    opts.Logger,
		now:    opts.Clock,
		loc:    opts.Location,
		mode:   opts.Mode,
		cards:  cards,
		byID:   make(map[uuid.UUID]*domain.Card, len(cards)),
		tags:   make(map[uuid.UUID]*domain.Tag, len(tags)),
		sel:    domain.SelectionFromTags(tags),
	}
	for _, c := range cards {
		s.byID[c.ID] = c
	}
	for _, t := range tags {
		s.tags[t.ID] = t
	}
	return s
}

// Reset replaces the deck and tags, for example after an import. The undo
// history refers to the old deck and is dropped.
func (s *Session) Reset(cards []*domain.Card, tags []*domain.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cards = cards
	s.byID = make(map[uuid.UUID]*domain.Card, len(cards))
	for _, c := range cards {
		s.byID[c.ID] = c
	}
	s.tags = make(map[uuid.UUID]*domain.Tag, len(tags))
	for _, t := range tags {
		s.tags[t.ID] = t
	}
	s.sel = domain.SelectionFromTags(tags)
	s.undo.Clear()
}

// Current returns the next card to study and the side to recall.
func (s *Session) Current() (*domain.Card, domain.StudyMode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := queue.Current(s.cards, s.tags, s.sel, s.mode, s.now())
	if !ok {
		return nil, domain.StudyModeUnset, false
	}
	return c.Clone(), domain.EffectiveStudyMode(c, s.tags), true
}

// DueCount is the number of cards still to study now.
func (s *Session) DueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queue.DueCount(s.cards, s.tags, s.sel, s.mode, s.now())
}

// Submit records outcome for the card and persists it. If the store rejects
// the write the card is left as it was.
func (s *Session) Submit(ctx context.Context, cardID uuid.UUID, outcome domain.Outcome) (domain.ReviewEvent, error) {
	if !outcome.Valid() {
		return domain.ReviewEvent{}, fmt.Errorf("%w: %q", scheduler.ErrInvalidOutcome, outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.byID[cardID]
	if !ok {
		return domain.ReviewEvent{}, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	modified := card.ModifiedAt

	event, token := s.ledger.RecordReview(card, outcome, s.now())
	if err := s.store.AppendReview(ctx, card, event); err != nil {
		token.Undo()
		card.ModifiedAt = modified
		return domain.ReviewEvent{}, fmt.Errorf("saving review of card %s: %w", cardID, err)
	}
	s.undo.Push(token)

	s.log.Info("Recorded review",
		"card", cardID,
		"outcome", outcome,
		"next_review", card.NextReviewDate.Format(time.RFC3339),
	)
	return event, nil
}

// Undo reverts the most recent review that can still be reverted. It
// reports false when there is nothing to undo. Tokens whose review is no
// longer the card's latest are discarded on the way.
func (s *Session) Undo(ctx context.Context) (*domain.Card, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		token, ok := s.undo.Pop()
		if !ok {
			return nil, false, nil
		}
		if !token.Undoable() {
			continue
		}
		card := token.Card()
		snapshot := snapshotOf(card)
		token.Undo()

		if err := s.store.RemoveReview(ctx, card, token.Event().ID); err != nil {
			snapshot.restore()
			s.undo.Push(token)
			return nil, false, fmt.Errorf("removing review of card %s: %w", card.ID, err)
		}

		s.log.Info("Undid review", "card", card.ID, "review", token.Event().ID)
		return card.Clone(), true, nil
	}
}

// CardEdit is a direct edit of a card. Nil fields are left as they are.
type CardEdit struct {
	Front          *string
	Back           *string
	Notes          *string
	NextReviewDate *time.Time
}

// Edit applies a direct edit and persists it. Moving the due date discards
// the card's pending undos.
func (s *Session) Edit(ctx context.Context, cardID uuid.UUID, edit CardEdit) (*domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.byID[cardID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	next := card.Clone()
	if edit.Front != nil {
		next.Front = *edit.Front
	}
	if edit.Back != nil {
		next.Back = *edit.Back
	}
	if edit.Notes != nil {
		next.Notes = *edit.Notes
	}
	if edit.NextReviewDate != nil {
		next.NextReviewDate = *edit.NextReviewDate
	}
	if next.IsEmpty() {
		return nil, ErrEmptyCard
	}
	next.ModifiedAt = s.now()

	if err := s.store.UpdateCard(ctx, next); err != nil {
		return nil, fmt.Errorf("saving card %s: %w", cardID, err)
	}
	*card = *next

	dropped := 0
	if edit.NextReviewDate != nil {
		dropped = s.undo.Drop(card)
	}
	s.log.Info("Edited card", "card", cardID, "dropped_undos", dropped)
	return card.Clone(), nil
}

// SetTags replaces the card's tags. Every tag must belong to the session.
func (s *Session) SetTags(ctx context.Context, cardID uuid.UUID, tagIDs []uuid.UUID) (*domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.byID[cardID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	for _, id := range tagIDs {
		if _, ok := s.tags[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrTagNotFound, id)
		}
	}
	if err := s.store.SetCardTags(ctx, cardID, tagIDs); err != nil {
		return nil, fmt.Errorf("saving tags of card %s: %w", cardID, err)
	}
	card.Tags = domain.NewTagSet(tagIDs...)

	s.log.Info("Set card tags", "card", cardID, "tags", len(card.Tags))
	return card.Clone(), nil
}

// Delete removes a card and any pending undos for it.
func (s *Session) Delete(ctx context.Context, cardID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.byID[cardID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		return fmt.Errorf("deleting card %s: %w", cardID, err)
	}
	delete(s.byID, cardID)
	s.cards = slices.DeleteFunc(s.cards, func(c *domain.Card) bool { return c == card })
	dropped := s.undo.Drop(card)

	s.log.Info("Deleted card", "card", cardID, "dropped_undos", dropped)
	return nil
}

// PendingUndos is how many reviews the undo history currently holds.
func (s *Session) PendingUndos() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.Len()
}

// Groups partitions the cards matching the selection by due day.
func (s *Session) Groups() []queue.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := queue.GroupByDue(s.cards, s.sel, s.now(), s.loc)
	for i := range groups {
		groups[i].Cards = cloneAll(groups[i].Cards)
	}
	return groups
}

// SetBucket moves a tag into a selection bucket for this session.
func (s *Session) SetBucket(tagID uuid.UUID, bucket domain.Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.Set(tagID, bucket)
}

// Card looks up a card in the session's deck.
func (s *Session) Card(id uuid.UUID) (*domain.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Cards returns the deck ordered by due date.
func (s *Session) Cards() []*domain.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := cloneAll(s.cards)
	queue.Sort(out)
	return out
}

func cloneAll(cards []*domain.Card) []*domain.Card {
	out := make([]*domain.Card, len(cards))
	for i, c := range cards {
		out[i] = c.Clone()
	}
	return out
}

// Tags returns the session's tags keyed by id.
func (s *Session) Tags() map[uuid.UUID]*domain.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]*domain.Tag, len(s.tags))
	for id, t := range s.tags {
		tag := *t
		out[id] = &tag
	}
	return out
}

type cardSnapshot struct {
	card     *domain.Card
	state    domain.SchedulerState
	due      time.Time
	reviews  []domain.ReviewEvent
	modified time.Time
}

func snapshotOf(c *domain.Card) cardSnapshot {
	return cardSnapshot{
		card:     c,
		state:    c.SchedulerState.Clone(),
		due:      c.NextReviewDate,
		reviews:  slices.Clone(c.Reviews),
		modified: c.ModifiedAt,
	}
}

func (s cardSnapshot) restore() {
	s.card.SchedulerState = s.state
	s.card.NextReviewDate = s.due
	s.card.Reviews = s.reviews
	s.card.ModifiedAt = s.modified
}
