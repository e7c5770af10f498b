package undo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/flashcards/internal/domain"
)

var t0 = time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)

// review mimics what the ledger does so tokens can be tested in isolation.
func review(card *domain.Card, outcome domain.Outcome, now time.Time) *Token {
	event := domain.ReviewEvent{ID: uuid.New(), CardID: card.ID, Timestamp: now, Outcome: outcome}
	token := Capture(card, event, card.SchedulerState, card.NextReviewDate)
	card.Reviews = append(card.Reviews, event)
	card.SchedulerState = domain.SchedulerState(now.Format(time.RFC3339))
	card.NextReviewDate = now.Add(24 * time.Hour)
	card.ModifiedAt = now
	return token
}

func TestTokenUndo(t *testing.T) {
	card := domain.NewCard("f", "b", "", t0, domain.SchedulerState("initial"))
	token := review(card, domain.OutcomeOK, t0.Add(time.Hour))

	require.True(t, token.Undo())
	assert.Empty(t, card.Reviews)
	assert.Equal(t, domain.SchedulerState("initial"), card.SchedulerState)
	assert.True(t, card.NextReviewDate.Equal(t0))
	assert.True(t, card.ModifiedAt.Equal(t0.Add(time.Hour)), "modification date must not be restored")
}

func TestTokenUndoMissingEventIsNoop(t *testing.T) {
	card := domain.NewCard("f", "b", "", t0, domain.SchedulerState("initial"))
	token := review(card, domain.OutcomeOK, t0.Add(time.Hour))

	// Unrelated mutation removed the event.
	card.Reviews = nil
	due := card.NextReviewDate

	assert.False(t, token.Undo())
	assert.True(t, card.NextReviewDate.Equal(due))
}

func TestCaptureCopiesPriorState(t *testing.T) {
	state := domain.SchedulerState("abc")
	card := domain.NewCard("f", "b", "", t0, state)
	token := review(card, domain.OutcomeFail, t0)

	state[0] = 'z'
	assert.Equal(t, domain.SchedulerState("abc"), token.PriorState())
}

func TestStackEvictsOldest(t *testing.T) {
	s := NewStack(3)
	card := domain.NewCard("f", "b", "", t0, nil)

	var tokens []*Token
	for i := range 5 {
		tokens = append(tokens, review(card, domain.OutcomeOK, t0.Add(time.Duration(i)*time.Hour)))
		s.Push(tokens[i])
	}
	require.Equal(t, 3, s.Len())

	for i := 4; i >= 2; i-- {
		got, ok := s.Pop()
		require.True(t, ok)
		assert.Same(t, tokens[i], got)
	}
	_, ok := s.Pop()
	assert.False(t, ok)
}

func TestSingleDepthStack(t *testing.T) {
	s := NewStack(0)
	assert.Equal(t, 1, s.Depth())

	card := domain.NewCard("f", "b", "", t0, nil)
	s.Push(review(card, domain.OutcomeOK, t0))
	second := review(card, domain.OutcomeOK, t0.Add(time.Hour))
	s.Push(second)

	got, ok := s.Peek()
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, s.Len())
}

func TestStackUndoSkipsDeadTokens(t *testing.T) {
	s := NewStack(DefaultDepth)
	a := domain.NewCard("a", "a", "", t0, nil)
	b := domain.NewCard("b", "b", "", t0, nil)

	s.Push(review(a, domain.OutcomeOK, t0.Add(time.Hour)))
	s.Push(review(b, domain.OutcomeOK, t0.Add(2*time.Hour)))
	b.Reviews = nil

	undone, ok := s.Undo()
	require.True(t, ok)
	assert.Same(t, a, undone.Card())
	assert.Empty(t, a.Reviews)
	assert.Equal(t, 0, s.Len())

	_, ok = s.Undo()
	assert.False(t, ok)
}

func TestStackUndoWalksBackInOrder(t *testing.T) {
	s := NewStack(DefaultDepth)
	card := domain.NewCard("f", "b", "", t0, domain.SchedulerState("initial"))
	for i := 1; i <= 3; i++ {
		s.Push(review(card, domain.OutcomeOK, t0.Add(time.Duration(i)*time.Hour)))
	}

	for i := 3; i >= 1; i-- {
		_, ok := s.Undo()
		require.True(t, ok)
		assert.Len(t, card.Reviews, i-1)
	}
	assert.Equal(t, domain.SchedulerState("initial"), card.SchedulerState)
	assert.True(t, card.NextReviewDate.Equal(t0))
}

func TestStackClear(t *testing.T) {
	s := NewStack(2)
	card := domain.NewCard("f", "b", "", t0, nil)
	s.Push(review(card, domain.OutcomeOK, t0))
	s.Clear()
	assert.Equal(t, 0, s.Len())
	_, ok := s.Peek()
	assert.False(t, ok)
}

func TestStackDropRemovesOneCard(t *testing.T) {
	s := NewStack(DefaultDepth)
	a := domain.NewCard("a", "a", "", t0, nil)
	b := domain.NewCard("b", "b", "", t0, nil)

	s.Push(review(a, domain.OutcomeOK, t0.Add(time.Hour)))
	s.Push(review(b, domain.OutcomeOK, t0.Add(2*time.Hour)))
	s.Push(review(a, domain.OutcomeFail, t0.Add(3*time.Hour)))

	assert.Equal(t, 2, s.Drop(a))
	assert.Equal(t, 1, s.Len())
	top, ok := s.Peek()
	require.True(t, ok)
	assert.Same(t, b, top.Card())
	assert.Len(t, a.Reviews, 2, "dropping tokens must not touch the card")

	assert.Zero(t, s.Drop(a))
}
