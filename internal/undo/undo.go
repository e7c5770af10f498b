// Package undo reverses reviews recorded by the ledger.
package undo

import (
	"time"

	"github.com/conorfennell/flashcards/internal/domain"
)

// DefaultDepth is the multi-undo stack capacity.
const DefaultDepth = 10

// Token is a pre-review snapshot of the three things a review changes: the
// appended event, the prior scheduler state and the prior due date.
type Token struct {
	card       *domain.Card
	event      domain.ReviewEvent
	priorState domain.SchedulerState
	priorDue   time.Time
}

// Capture must be called before the review mutates card.
func Capture(card *domain.Card, event domain.ReviewEvent, priorState domain.SchedulerState, priorDue time.Time) *Token {
	return &Token{
		card:       card,
		event:      event,
		priorState: priorState.Clone(),
		priorDue:   priorDue,
	}
}

// Card returns the card the token reverses.
func (t *Token) Card() *domain.Card { return t.card }

// Event returns the review the token removes.
func (t *Token) Event() domain.ReviewEvent { return t.event }

// PriorDue returns the due date restored by Undo.
func (t *Token) PriorDue() time.Time { return t.priorDue }

// PriorState returns the scheduler state restored by Undo.
func (t *Token) PriorState() domain.SchedulerState { return t.priorState }

// Undoable reports whether Undo would change the card: the captured event
// must still be the card's most recent review.
func (t *Token) Undoable() bool {
	n := len(t.card.Reviews)
	return n > 0 && t.card.Reviews[n-1].ID == t.event.ID
}

// Undo removes the captured event and restores the prior due date and state.
// It reports false and leaves the card untouched when the event is gone or a
// later review has been recorded on top of it. ModifiedAt is not restored.
func (t *Token) Undo() bool {
	if !t.Undoable() {
		return false
	}
	n := len(t.card.Reviews)
	t.card.Reviews[n-1] = domain.ReviewEvent{}
	t.card.Reviews = t.card.Reviews[:n-1]
	t.card.NextReviewDate = t.priorDue
	t.card.SchedulerState = t.priorState.Clone()
	return true
}
