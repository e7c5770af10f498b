// Package ledger records reviews on a card and answers questions about its
// review history.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/scheduler"
	"github.com/conorfennell/flashcards/internal/undo"
)

// DoneThreshold is how far out a card must be due to count as handled for the
// current session. Cards due sooner, such as freshly failed cards in
// short-interval relearning, stay in the study queue.
const DoneThreshold = 8 * time.Minute

// Ledger appends reviews and keeps the card's schedule consistent with them.
type Ledger struct {
	sched *scheduler.Scheduler
}

func New(sched *scheduler.Scheduler) *Ledger {
	return &Ledger{sched: sched}
}

// Scheduler returns the scheduler driven by the ledger.
func (l *Ledger) Scheduler() *scheduler.Scheduler {
	return l.sched
}

// RecordReview appends a review stamped now and stores the scheduler's new
// state and due date on card. The scheduler runs before anything is touched,
// so either the whole review lands or the card is unchanged. The returned
// token reverses exactly this review.
func (l *Ledger) RecordReview(card *domain.Card, outcome domain.Outcome, now time.Time) (domain.ReviewEvent, *undo.Token) {
	state, due := l.sched.ApplyOutcome(card.SchedulerState, outcome, now)

	event := domain.ReviewEvent{
		ID:        uuid.New(),
		CardID:    card.ID,
		Timestamp: now,
		Outcome:   outcome,
	}
	token := undo.Capture(card, event, card.SchedulerState, card.NextReviewDate)

	card.Reviews = append(card.Reviews, event)
	card.SchedulerState = state
	card.NextReviewDate = due
	card.ModifiedAt = now

	return event, token
}

// LastReviewDate returns the timestamp of the most recent review.
func LastReviewDate(card *domain.Card) (time.Time, bool) {
	if len(card.Reviews) == 0 {
		return time.Time{}, false
	}
	return card.Reviews[len(card.Reviews)-1].Timestamp, true
}

// IsDoneForNow reports whether card is due more than DoneThreshold after now.
func IsDoneForNow(card *domain.Card, now time.Time) bool {
	return card.NextReviewDate.Sub(now) > DoneThreshold
}
