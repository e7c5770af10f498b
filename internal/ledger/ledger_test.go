package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/scheduler"
)

var t0 = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func newLedger() *Ledger {
	return New(scheduler.New(scheduler.NewFSRS(scheduler.FSRSOptions{})))
}

func TestRecordReviewKoreanScenario(t *testing.T) {
	l := newLedger()
	card := l.Scheduler().NewCard("한국어", "Korean", "", t0)
	initialState := card.SchedulerState.Clone()
	t1 := t0.Add(2 * time.Hour)

	event, token := l.RecordReview(card, domain.OutcomeOK, t1)

	assert.True(t, card.NextReviewDate.After(t1))
	require.Len(t, card.Reviews, 1)
	assert.Equal(t, domain.OutcomeOK, card.Reviews[0].Outcome)
	assert.Equal(t, event, card.Reviews[0])
	assert.Equal(t, card.ID, event.CardID)
	assert.True(t, card.ModifiedAt.Equal(t1))

	require.True(t, token.Undo())
	assert.True(t, card.NextReviewDate.Equal(t0))
	assert.Empty(t, card.Reviews)
	assert.Equal(t, initialState, card.SchedulerState)
}

func TestUndoRestoresHistoryInOrder(t *testing.T) {
	l := newLedger()
	card := l.Scheduler().NewCard("front", "back", "", t0)

	now := t0
	for _, o := range []domain.Outcome{domain.OutcomeOK, domain.OutcomeFail, domain.OutcomeOK} {
		now = now.Add(time.Hour)
		l.RecordReview(card, o, now)
	}
	history := append([]domain.ReviewEvent(nil), card.Reviews...)
	state := card.SchedulerState.Clone()
	due := card.NextReviewDate

	_, token := l.RecordReview(card, domain.OutcomeFail, now.Add(time.Hour))
	require.True(t, token.Undo())

	assert.Equal(t, history, card.Reviews)
	assert.Equal(t, state, card.SchedulerState)
	assert.True(t, card.NextReviewDate.Equal(due))
}

func TestUndoTwiceOnlyReversesOnce(t *testing.T) {
	l := newLedger()
	card := l.Scheduler().NewCard("front", "back", "", t0)
	l.RecordReview(card, domain.OutcomeOK, t0.Add(time.Hour))
	afterFirst := card.SchedulerState.Clone()
	dueAfterFirst := card.NextReviewDate

	_, token := l.RecordReview(card, domain.OutcomeOK, t0.Add(2*time.Hour))

	assert.True(t, token.Undo())
	assert.False(t, token.Undo())
	require.Len(t, card.Reviews, 1)
	assert.Equal(t, afterFirst, card.SchedulerState)
	assert.True(t, card.NextReviewDate.Equal(dueAfterFirst))
}

func TestStaleTokenDoesNotOverwriteNewerReview(t *testing.T) {
	l := newLedger()
	card := l.Scheduler().NewCard("front", "back", "", t0)

	_, first := l.RecordReview(card, domain.OutcomeOK, t0.Add(time.Hour))
	l.RecordReview(card, domain.OutcomeFail, t0.Add(2*time.Hour))
	state := card.SchedulerState.Clone()
	due := card.NextReviewDate

	assert.False(t, first.Undoable())
	assert.False(t, first.Undo())
	assert.Len(t, card.Reviews, 2)
	assert.Equal(t, state, card.SchedulerState)
	assert.True(t, card.NextReviewDate.Equal(due))
}

func TestRecordReviewLeavesCardUntouchedOnCorruptState(t *testing.T) {
	l := newLedger()
	card := l.Scheduler().NewCard("front", "back", "", t0)
	card.SchedulerState = domain.SchedulerState("garbage")

	assert.Panics(t, func() { l.RecordReview(card, domain.OutcomeOK, t0.Add(time.Hour)) })
	assert.Empty(t, card.Reviews)
	assert.True(t, card.NextReviewDate.Equal(t0))
	assert.Equal(t, domain.SchedulerState("garbage"), card.SchedulerState)
}

func TestLastReviewDate(t *testing.T) {
	l := newLedger()
	card := l.Scheduler().NewCard("front", "back", "", t0)

	_, ok := LastReviewDate(card)
	assert.False(t, ok)

	l.RecordReview(card, domain.OutcomeOK, t0.Add(time.Hour))
	l.RecordReview(card, domain.OutcomeOK, t0.Add(3*time.Hour))

	last, ok := LastReviewDate(card)
	require.True(t, ok)
	assert.True(t, last.Equal(t0.Add(3*time.Hour)))
}

func TestIsDoneForNow(t *testing.T) {
	now := t0
	testCases := []struct {
		name     string
		offset   time.Duration
		expected bool
	}{
		{"overdue", -time.Hour, false},
		{"due now", 0, false},
		{"one minute out", time.Minute, false},
		{"exactly eight minutes", 8 * time.Minute, false},
		{"just past eight minutes", 8*time.Minute + time.Second, true},
		{"tomorrow", 24 * time.Hour, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			card := domain.NewCard("f", "b", "", t0.Add(-48*time.Hour), nil)
			card.NextReviewDate = now.Add(tc.offset)
			assert.Equal(t, tc.expected, IsDoneForNow(card, now))
		})
	}
}

func TestFailedCardIsNotDoneForNow(t *testing.T) {
	l := newLedger()
	card := l.Scheduler().NewCard("front", "back", "", t0)
	now := t0.Add(time.Hour)

	l.RecordReview(card, domain.OutcomeFail, now)
	assert.False(t, IsDoneForNow(card, now))
}
