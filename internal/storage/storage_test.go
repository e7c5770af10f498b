package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/flashcards/internal/domain"
	"github.com/conorfennell/flashcards/internal/ledger"
	"github.com/conorfennell/flashcards/internal/scheduler"
)

var t0 = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newLedger() *ledger.Ledger {
	return ledger.New(scheduler.New(scheduler.NewFSRS(scheduler.FSRSOptions{})))
}

func TestOpenIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.migrate())

	var versions int
	require.NoError(t, db.conn.Get(&versions, "SELECT COUNT(*) FROM schema_version"))
	assert.Equal(t, 1, versions)
}

func TestInsertAndGetCard(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	tag := &domain.Tag{Name: "korean", StudyMode: domain.StudyModeBack}
	require.NoError(t, db.InsertTag(ctx, tag))

	card := newLedger().Scheduler().NewCard("한국어", "Korean", "language", t0)
	card.Tags.Add(tag.ID)
	require.NoError(t, db.InsertCard(ctx, card, nil))

	got, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card.Front, got.Front)
	assert.Equal(t, card.Back, got.Back)
	assert.Equal(t, card.Notes, got.Notes)
	assert.True(t, got.NextReviewDate.Equal(t0))
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.Equal(t, card.SchedulerState, got.SchedulerState)
	assert.True(t, got.HasTag(tag.ID))
	assert.Empty(t, got.Reviews)
}

func TestInsertCardRefusesEmpty(t *testing.T) {
	db := openTestDB(t)
	card := domain.NewCard("", "", "only notes", t0, domain.SchedulerState("{}"))
	assert.ErrorIs(t, db.InsertCard(context.Background(), card, nil), ErrEmptyCard)
}

func TestGetCardNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetCard(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendAndRemoveReview(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	l := newLedger()

	card := l.Scheduler().NewCard("front", "back", "", t0)
	require.NoError(t, db.InsertCard(ctx, card, nil))

	first, _ := l.RecordReview(card, domain.OutcomeOK, t0.Add(time.Hour))
	require.NoError(t, db.AppendReview(ctx, card, first))
	second, token := l.RecordReview(card, domain.OutcomeFail, t0.Add(48*time.Hour))
	require.NoError(t, db.AppendReview(ctx, card, second))

	got, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, got.Reviews, 2)
	assert.Equal(t, first.ID, got.Reviews[0].ID)
	assert.Equal(t, domain.OutcomeFail, got.Reviews[1].Outcome)
	assert.True(t, got.NextReviewDate.Equal(card.NextReviewDate))
	assert.Equal(t, card.SchedulerState, got.SchedulerState)

	require.True(t, token.Undo())
	require.NoError(t, db.RemoveReview(ctx, card, second.ID))

	got, err = db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, got.Reviews, 1)
	assert.Equal(t, first.ID, got.Reviews[0].ID)
	assert.True(t, got.NextReviewDate.Equal(token.PriorDue()))
	assert.Equal(t, token.PriorState(), got.SchedulerState)
}

func TestListCardsOrderedByDue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sched := newLedger().Scheduler()

	for _, offset := range []int{3, -1, 1} {
		c := sched.NewCard("f", "b", "", t0)
		c.NextReviewDate = t0.AddDate(0, 0, offset)
		require.NoError(t, db.InsertCard(ctx, c, nil))
	}

	cards, err := db.ListCards(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.True(t, cards[0].NextReviewDate.Equal(t0.AddDate(0, 0, -1)))
	assert.True(t, cards[1].NextReviewDate.Equal(t0.AddDate(0, 0, 1)))
	assert.True(t, cards[2].NextReviewDate.Equal(t0.AddDate(0, 0, 3)))

	limited, err := db.ListCards(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDeleteCardCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	l := newLedger()

	tag := &domain.Tag{Name: "verbs"}
	require.NoError(t, db.InsertTag(ctx, tag))
	card := l.Scheduler().NewCard("front", "back", "", t0)
	card.Tags.Add(tag.ID)
	require.NoError(t, db.InsertCard(ctx, card, nil))
	ev, _ := l.RecordReview(card, domain.OutcomeOK, t0.Add(time.Hour))
	require.NoError(t, db.AppendReview(ctx, card, ev))

	require.NoError(t, db.DeleteCard(ctx, card.ID))

	var reviews int
	require.NoError(t, db.conn.Get(&reviews, "SELECT COUNT(*) FROM reviews"))
	assert.Zero(t, reviews)
	members, err := db.TagMembers(ctx, tag.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	assert.ErrorIs(t, db.DeleteCard(ctx, card.ID), ErrNotFound)
}

func TestDeleteTagKeepsCards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	tag := &domain.Tag{Name: "verbs"}
	require.NoError(t, db.InsertTag(ctx, tag))
	card := newLedger().Scheduler().NewCard("front", "back", "", t0)
	card.Tags.Add(tag.ID)
	require.NoError(t, db.InsertCard(ctx, card, nil))

	require.NoError(t, db.DeleteTag(ctx, tag.ID))

	got, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
}

func TestTagsSortedAndUpdated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, name := range []string{"verbs", "Adjectives", "nouns"} {
		require.NoError(t, db.InsertTag(ctx, &domain.Tag{Name: name}))
	}
	tags, err := db.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, []string{"Adjectives", "nouns", "verbs"},
		[]string{tags[0].Name, tags[1].Name, tags[2].Name})

	tags[1].StudyMode = domain.StudyModeBoth
	tags[1].Bucket = domain.BucketAll
	require.NoError(t, db.UpdateTag(ctx, tags[1]))

	got, err := db.GetTag(ctx, tags[1].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StudyModeBoth, got.StudyMode)
	assert.Equal(t, domain.BucketAll, got.Bucket)

	found, err := db.FindTagsByName(ctx, "NOUNS")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, tags[1].ID, found[0].ID)

	assert.Error(t, db.InsertTag(ctx, &domain.Tag{Name: "  "}))
}

func TestSetCardTags(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := &domain.Tag{Name: "a"}
	b := &domain.Tag{Name: "b"}
	require.NoError(t, db.InsertTag(ctx, a))
	require.NoError(t, db.InsertTag(ctx, b))
	card := newLedger().Scheduler().NewCard("front", "back", "", t0)
	card.Tags.Add(a.ID)
	require.NoError(t, db.InsertCard(ctx, card, nil))

	require.NoError(t, db.SetCardTags(ctx, card.ID, []uuid.UUID{b.ID}))

	got, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.False(t, got.HasTag(a.ID))
	assert.True(t, got.HasTag(b.ID))

	assert.ErrorIs(t, db.SetCardTags(ctx, uuid.New(), []uuid.UUID{b.ID}), ErrNotFound)
}

func TestUpdateCard(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	l := newLedger()
	card := l.Scheduler().NewCard("front", "back", "", t0)
	require.NoError(t, db.InsertCard(ctx, card, nil))
	require.NoError(t, db.AppendReview(ctx, card, recordOK(l, card)))

	card.Front = "앞"
	card.NextReviewDate = t0.Add(48 * time.Hour)
	card.ModifiedAt = t0.Add(time.Hour)
	require.NoError(t, db.UpdateCard(ctx, card))

	got, err := db.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "앞", got.Front)
	assert.True(t, got.NextReviewDate.Equal(card.NextReviewDate))
	assert.Len(t, got.Reviews, 1, "edits leave the review history alone")

	card.Front, card.Back = "", ""
	assert.ErrorIs(t, db.UpdateCard(ctx, card), ErrEmptyCard)

	missing := l.Scheduler().NewCard("x", "y", "", t0)
	assert.ErrorIs(t, db.UpdateCard(ctx, missing), ErrNotFound)
}

func TestListCardsHydratesInBatches(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	l := newLedger()

	defer func(n int) { hydrateBatch = n }(hydrateBatch)
	hydrateBatch = 2

	tag := &domain.Tag{Name: "deck"}
	require.NoError(t, db.InsertTag(ctx, tag))
	for i := 0; i < 5; i++ {
		card := l.Scheduler().NewCard("front", "back", "", t0.Add(time.Duration(i)*time.Minute))
		card.Tags.Add(tag.ID)
		require.NoError(t, db.InsertCard(ctx, card, nil))
		require.NoError(t, db.AppendReview(ctx, card, recordOK(l, card)))
	}

	cards, err := db.ListCards(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, cards, 5)
	for _, c := range cards {
		assert.True(t, c.HasTag(tag.ID))
		assert.Len(t, c.Reviews, 1)
	}
}

func recordOK(l *ledger.Ledger, card *domain.Card) domain.ReviewEvent {
	ev, _ := l.RecordReview(card, domain.OutcomeOK, card.NextReviewDate.Add(time.Minute))
	return ev
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.InsertSource(ctx, "/decks", "local")
	require.NoError(t, err)

	src, err := db.FindSourceByPath(ctx, "/decks")
	require.NoError(t, err)
	assert.Equal(t, id, src.ID)
	assert.False(t, src.LastScanned.Valid)

	require.NoError(t, db.UpdateSourceLastScanned(ctx, id, t0))
	all, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].LastScanned.Valid)

	card := newLedger().Scheduler().NewCard("front", "back", "", t0)
	require.NoError(t, db.InsertCard(ctx, card, &id))
	bySource, err := db.ListCards(ctx, ListOptions{SourceID: &id})
	require.NoError(t, err)
	assert.Len(t, bySource, 1)

	require.NoError(t, db.DeleteSource(ctx, id))
	_, err = db.GetCard(ctx, card.ID)
	assert.NoError(t, err)

	_, err = db.FindSourceByPath(ctx, "/decks")
	assert.ErrorIs(t, err, ErrNotFound)
}
