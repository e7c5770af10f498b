package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/flashcards/internal/domain"
)

var cardColumns = []string{
	"id", "front", "back", "notes", "created_at", "modified_at",
	"next_review_date", "scheduler_state", "source_id",
}

type cardRow struct {
	ID             uuid.UUID     `db:"id"`
	Front          string        `db:"front"`
	Back           string        `db:"back"`
	Notes          string        `db:"notes"`
	CreatedAt      time.Time     `db:"created_at"`
	ModifiedAt     time.Time     `db:"modified_at"`
	NextReviewDate time.Time     `db:"next_review_date"`
	SchedulerState []byte        `db:"scheduler_state"`
	SourceID       sql.NullInt64 `db:"source_id"`
}

func (r cardRow) card() *domain.Card {
	return &domain.Card{
		ID:             r.ID,
		Front:          r.Front,
		Back:           r.Back,
		Notes:          r.Notes,
		CreatedAt:      r.CreatedAt,
		ModifiedAt:     r.ModifiedAt,
		NextReviewDate: r.NextReviewDate,
		SchedulerState: domain.SchedulerState(r.SchedulerState),
		Tags:           domain.TagSet{},
	}
}

type reviewRow struct {
	ID         uuid.UUID `db:"id"`
	CardID     uuid.UUID `db:"card_id"`
	ReviewedAt time.Time `db:"reviewed_at"`
	Outcome    string    `db:"outcome"`
}

type cardTagRow struct {
	CardID uuid.UUID `db:"card_id"`
	TagID  uuid.UUID `db:"tag_id"`
}

// ListOptions narrows ListCards.
type ListOptions struct {
	SourceID *int64
	Limit    int
}

// InsertCard stores a new card with its tags and any reviews it already has.
// Empty cards are refused.
func (db *DB) InsertCard(ctx context.Context, card *domain.Card, sourceID *int64) error {
	if card.IsEmpty() {
		return ErrEmptyCard
	}
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		var src sql.NullInt64
		if sourceID != nil {
			src = sql.NullInt64{Int64: *sourceID, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cards (id, front, back, notes, created_at, modified_at, next_review_date, scheduler_state, source_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			card.ID, card.Front, card.Back, card.Notes,
			utc(card.CreatedAt), utc(card.ModifiedAt), utc(card.NextReviewDate),
			[]byte(card.SchedulerState), src,
		)
		if err != nil {
			return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
		}
		if err := insertCardTags(ctx, tx, card.ID, card.Tags.IDs()); err != nil {
			return err
		}
		for _, ev := range card.Reviews {
			if err := insertReview(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateCard writes a direct edit: text fields, due date, scheduler state and
// the tag set. Reviews are left alone; they change only through AppendReview
// and RemoveReview.
func (db *DB) UpdateCard(ctx context.Context, card *domain.Card) error {
	if card.IsEmpty() {
		return ErrEmptyCard
	}
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE cards
			SET front = ?, back = ?, notes = ?, modified_at = ?, next_review_date = ?, scheduler_state = ?
			WHERE id = ?
		`,
			card.Front, card.Back, card.Notes,
			utc(card.ModifiedAt), utc(card.NextReviewDate), []byte(card.SchedulerState),
			card.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update card %s: %w", card.ID, err)
		}
		if err := mustAffect(res, card.ID); err != nil {
			return err
		}
		return replaceCardTags(ctx, tx, card.ID, card.Tags.IDs())
	})
}

// DeleteCard removes a card. Its reviews and tag links go with it.
func (db *DB) DeleteCard(ctx context.Context, id uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM cards WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return mustAffect(res, id)
}

// GetCard loads one card with its tags and reviews.
func (db *DB) GetCard(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	var row cardRow
	query, args, err := sq.Select(cardColumns...).From("cards").Where(sq.Eq{"id": id.String()}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	if err := db.conn.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	cards, err := db.hydrate(ctx, []cardRow{row})
	if err != nil {
		return nil, err
	}
	return cards[0], nil
}

// ListCards returns cards ordered by ascending due date with their tags and
// reviews.
func (db *DB) ListCards(ctx context.Context, opts ListOptions) ([]*domain.Card, error) {
	q := sq.Select(cardColumns...).From("cards").OrderBy("next_review_date ASC", "created_at ASC")
	if opts.SourceID != nil {
		q = q.Where(sq.Eq{"source_id": *opts.SourceID})
	}
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	}

	var rows []cardRow
	if err := selectx(ctx, db.conn, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return db.hydrate(ctx, rows)
}

// hydrateBatch caps the ids bound into one IN list, well below SQLite's
// bound parameter limit.
var hydrateBatch = 500

// hydrate attaches tags and reviews to card rows.
func (db *DB) hydrate(ctx context.Context, rows []cardRow) ([]*domain.Card, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cards := make([]*domain.Card, len(rows))
	byID := make(map[uuid.UUID]*domain.Card, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		cards[i] = r.card()
		byID[r.ID] = cards[i]
		ids[i] = r.ID.String()
	}

	for chunk := range slices.Chunk(ids, hydrateBatch) {
		var links []cardTagRow
		if err := selectx(ctx, db.conn, &links,
			sq.Select("card_id", "tag_id").From("card_tags").Where(sq.Eq{"card_id": chunk})); err != nil {
			return nil, fmt.Errorf("failed to load card tags: %w", err)
		}
		for _, l := range links {
			byID[l.CardID].Tags.Add(l.TagID)
		}

		var reviews []reviewRow
		if err := selectx(ctx, db.conn, &reviews,
			sq.Select("id", "card_id", "reviewed_at", "outcome").From("reviews").
				Where(sq.Eq{"card_id": chunk}).OrderBy("rowid ASC")); err != nil {
			return nil, fmt.Errorf("failed to load reviews: %w", err)
		}
		for _, r := range reviews {
			c := byID[r.CardID]
			c.Reviews = append(c.Reviews, domain.ReviewEvent{
				ID:        r.ID,
				CardID:    r.CardID,
				Timestamp: r.ReviewedAt,
				Outcome:   domain.Outcome(r.Outcome),
			})
		}
	}
	return cards, nil
}

// FindDuplicateTexts returns the fronts and backs of every stored card, for
// import duplicate detection.
func (db *DB) FindDuplicateTexts(ctx context.Context) ([]string, error) {
	var texts []string
	err := db.conn.SelectContext(ctx, &texts, "SELECT front FROM cards UNION ALL SELECT back FROM cards")
	if err != nil {
		return nil, fmt.Errorf("failed to read card texts: %w", err)
	}
	return texts, nil
}

func insertCardTags(ctx context.Context, tx *sqlx.Tx, cardID uuid.UUID, tagIDs []uuid.UUID) error {
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO card_tags (card_id, tag_id) VALUES (?, ?)", cardID, tagID); err != nil {
			return fmt.Errorf("setting tag %s on card %s: %w", tagID, cardID, err)
		}
	}
	return nil
}

func mustAffect(res sql.Result, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows for %v: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%v: %w", id, ErrNotFound)
	}
	return nil
}
