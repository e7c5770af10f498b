package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/flashcards/internal/domain"
)

// AppendReview stores event together with the card's new scheduler state,
// due date and modification date, in one transaction.
func (db *DB) AppendReview(ctx context.Context, card *domain.Card, event domain.ReviewEvent) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertReview(ctx, tx, event); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE cards SET scheduler_state = ?, next_review_date = ?, modified_at = ?
			WHERE id = ?
		`, []byte(card.SchedulerState), utc(card.NextReviewDate), utc(card.ModifiedAt), card.ID)
		if err != nil {
			return fmt.Errorf("failed to update schedule for card %s: %w", card.ID, err)
		}
		return mustAffect(res, card.ID)
	})
}

// RemoveReview deletes the review eventID and writes back the card's restored
// scheduler state and due date, in one transaction. A review that is already
// gone is not an error.
func (db *DB) RemoveReview(ctx context.Context, card *domain.Card, eventID uuid.UUID) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM reviews WHERE id = ? AND card_id = ?", eventID, card.ID); err != nil {
			return fmt.Errorf("failed to delete review %s: %w", eventID, err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE cards SET scheduler_state = ?, next_review_date = ?
			WHERE id = ?
		`, []byte(card.SchedulerState), utc(card.NextReviewDate), card.ID)
		if err != nil {
			return fmt.Errorf("failed to restore schedule for card %s: %w", card.ID, err)
		}
		return mustAffect(res, card.ID)
	})
}

func insertReview(ctx context.Context, tx *sqlx.Tx, ev domain.ReviewEvent) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO reviews (id, card_id, reviewed_at, outcome) VALUES (?, ?, ?, ?)",
		ev.ID, ev.CardID, utc(ev.Timestamp), string(ev.Outcome),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review %s: %w", ev.ID, err)
	}
	return nil
}
