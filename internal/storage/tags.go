package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/flashcards/internal/domain"
)

// InsertTag stores a new tag, assigning an id when it has none.
func (db *DB) InsertTag(ctx context.Context, tag *domain.Tag) error {
	if strings.TrimSpace(tag.Name) == "" {
		return fmt.Errorf("tag name must not be empty")
	}
	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	_, err := db.conn.NamedExecContext(ctx,
		"INSERT INTO tags (id, name, study_mode, bucket) VALUES (:id, :name, :study_mode, :bucket)", tag)
	if err != nil {
		return fmt.Errorf("creating tag: %w", err)
	}
	return nil
}

// UpdateTag writes a tag's name, study mode and selection bucket.
func (db *DB) UpdateTag(ctx context.Context, tag *domain.Tag) error {
	if strings.TrimSpace(tag.Name) == "" {
		return fmt.Errorf("tag name must not be empty")
	}
	res, err := db.conn.NamedExecContext(ctx,
		"UPDATE tags SET name = :name, study_mode = :study_mode, bucket = :bucket WHERE id = :id", tag)
	if err != nil {
		return fmt.Errorf("updating tag %s: %w", tag.ID, err)
	}
	return mustAffect(res, tag.ID)
}

// DeleteTag removes a tag. Cards that carried it are kept.
func (db *DB) DeleteTag(ctx context.Context, id uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting tag %s: %w", id, err)
	}
	return mustAffect(res, id)
}

// GetTag loads one tag.
func (db *DB) GetTag(ctx context.Context, id uuid.UUID) (*domain.Tag, error) {
	var t domain.Tag
	err := db.conn.GetContext(ctx, &t, "SELECT id, name, study_mode, bucket FROM tags WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tag %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting tag %s: %w", id, err)
	}
	return &t, nil
}

// ListTags returns all tags ordered by name.
func (db *DB) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	var tags []*domain.Tag
	q := sq.Select("id", "name", "study_mode", "bucket").From("tags").OrderBy("name COLLATE NOCASE", "id")
	if err := selectx(ctx, db.conn, &tags, q); err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	return tags, nil
}

// FindTagsByName returns the tags named name, ignoring case.
func (db *DB) FindTagsByName(ctx context.Context, name string) ([]*domain.Tag, error) {
	var tags []*domain.Tag
	q := sq.Select("id", "name", "study_mode", "bucket").From("tags").
		Where("name = ? COLLATE NOCASE", name).OrderBy("id")
	if err := selectx(ctx, db.conn, &tags, q); err != nil {
		return nil, fmt.Errorf("querying tags named %q: %w", name, err)
	}
	return tags, nil
}

// SetCardTags replaces all tag associations for a card.
func (db *DB) SetCardTags(ctx context.Context, cardID uuid.UUID, tagIDs []uuid.UUID) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM cards WHERE id = ?)", cardID); err != nil {
			return fmt.Errorf("checking card %s: %w", cardID, err)
		}
		if !exists {
			return fmt.Errorf("card %s: %w", cardID, ErrNotFound)
		}
		return replaceCardTags(ctx, tx, cardID, tagIDs)
	})
}

func replaceCardTags(ctx context.Context, tx *sqlx.Tx, cardID uuid.UUID, tagIDs []uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM card_tags WHERE card_id = ?", cardID); err != nil {
		return fmt.Errorf("clearing tags for card %s: %w", cardID, err)
	}
	return insertCardTags(ctx, tx, cardID, tagIDs)
}

// TagMembers returns the ids of the cards carrying tag.
func (db *DB) TagMembers(ctx context.Context, tagID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.conn.SelectContext(ctx, &ids,
		"SELECT card_id FROM card_tags WHERE tag_id = ? ORDER BY card_id", tagID)
	if err != nil {
		return nil, fmt.Errorf("querying members of tag %s: %w", tagID, err)
	}
	return ids, nil
}
