package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mailagent/internal/model"
)

// SaveDrafts inserts a batch of drafts for one message in a single
// transaction. Drafts without an id are assigned one.
func (s *Store) SaveDrafts(ctx context.Context, messageID string, drafts []model.Draft) error {
	if len(drafts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO drafts (id, message_id, tone, content, sent, sent_at, created_at)
		VALUES (?, ?, ?, ?, 0, NULL, ?)`

	now := time.Now().UTC()
	for i := range drafts {
		d := &drafts[i]
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.MessageID = messageID
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, query,
			d.ID, d.MessageID, d.Tone, d.Content, d.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting draft for %s: %w", messageID, err)
		}
	}

	return tx.Commit()
}

// GetDrafts returns all drafts for a message, oldest first.
func (s *Store) GetDrafts(ctx context.Context, messageID string) ([]model.Draft, error) {
	drafts := []model.Draft{}
	err := s.db.SelectContext(ctx, &drafts,
		`SELECT * FROM drafts WHERE message_id = ? ORDER BY created_at, id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list drafts for %s: %w", messageID, err)
	}
	return drafts, nil
}

// GetDraft returns one draft by id.
func (s *Store) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	var d model.Draft
	err := s.db.GetContext(ctx, &d, `SELECT * FROM drafts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get draft %s: %w", id, err)
	}
	return &d, nil
}

// MarkSent records that a draft was sent. Sending is a user action, not a
// dedup guarantee; marking an already-sent draft refreshes sent_at.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE drafts SET sent = 1, sent_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark draft %s sent: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark draft %s sent: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return nil
}
