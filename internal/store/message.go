package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailagent/internal/model"
)

// Filter narrows ListMessages results. Zero-valued fields are ignored.
type Filter struct {
	Status     model.Status
	Importance model.Importance
	Category   model.Category
}

// UpsertMessage inserts a message or, if the id already exists, updates
// its mutable fields. A re-fetch with unchanged body keeps any existing
// classification; a changed body resets the classification fields to
// unset in the same statement, so the all-or-nothing invariant holds
// across content changes. The classification fields that survive the
// write are read back into m, letting callers skip re-classifying
// content that is already labeled.
func (s *Store) UpsertMessage(ctx context.Context, m *model.Message) error {
	now := time.Now().UTC()
	if m.Status == "" {
		m.Status = model.StatusUnread
	}
	if m.BodyHash == "" {
		m.BodyHash = model.BodyFingerprint(m.BodyText)
	}
	if m.Labels == "" {
		m.Labels = "[]"
	}

	const query = `
		INSERT INTO messages (
			id, thread_id, from_addr, to_addr, subject, body_text, snippet, labels,
			received_at, has_attachments, status, importance, category, ai_summary,
			body_hash, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'unset', 'unset', NULL, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id       = excluded.thread_id,
			from_addr       = excluded.from_addr,
			to_addr         = excluded.to_addr,
			subject         = excluded.subject,
			body_text       = excluded.body_text,
			snippet         = excluded.snippet,
			labels          = excluded.labels,
			received_at     = excluded.received_at,
			has_attachments = excluded.has_attachments,
			status          = excluded.status,
			importance      = CASE WHEN excluded.body_hash = messages.body_hash
			                       THEN messages.importance ELSE 'unset' END,
			category        = CASE WHEN excluded.body_hash = messages.body_hash
			                       THEN messages.category ELSE 'unset' END,
			ai_summary      = CASE WHEN excluded.body_hash = messages.body_hash
			                       THEN messages.ai_summary ELSE NULL END,
			body_hash       = excluded.body_hash,
			updated_at      = excluded.updated_at
		RETURNING importance, category, ai_summary`

	err := s.db.QueryRowxContext(ctx, query,
		m.ID, m.ThreadID, m.FromAddr, m.ToAddr, m.Subject, m.BodyText, m.Snippet, m.Labels,
		m.ReceivedAt.UTC(), m.HasAttachments, m.Status,
		m.BodyHash, now, now,
	).Scan(&m.Importance, &m.Category, &m.AISummary)
	if err != nil {
		return fmt.Errorf("upsert message %s: %w", m.ID, err)
	}
	return nil
}

// GetMessage returns the message with the given provider id.
func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := s.db.GetContext(ctx, &m, `SELECT * FROM messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return &m, nil
}

// ListMessages returns messages matching the filter, newest first.
func (s *Store) ListMessages(ctx context.Context, f Filter, limit, offset int) ([]model.Message, error) {
	var conditions []string
	var args []interface{}

	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, f.Status)
	}
	if f.Importance != "" {
		conditions = append(conditions, "importance = ?")
		args = append(args, f.Importance)
	}
	if f.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, f.Category)
	}

	query := "SELECT * FROM messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY received_at DESC"

	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	messages := []model.Message{}
	if err := s.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// UpdateClassification writes all three classification fields in a single
// statement, guarded by the body fingerprint the result was computed
// against. Returns ErrStaleContent when the body changed underneath the
// classifier, ErrNotFound when the message is gone.
func (s *Store) UpdateClassification(ctx context.Context, id, bodyHash string, c model.Classification) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages
		 SET importance = ?, category = ?, ai_summary = ?, updated_at = ?
		 WHERE id = ? AND body_hash = ?`,
		c.Importance, c.Category, c.Summary, time.Now().UTC(), id, bodyHash,
	)
	if err != nil {
		return fmt.Errorf("update classification %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update classification %s: %w", id, err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = s.db.GetContext(ctx, &exists, `SELECT 1 FROM messages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update classification %s: %w", id, err)
	}
	return fmt.Errorf("message %s: %w", id, ErrStaleContent)
}

// UpdateStatus sets the read state of a message.
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

// Stats returns aggregate mailbox counts.
func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{Categories: map[string]int{}}

	if err := s.db.GetContext(ctx, &stats.TotalEmails,
		`SELECT COUNT(*) FROM messages`); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.UnreadEmails,
		`SELECT COUNT(*) FROM messages WHERE status = 'unread'`); err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.HighImportance,
		`SELECT COUNT(*) FROM messages WHERE importance = 'high'`); err != nil {
		return nil, fmt.Errorf("count high importance: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT category, COUNT(*) FROM messages GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		stats.Categories[category] = count
	}
	return stats, rows.Err()
}
