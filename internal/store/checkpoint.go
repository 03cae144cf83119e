package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mailagent/internal/model"
)

// GetCheckpoint returns the incremental-sync checkpoint. A store that has
// never synced returns a zero checkpoint.
func (s *Store) GetCheckpoint(ctx context.Context) (model.SyncCheckpoint, error) {
	var cp model.SyncCheckpoint
	err := s.db.GetContext(ctx, &cp,
		`SELECT last_synced_at, cursor FROM sync_checkpoint WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncCheckpoint{}, nil
	}
	if err != nil {
		return model.SyncCheckpoint{}, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// AdvanceCheckpoint moves the checkpoint forward. last_synced_at is
// monotonic: an older timestamp never overwrites a newer one, so a slow
// historical page cannot drag incremental sync backwards.
func (s *Store) AdvanceCheckpoint(ctx context.Context, cp model.SyncCheckpoint) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current model.SyncCheckpoint
	err = tx.GetContext(ctx, &current,
		`SELECT last_synced_at, cursor FROM sync_checkpoint WHERE id = 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read checkpoint: %w", err)
	}

	if !cp.LastSyncedAt.After(current.LastSyncedAt) {
		cp.LastSyncedAt = current.LastSyncedAt
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_checkpoint (id, last_synced_at, cursor) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_synced_at = excluded.last_synced_at,
		                               cursor = excluded.cursor`,
		cp.LastSyncedAt.UTC(), cp.Cursor,
	)
	if err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}

	return tx.Commit()
}

// LogSync persists one sync_history row.
func (s *Store) LogSync(ctx context.Context, rec model.SyncRecord) error {
	errsJSON := rec.Errors
	if errsJSON == "" {
		errsJSON = "[]"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_history (kind, started_at, duration_ms, fetched, stored, classified, failed, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Kind, rec.StartedAt.UTC(), rec.Duration.Milliseconds(),
		rec.Fetched, rec.Stored, rec.Classified, rec.Failed, errsJSON,
	)
	if err != nil {
		return fmt.Errorf("log sync: %w", err)
	}
	return nil
}

// EncodeSyncErrors renders per-message error strings for sync_history.
func EncodeSyncErrors(errs []string) string {
	if len(errs) == 0 {
		return "[]"
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "[]"
	}
	return string(b)
}
