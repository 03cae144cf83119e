package model

import "time"

// SyncCheckpoint tracks incremental-sync progress. LastSyncedAt is the
// received_at of the newest successfully stored message; Cursor is an
// opaque provider pagination token.
type SyncCheckpoint struct {
	LastSyncedAt time.Time `db:"last_synced_at"`
	Cursor       string    `db:"cursor"`
}

// SyncReport summarizes one sync run. Per-message failures are recorded
// in Errors and do not abort the run.
type SyncReport struct {
	Fetched    int      `json:"fetched"`
	Stored     int      `json:"stored"`
	Classified int      `json:"classified"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// SyncRecord is one persisted sync_history row.
type SyncRecord struct {
	ID         int64         `db:"id"`
	Kind       string        `db:"kind"`
	StartedAt  time.Time     `db:"started_at"`
	Duration   time.Duration `db:"duration_ms"`
	Fetched    int           `db:"fetched"`
	Stored     int           `db:"stored"`
	Classified int           `db:"classified"`
	Failed     int           `db:"failed"`
	Errors     string        `db:"errors"`
}

// Stats aggregates mailbox counts for the stats endpoint.
type Stats struct {
	TotalEmails    int            `json:"total_emails"`
	UnreadEmails   int            `json:"unread_emails"`
	HighImportance int            `json:"high_importance"`
	Categories     map[string]int `json:"categories"`
}
