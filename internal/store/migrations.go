package store

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	thread_id       TEXT NOT NULL DEFAULT '',
	from_addr       TEXT NOT NULL DEFAULT '',
	to_addr         TEXT NOT NULL DEFAULT '',
	subject         TEXT NOT NULL DEFAULT '',
	body_text       TEXT NOT NULL DEFAULT '',
	snippet         TEXT NOT NULL DEFAULT '',
	labels          TEXT NOT NULL DEFAULT '[]',
	received_at     TIMESTAMP NOT NULL,
	has_attachments INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'unread',
	importance      TEXT NOT NULL DEFAULT 'unset',
	category        TEXT NOT NULL DEFAULT 'unset',
	ai_summary      TEXT,
	body_hash       TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at);
CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
CREATE INDEX IF NOT EXISTS idx_messages_importance ON messages(importance);
CREATE INDEX IF NOT EXISTS idx_messages_category ON messages(category);

CREATE TABLE IF NOT EXISTS drafts (
	id         TEXT PRIMARY KEY,
	message_id TEXT NOT NULL REFERENCES messages(id),
	tone       TEXT NOT NULL,
	content    TEXT NOT NULL,
	sent       INTEGER NOT NULL DEFAULT 0,
	sent_at    TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_drafts_message_id ON drafts(message_id);

CREATE TABLE IF NOT EXISTS sync_checkpoint (
	id             INTEGER PRIMARY KEY CHECK (id = 1),
	last_synced_at TIMESTAMP NOT NULL,
	cursor         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS user_preferences (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	fetched     INTEGER NOT NULL DEFAULT 0,
	stored      INTEGER NOT NULL DEFAULT 0,
	classified  INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	errors      TEXT NOT NULL DEFAULT '[]'
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
