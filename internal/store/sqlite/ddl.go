package sqlite

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS issues (
    issue_id       TEXT PRIMARY KEY,
    title          TEXT NOT NULL,
    summary        TEXT NOT NULL DEFAULT '',
    classification TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'open',
    embedding      TEXT NOT NULL,
    member_count   INTEGER NOT NULL,
    created_at     TIMESTAMP NOT NULL,
    updated_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);

CREATE TABLE IF NOT EXISTS messages (
    message_id     TEXT PRIMARY KEY,
    source_ref     TEXT NOT NULL UNIQUE,
    channel_id     TEXT NOT NULL,
    author_ref     TEXT NOT NULL,
    body           TEXT NOT NULL,
    classification TEXT,
    confidence     REAL,
    is_relevant    INTEGER,
    embedding      TEXT,
    issue_id       TEXT REFERENCES issues(issue_id),
    created_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_issue ON messages(issue_id);
`

// EnsureSchema creates tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
