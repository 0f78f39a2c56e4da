// Package sqlite implements the store over a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/triagehub/triagehub/internal/model"
	"github.com/triagehub/triagehub/internal/store"
)

// New opens a SQLite-backed store at the given path, creating the schema
// when missing.
func New(ctx context.Context, path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing connection (used by tests and the factory).
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Messages() store.Messages { return &messages{db: s.db} }
func (s *sqliteStore) Issues() store.Issues     { return &issues{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{ByClassification: map[string]int{}}

	row := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN status='open' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status='resolved' THEN 1 ELSE 0 END), 0)
        FROM issues`)
	if err := row.Scan(&st.TotalIssues, &st.OpenIssues, &st.ResolvedIssues); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN is_relevant=1 THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN is_relevant IS NULL OR (is_relevant=1 AND issue_id IS NULL) THEN 1 ELSE 0 END), 0)
        FROM messages`)
	if err := row.Scan(&st.TotalMessages, &st.RelevantMessages, &st.PendingMessages); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT classification, COUNT(*) FROM messages
        WHERE classification IS NOT NULL GROUP BY classification`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		st.ByClassification[label] = n
	}
	return st, rows.Err()
}

// --- Messages ---

type messages struct{ db *sql.DB }

func (m *messages) Insert(ctx context.Context, msg *model.Message) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO messages (message_id, source_ref, channel_id, author_ref, body, created_at)
        VALUES (?,?,?,?,?,?)`,
		msg.MessageID, msg.SourceRef, msg.ChannelID, msg.AuthorRef, msg.Text, msg.CreatedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (m *messages) Get(ctx context.Context, messageID string) (*model.Message, error) {
	row := m.db.QueryRowContext(ctx, selectMessage+` WHERE message_id = ?`, messageID)
	return scanMessage(row)
}

func (m *messages) GetBySourceRef(ctx context.Context, sourceRef string) (*model.Message, error) {
	row := m.db.QueryRowContext(ctx, selectMessage+` WHERE source_ref = ?`, sourceRef)
	return scanMessage(row)
}

func (m *messages) SetClassification(ctx context.Context, messageID string, c model.Classification) error {
	res, err := m.db.ExecContext(ctx, `
        UPDATE messages SET classification=?, confidence=?, is_relevant=?
        WHERE message_id=? AND classification IS NULL`,
		c.Label, c.Confidence, boolToInt(c.IsRelevant), messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	// Row missing, or already classified (a repeat is a no-op).
	if _, err := m.Get(ctx, messageID); err != nil {
		return err
	}
	return nil
}

func (m *messages) ListPending(ctx context.Context, limit int) ([]*model.Message, error) {
	rows, err := m.db.QueryContext(ctx, selectMessage+`
        WHERE is_relevant IS NULL OR (is_relevant = 1 AND issue_id IS NULL)
        ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (m *messages) ListByIssue(ctx context.Context, issueID string) ([]*model.Message, error) {
	rows, err := m.db.QueryContext(ctx, selectMessage+`
        WHERE issue_id = ? ORDER BY created_at ASC`, issueID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

const selectMessage = `
    SELECT message_id, source_ref, channel_id, author_ref, body,
           classification, confidence, is_relevant, embedding, issue_id, created_at
    FROM messages`

type rowScanner interface{ Scan(dest ...any) error }

func scanMessage(row rowScanner) (*model.Message, error) {
	var out model.Message
	var relevant *int64
	var emb *string
	if err := row.Scan(&out.MessageID, &out.SourceRef, &out.ChannelID, &out.AuthorRef, &out.Text,
		&out.Classification, &out.Confidence, &relevant, &emb, &out.IssueID, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if relevant != nil {
		b := *relevant == 1
		out.IsRelevant = &b
	}
	if emb != nil {
		vec, err := store.DecodeVector(*emb)
		if err != nil {
			return nil, err
		}
		out.Embedding = vec
	}
	return &out, nil
}

func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// --- Issues ---

type issues struct{ db *sql.DB }

func (i *issues) CreateWithMember(ctx context.Context, iss *model.Issue, messageID string, embedding []float32) (*model.Issue, error) {
	rep, err := store.EncodeVector(iss.Embedding)
	if err != nil {
		return nil, err
	}
	emb, err := store.EncodeVector(embedding)
	if err != nil {
		return nil, err
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO issues (issue_id, title, summary, classification, status, embedding, member_count, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?)`,
		iss.IssueID, iss.Title, iss.Summary, iss.Classification, string(model.IssueOpen), rep, 1, now, now); err != nil {
		return nil, err
	}
	if err := attachMember(ctx, tx, messageID, iss.IssueID, emb); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := *iss
	out.Status = model.IssueOpen
	out.MemberCount = 1
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

func (i *issues) AppendMember(ctx context.Context, req store.AppendMember) (*model.Issue, error) {
	rep, err := store.EncodeVector(req.Representative)
	if err != nil {
		return nil, err
	}
	emb, err := store.EncodeVector(req.Embedding)
	if err != nil {
		return nil, err
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := attachMember(ctx, tx, req.MessageID, req.IssueID, emb); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	q := `UPDATE issues SET embedding=?, member_count=?, updated_at=?`
	args := []any{rep, req.MemberCount, now}
	if req.Summary != nil {
		q += `, summary=?`
		args = append(args, *req.Summary)
	}
	if req.Classification != nil {
		q += `, classification=?`
		args = append(args, *req.Classification)
	}
	q += ` WHERE issue_id=?`
	args = append(args, req.IssueID)

	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, model.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return i.Get(ctx, req.IssueID)
}

// attachMember sets issue membership and embedding on a message row, guarding
// the single-membership invariant.
func attachMember(ctx context.Context, tx *sql.Tx, messageID, issueID, embedding string) error {
	res, err := tx.ExecContext(ctx, `
        UPDATE messages SET issue_id=?, embedding=?
        WHERE message_id=? AND issue_id IS NULL`, issueID, embedding, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE message_id=?`, messageID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return model.ErrNotFound
	}
	return fmt.Errorf("%w: message %s already attached to an issue", model.ErrIntegrity, messageID)
}

const selectIssue = `
    SELECT issue_id, title, summary, classification, status, embedding, member_count, created_at, updated_at
    FROM issues`

func (i *issues) Get(ctx context.Context, issueID string) (*model.Issue, error) {
	row := i.db.QueryRowContext(ctx, selectIssue+` WHERE issue_id=?`, issueID)
	return scanIssue(row)
}

func (i *issues) List(ctx context.Context) ([]*model.Issue, error) {
	rows, err := i.db.QueryContext(ctx, selectIssue+` ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanIssues(rows)
}

func (i *issues) ListOpen(ctx context.Context) ([]*model.Issue, error) {
	rows, err := i.db.QueryContext(ctx, selectIssue+` WHERE status=? ORDER BY updated_at DESC`, string(model.IssueOpen))
	if err != nil {
		return nil, err
	}
	return scanIssues(rows)
}

func (i *issues) UpdateStatus(ctx context.Context, issueID string, status model.IssueStatus) (*model.Issue, error) {
	res, err := i.db.ExecContext(ctx, `UPDATE issues SET status=?, updated_at=? WHERE issue_id=?`,
		string(status), time.Now().UTC(), issueID)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, model.ErrNotFound
	}
	return i.Get(ctx, issueID)
}

func scanIssue(row rowScanner) (*model.Issue, error) {
	var out model.Issue
	var status, emb string
	if err := row.Scan(&out.IssueID, &out.Title, &out.Summary, &out.Classification, &status,
		&emb, &out.MemberCount, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	out.Status = model.IssueStatus(status)
	vec, err := store.DecodeVector(emb)
	if err != nil {
		return nil, err
	}
	out.Embedding = vec
	return &out, nil
}

func scanIssues(rows *sql.Rows) ([]*model.Issue, error) {
	defer rows.Close()
	var out []*model.Issue
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
