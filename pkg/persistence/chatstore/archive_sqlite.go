package chatstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatsync/pkg/chat"
)

// ConversationRecord summarizes one archived conversation.
type ConversationRecord struct {
	ConvID         string `json:"conv_id"`
	MessageCount   int    `json:"message_count"`
	LastActivityMs int64  `json:"last_activity_ms"`
}

// Archive is a durable transcript of what a session has observed.
//
// It mirrors the MessageStore ordering: Append records messages at the newest end,
// Prepend right before the message with id before. Both are idempotent per
// (conversation, message id).
type Archive interface {
	Append(ctx context.Context, convID string, messages []chat.Message) error
	Prepend(ctx context.Context, convID string, before string, messages []chat.Message) error
	Load(ctx context.Context, convID string, limit int) ([]chat.Message, error)
	Conversations(ctx context.Context) ([]ConversationRecord, error)
	Close() error
}

type SQLiteArchive struct {
	db *sql.DB
}

var _ Archive = &SQLiteArchive{}

func NewSQLiteArchive(dsn string) (*SQLiteArchive, error) {
	if dsn == "" {
		return nil, errors.New("sqlite archive: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY between loops.
	db.SetMaxOpenConns(1)
	a := &SQLiteArchive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *SQLiteArchive) Append(ctx context.Context, convID string, messages []chat.Message) error {
	return a.insert(ctx, convID, messages, false, "")
}

// Prepend inserts an older page in front of the archived message before, shifting it
// and everything after it. Earlier sessions may have archived messages older than the
// page, which stay in front. When before is empty or unknown the page goes first.
func (a *SQLiteArchive) Prepend(ctx context.Context, convID string, before string, messages []chat.Message) error {
	return a.insert(ctx, convID, messages, true, strings.TrimSpace(before))
}

func (a *SQLiteArchive) insert(ctx context.Context, convID string, messages []chat.Message, older bool, before string) error {
	if a == nil || a.db == nil {
		return errors.New("sqlite archive: db is nil")
	}
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return errors.New("sqlite archive: convID is empty")
	}
	if len(messages) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite archive: begin")
	}
	defer func() { _ = tx.Rollback() }()

	var (
		minPos sql.NullInt64
		maxPos sql.NullInt64
	)
	if err := tx.QueryRowContext(ctx, `
		SELECT MIN(position), MAX(position) FROM archive_messages WHERE conv_id = ?
	`, convID).Scan(&minPos, &maxPos); err != nil {
		return errors.Wrap(err, "sqlite archive: read positions")
	}

	n := int64(len(messages))
	start := int64(0)
	switch {
	case older && before != "":
		anchor, found, err := positionOf(ctx, tx, convID, before)
		if err != nil {
			return err
		}
		if !found {
			if minPos.Valid {
				start = minPos.Int64 - n
			}
			break
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE archive_messages SET position = position + ?
			WHERE conv_id = ? AND position >= ?
		`, n, convID, anchor); err != nil {
			return errors.Wrap(err, "sqlite archive: shift positions")
		}
		start = anchor
	case older && minPos.Valid:
		start = minPos.Int64 - n
	case !older && maxPos.Valid:
		start = maxPos.Int64 + 1
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO archive_messages (
			conv_id, message_id, position, user, body, created_at_ms, archived_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conv_id, message_id) DO NOTHING
	`)
	if err != nil {
		return errors.Wrap(err, "sqlite archive: prepare insert")
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixMilli()
	for i, m := range messages {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		var createdAtMs int64
		if !m.CreatedAt.IsZero() {
			createdAtMs = m.CreatedAt.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx, convID, m.ID, start+int64(i), m.User, m.Body, createdAtMs, now); err != nil {
			return errors.Wrapf(err, "sqlite archive: insert message %s", m.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite archive: commit")
	}
	return nil
}

func positionOf(ctx context.Context, tx *sql.Tx, convID, messageID string) (int64, bool, error) {
	var pos int64
	err := tx.QueryRowContext(ctx, `
		SELECT position FROM archive_messages WHERE conv_id = ? AND message_id = ?
	`, convID, messageID).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "sqlite archive: read anchor position")
	}
	return pos, true, nil
}

// Load returns the archived transcript oldest-first. With limit > 0 only the newest
// limit messages are returned.
func (a *SQLiteArchive) Load(ctx context.Context, convID string, limit int) ([]chat.Message, error) {
	if a == nil || a.db == nil {
		return nil, errors.New("sqlite archive: db is nil")
	}
	convID = strings.TrimSpace(convID)
	if convID == "" {
		return nil, errors.New("sqlite archive: convID is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `
		SELECT message_id, user, body, created_at_ms
		FROM archive_messages
		WHERE conv_id = ?
		ORDER BY position DESC
	`
	args := []any{convID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite archive: load")
	}
	defer func() { _ = rows.Close() }()

	var newestFirst []chat.Message
	for rows.Next() {
		var (
			m           chat.Message
			createdAtMs int64
		)
		if err := rows.Scan(&m.ID, &m.User, &m.Body, &createdAtMs); err != nil {
			return nil, errors.Wrap(err, "sqlite archive: scan message")
		}
		m.ConversationID = convID
		if createdAtMs > 0 {
			m.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite archive: iterate messages")
	}
	return chat.Reversed(newestFirst), nil
}

func (a *SQLiteArchive) Conversations(ctx context.Context) ([]ConversationRecord, error) {
	if a == nil || a.db == nil {
		return nil, errors.New("sqlite archive: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT conv_id, COUNT(*), MAX(archived_at_ms)
		FROM archive_messages
		GROUP BY conv_id
		ORDER BY MAX(archived_at_ms) DESC, conv_id ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite archive: list conversations")
	}
	defer func() { _ = rows.Close() }()

	var records []ConversationRecord
	for rows.Next() {
		var r ConversationRecord
		if err := rows.Scan(&r.ConvID, &r.MessageCount, &r.LastActivityMs); err != nil {
			return nil, errors.Wrap(err, "sqlite archive: scan conversation")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite archive: iterate conversations")
	}
	return records, nil
}

func (a *SQLiteArchive) migrate() error {
	if a == nil || a.db == nil {
		return errors.New("sqlite archive: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS archive_messages (
		  conv_id TEXT NOT NULL,
		  message_id TEXT NOT NULL,
		  position INTEGER NOT NULL,
		  user TEXT NOT NULL,
		  body TEXT NOT NULL,
		  created_at_ms INTEGER NOT NULL DEFAULT 0,
		  archived_at_ms INTEGER NOT NULL,
		  PRIMARY KEY (conv_id, message_id)
		);`,
		`CREATE INDEX IF NOT EXISTS archive_messages_by_position
		  ON archive_messages(conv_id, position);`,
	}
	for _, st := range stmts {
		if _, err := a.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite archive: migrate")
		}
	}
	return nil
}
