// Package store persists canonical conversations and messages in SQLite.
// Writes are merge-upserts: a record may be sighted many times across list,
// detail, and stream captures, and a later sighting must never erase
// information a richer earlier one recovered.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/you/chatvault/internal/core"
)

const schema = `CREATE TABLE IF NOT EXISTS conversations (
  id TEXT PRIMARY KEY,
  platform TEXT NOT NULL,
  original_id TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL DEFAULT 0,
  message_count INTEGER NOT NULL DEFAULT 0,
  preview TEXT NOT NULL DEFAULT '',
  summary TEXT NOT NULL DEFAULT '',
  tags_json TEXT NOT NULL DEFAULT '[]',
  synced_at INTEGER NOT NULL DEFAULT 0,
  detail_status TEXT NOT NULL DEFAULT 'none',
  is_favorite INTEGER NOT NULL DEFAULT 0,
  favorite_at INTEGER,
  url TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS messages (
  id TEXT NOT NULL,
  conversation_id TEXT NOT NULL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (conversation_id, id)
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(platform, updated_at);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(conversation_id, created_at);`

// Record is one write unit: a conversation sighting, with messages when the
// capture carried a transcript (detail or stream) and nil for list rows.
type Record struct {
	Conversation core.Conversation
	Messages     []core.Message
}

// Writer is the sink surface the capture pipeline writes through.
type Writer interface {
	Save(ctx context.Context, rec Record) error
}

type SQLite struct {
	db *sql.DB
}

func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	applyTuning(context.Background(), db)
	return &SQLite{db: db}, nil
}

// Optional tuning applied at Open when CHATVAULT_SQLITE_TUNING=1. WAL is
// always on; these trade durability for write throughput under bursty
// capture traffic.
var tuningPragmas = []struct{ name, value string }{
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"wal_autocheckpoint", "1000"},
	{"temp_store", "MEMORY"},
	{"mmap_size", "268435456"},
}

func applyTuning(ctx context.Context, db *sql.DB) {
	if os.Getenv("CHATVAULT_SQLITE_TUNING") != "1" {
		return
	}
	for _, p := range tuningPragmas {
		stmt := fmt.Sprintf("PRAGMA %s=%s;", p.name, p.value)
		var out any
		err := db.QueryRowContext(ctx, stmt).Scan(&out)
		switch {
		case err == sql.ErrNoRows:
			// Some pragmas return no row; apply them without reading back.
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				log.Printf("store: pragma %s: %v", p.name, err)
			}
		case err != nil:
			log.Printf("store: pragma %s: %v", p.name, err)
		default:
			log.Printf("store: pragma %s => %v", p.name, out)
		}
	}
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Ping() error { return s.db.Ping() }

func (s *SQLite) String() string { return fmt.Sprintf("SQLite{%p}", s.db) }

// detail_status ranks none < partial < full; an upsert may hold or raise the
// rank but never lower it, so a list sighting cannot undo a detail sync.
const upsertConversation = `INSERT INTO conversations
  (id, platform, original_id, title, created_at, updated_at, message_count,
   preview, summary, tags_json, synced_at, detail_status, is_favorite, favorite_at, url)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  title = CASE WHEN excluded.title != '' AND (conversations.title = '' OR excluded.updated_at >= conversations.updated_at)
    THEN excluded.title ELSE conversations.title END,
  preview = CASE WHEN excluded.preview != '' THEN excluded.preview ELSE conversations.preview END,
  summary = CASE WHEN excluded.summary != '' THEN excluded.summary ELSE conversations.summary END,
  tags_json = CASE WHEN excluded.tags_json != '[]' THEN excluded.tags_json ELSE conversations.tags_json END,
  created_at = CASE WHEN excluded.created_at > 0 AND (conversations.created_at = 0 OR excluded.created_at < conversations.created_at)
    THEN excluded.created_at ELSE conversations.created_at END,
  updated_at = MAX(conversations.updated_at, excluded.updated_at),
  message_count = MAX(conversations.message_count, excluded.message_count),
  synced_at = excluded.synced_at,
  detail_status = CASE
    WHEN (CASE excluded.detail_status WHEN 'full' THEN 2 WHEN 'partial' THEN 1 ELSE 0 END) >=
         (CASE conversations.detail_status WHEN 'full' THEN 2 WHEN 'partial' THEN 1 ELSE 0 END)
    THEN excluded.detail_status ELSE conversations.detail_status END,
  is_favorite = MAX(conversations.is_favorite, excluded.is_favorite),
  favorite_at = COALESCE(excluded.favorite_at, conversations.favorite_at),
  url = CASE WHEN excluded.url != '' THEN excluded.url ELSE conversations.url END;`

const upsertMessage = `INSERT INTO messages (id, conversation_id, role, content, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(conversation_id, id) DO UPDATE SET
  content = CASE WHEN LENGTH(excluded.content) > LENGTH(messages.content)
    THEN excluded.content ELSE messages.content END,
  created_at = CASE WHEN excluded.created_at > 0 AND (messages.created_at = 0 OR excluded.created_at < messages.created_at)
    THEN excluded.created_at ELSE messages.created_at END,
  role = excluded.role;`

// Save upserts one record transactionally so a conversation row never lands
// without its messages.
func (s *SQLite) Save(ctx context.Context, rec Record) error {
	conv := rec.Conversation
	if conv.ID == "" {
		return errors.New("save: conversation id empty")
	}
	tags, err := json.Marshal(tagsOrEmpty(conv.Tags))
	if err != nil {
		return errors.Wrap(err, "marshal tags")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertConversation,
		conv.ID, string(conv.Platform), conv.OriginalID, conv.Title,
		conv.CreatedAt, conv.UpdatedAt, conv.MessageCount,
		conv.Preview, conv.Summary, string(tags), conv.SyncedAt,
		string(conv.DetailStatus), boolInt(conv.IsFavorite), conv.FavoriteAt, conv.URL,
	); err != nil {
		return errors.Wrap(err, "upsert conversation")
	}

	for _, m := range rec.Messages {
		if _, err := tx.ExecContext(ctx, upsertMessage,
			m.ID, conv.ID, string(m.Role), m.Content, m.CreatedAt,
		); err != nil {
			return errors.Wrapf(err, "upsert message %s", m.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit")
}

// DeleteMessages removes a conversation's transcript, used before a full
// detail re-sync when the platform rewrote message ids.
func (s *SQLite) DeleteMessages(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?;`, conversationID)
	return errors.Wrap(err, "delete messages")
}

// SetFavorite flips the favorite flag, recording when it was set.
func (s *SQLite) SetFavorite(ctx context.Context, conversationID string, favorite bool, now int64) error {
	var at any
	if favorite {
		at = now
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET is_favorite = ?, favorite_at = ? WHERE id = ?;`,
		boolInt(favorite), at, conversationID)
	if err != nil {
		return errors.Wrap(err, "set favorite")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const conversationColumns = `id, platform, original_id, title, created_at, updated_at,
  message_count, preview, summary, tags_json, synced_at, detail_status, is_favorite, favorite_at, url`

func (s *SQLite) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?;`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	return conv, nil
}

func (s *SQLite) ListConversations(ctx context.Context, filters Filters) ([]core.Conversation, error) {
	query, args := buildConversationQuery(filters, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	var out []core.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		out = append(out, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate conversations")
	}
	return out, nil
}

func (s *SQLite) CountConversations(ctx context.Context, filters Filters) (int64, error) {
	query, args := buildConversationQuery(filters, true)
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count conversations")
	}
	return n, nil
}

// ListMessages returns a conversation's transcript oldest first.
func (s *SQLite) ListMessages(ctx context.Context, conversationID string) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages
WHERE conversation_id = ? ORDER BY created_at ASC, id ASC;`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var (
			m    core.Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		m.Role = core.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate messages")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*core.Conversation, error) {
	var (
		conv     core.Conversation
		platform string
		status   string
		tags     string
		fav      int
		favAt    sql.NullInt64
	)
	if err := row.Scan(&conv.ID, &platform, &conv.OriginalID, &conv.Title,
		&conv.CreatedAt, &conv.UpdatedAt, &conv.MessageCount,
		&conv.Preview, &conv.Summary, &tags, &conv.SyncedAt,
		&status, &fav, &favAt, &conv.URL); err != nil {
		return nil, err
	}
	conv.Platform = core.Platform(platform)
	conv.DetailStatus = core.DetailStatus(status)
	conv.IsFavorite = fav != 0
	if favAt.Valid {
		at := favAt.Int64
		conv.FavoriteAt = &at
	}
	if tags != "" && tags != "[]" {
		_ = json.Unmarshal([]byte(tags), &conv.Tags)
	}
	return &conv, nil
}

func buildConversationQuery(filters Filters, count bool) (string, []any) {
	var builder strings.Builder
	if count {
		builder.WriteString("SELECT COUNT(*) FROM conversations")
	} else {
		builder.WriteString("SELECT " + conversationColumns + " FROM conversations")
	}

	var (
		conditions []string
		args       []any
	)

	if len(filters.Platforms) > 0 {
		placeholders := make([]string, 0, len(filters.Platforms))
		for _, p := range filters.Platforms {
			placeholders = append(placeholders, "?")
			args = append(args, p)
		}
		conditions = append(conditions, fmt.Sprintf("platform IN (%s)", strings.Join(placeholders, ",")))
	}

	if filters.Since > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, filters.Since)
	}

	if filters.FavoritesOnly {
		conditions = append(conditions, "is_favorite = 1")
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	if !count {
		order := "DESC"
		if filters.Order == OrderAsc {
			order = "ASC"
		}
		builder.WriteString(" ORDER BY updated_at ")
		builder.WriteString(order)
		limit := filters.Limit
		if limit <= 0 {
			limit = defaultLimit
		}
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	builder.WriteString(";")
	return builder.String(), args
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
