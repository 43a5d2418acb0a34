// Package devserver is a local development gateway. It serves the inbox
// HTTP API from a SQLite database so the sync engine can run end to end
// without the production backend.
package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tOgg1/inboxsync/internal/models"
)

// ErrConversationNotFound is returned for unknown conversation IDs.
var ErrConversationNotFound = errors.New("conversation not found")

// timeLayout is fixed width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Conversation is the stored part of a conversation. Preview, last message
// and unread count are derived from its messages.
type Conversation struct {
	ID          string
	DisplayName string
	IsAutomated bool
	IsArchived  bool
	Tags        []string
}

// Store persists conversations and messages. A conversation's unread count
// is the number of inbound messages newer than its read boundary.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path. An empty path opens an in-memory
// database.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	var dsn string
	if path == "" {
		dsn = ":memory:?_pragma=foreign_keys(ON)"
	} else {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open devserver database: %w", err)
	}
	if path == "" {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to devserver database: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			is_automated INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '',
			read_through TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			direction TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT,
			media_type TEXT NOT NULL DEFAULT '',
			media_url TEXT NOT NULL DEFAULT '',
			media_filename TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			delivery_status TEXT NOT NULL DEFAULT '',
			is_automated INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages(conversation_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize devserver schema: %w", err)
		}
	}
	return nil
}

// UpsertConversation creates or updates a conversation's metadata. The read
// boundary is left untouched.
func (s *Store) UpsertConversation(ctx context.Context, c Conversation) error {
	if strings.TrimSpace(c.ID) == "" {
		return models.ErrMissingConversationID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, display_name, is_automated, is_archived, tags)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			is_automated = excluded.is_automated,
			is_archived = excluded.is_archived,
			tags = excluded.tags
	`, c.ID, c.DisplayName, boolToInt(c.IsAutomated), boolToInt(c.IsArchived), strings.Join(c.Tags, ","))
	if err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	return nil
}

// ListConversations returns every conversation with its derived fields,
// most recent first.
func (s *Store) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.display_name, c.is_automated, c.is_archived, c.tags,
			(SELECT COUNT(*) FROM messages u
				WHERE u.conversation_id = c.id
				AND u.direction = 'inbound'
				AND (c.read_through IS NULL OR u.created_at > c.read_through)),
			m.direction, m.kind, m.content, m.media_filename, m.created_at
		FROM conversations c
		LEFT JOIN messages m ON m.id = (
			SELECT l.id FROM messages l
			WHERE l.conversation_id = c.id
			ORDER BY l.created_at DESC, l.id DESC
			LIMIT 1
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	out := []models.ConversationSummary{}
	for rows.Next() {
		var (
			summary                   models.ConversationSummary
			automated, archived       int
			tags                      string
			direction, kind, filename sql.NullString
			content, createdAt        sql.NullString
		)
		if err := rows.Scan(&summary.ID, &summary.DisplayName, &automated, &archived, &tags,
			&summary.UnreadCount, &direction, &kind, &content, &filename, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		summary.IsAutomated = automated != 0
		summary.IsArchived = archived != 0
		summary.Tags = splitTags(tags)
		if createdAt.Valid {
			last := models.Message{
				Kind:          models.MessageKind(kind.String),
				MediaFilename: filename.String,
			}
			if content.Valid {
				last.Content = models.StringPtr(content.String)
			}
			summary.LastMessagePreview = last.Preview()
			summary.LastMessageDirection = models.Direction(direction.String)
			summary.LastMessageAt = parseTime(createdAt.String)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}

	models.SortConversations(out)
	return out, nil
}

// ListMessages returns a conversation's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if err := s.requireConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, direction, kind, content, media_type, media_url,
			media_filename, created_at, delivery_status, is_automated
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var (
			msg                     models.Message
			direction, kind, status string
			content                 sql.NullString
			createdAt               string
			automated               int
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &direction, &kind, &content, &msg.MediaType,
			&msg.MediaURL, &msg.MediaFilename, &createdAt, &status, &automated); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Direction = models.Direction(direction)
		msg.Kind = models.MessageKind(kind)
		msg.DeliveryStatus = models.DeliveryStatus(status)
		msg.CreatedAt = parseTime(createdAt)
		msg.IsAutomated = automated != 0
		if content.Valid {
			msg.Content = models.StringPtr(content.String)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return out, nil
}

// AppendMessage stores msg in an existing conversation. A missing ID gets a
// UUID and a zero CreatedAt gets the current time.
func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := s.requireConversation(ctx, msg.ConversationID); err != nil {
		return models.Message{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}

	var content any
	if msg.Content != nil {
		content = *msg.Content
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, direction, kind, content, media_type, media_url,
			media_filename, created_at, delivery_status, is_automated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, string(msg.Direction), string(msg.Kind), content, msg.MediaType,
		msg.MediaURL, msg.MediaFilename, msg.CreatedAt.Format(timeLayout), string(msg.DeliveryStatus),
		boolToInt(msg.IsAutomated))
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to store message: %w", err)
	}
	return msg, nil
}

// MarkRead moves the read boundary of a conversation to its newest message,
// clearing its unread count.
func (s *Store) MarkRead(ctx context.Context, conversationID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET read_through = COALESCE(
			(SELECT MAX(created_at) FROM messages WHERE conversation_id = ?),
			read_through
		)
		WHERE id = ?
	`, conversationID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Empty reports whether the store has no conversations.
func (s *Store) Empty(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count conversations: %w", err)
	}
	return n == 0, nil
}

func (s *Store) requireConversation(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return models.ErrMissingConversationID
	}
	var found string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM conversations WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up conversation: %w", err)
	}
	return nil
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		parsed, _ = time.Parse(time.RFC3339Nano, value)
	}
	return parsed
}

func splitTags(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Inbound records a customer message, creating the conversation on first
// contact. An existing conversation keeps its metadata unless displayName
// is set.
func (s *Store) Inbound(ctx context.Context, conversationID, displayName, text string) (models.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return models.Message{}, models.ErrMissingConversationID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, display_name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = COALESCE(NULLIF(excluded.display_name, ''), conversations.display_name),
			is_archived = 0
	`, conversationID, strings.TrimSpace(displayName))
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to store conversation: %w", err)
	}
	return s.AppendMessage(ctx, models.Message{
		ConversationID: conversationID,
		Direction:      models.DirectionInbound,
		Kind:           models.KindText,
		Content:        models.StringPtr(text),
	})
}
