package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/citation"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// History stores conversations and their messages.
type History struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithHistoryLogger sets the logger.
func WithHistoryLogger(l *zap.Logger) HistoryOption {
	return func(h *History) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHistoryClock sets the clock used for timestamps.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(h *History) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHistory creates a History on db and initializes its schema.
func NewHistory(db *sql.DB, opts ...HistoryOption) (*History, error) {
	h := &History{db: db, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return h, nil
}

func (h *History) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		sources TEXT,
		timestamp TEXT NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	`
	_, err := h.db.Exec(schema)
	return err
}

// CreateConversation starts a conversation. An empty title is replaced by a
// timestamped one.
func (h *History) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	now := h.now()
	if title == "" {
		title = "Conversation " + now.Format("2006-01-02 15:04")
	}
	result, err := h.db.ExecContext(ctx,
		`INSERT INTO conversations (title, created_at, updated_at) VALUES (?, ?, ?)`,
		title, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation id: %w", err)
	}
	return &models.Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var created, updated string
	if err := row.Scan(&c.ID, &c.Title, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// ListConversations returns conversations, most recently updated first.
func (h *History) ListConversations(ctx context.Context, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations
		 ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversation returns a conversation by id.
func (h *History) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	row := h.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// DeleteConversation removes a conversation and its messages. It reports
// false when id is unknown.
func (h *History) DeleteConversation(ctx context.Context, id int64) (bool, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// UpdateTitle renames a conversation. It reports false when id is unknown.
func (h *History) UpdateTitle(ctx context.Context, id int64, title string) (bool, error) {
	result, err := h.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, formatTime(h.now()), id)
	if err != nil {
		return false, fmt.Errorf("failed to update conversation: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func marshalSources(sources []models.Citation) (sql.NullString, error) {
	if len(sources) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal sources: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// AddMessage appends a message and touches the conversation's updated_at.
func (h *History) AddMessage(ctx context.Context, conversationID int64, role models.Role, content string, sources []models.Citation) (*models.Message, error) {
	now := h.now()
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	msg, err := h.insertMessage(ctx, tx, conversationID, role, content, sources, now)
	if err != nil {
		return nil, err
	}
	if err := touchConversation(ctx, tx, conversationID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return msg, nil
}

// AddExchange stores a question and its answer in one transaction. With
// conversationID 0 a conversation titled title is created first. Nothing is
// stored when any insert fails. It returns the conversation id.
func (h *History) AddExchange(ctx context.Context, conversationID int64, title, question, answer string, sources []models.Citation) (int64, error) {
	now := h.now()
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if conversationID == 0 {
		if title == "" {
			title = "Conversation " + now.Format("2006-01-02 15:04")
		}
		result, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (title, created_at, updated_at) VALUES (?, ?, ?)`,
			title, formatTime(now), formatTime(now))
		if err != nil {
			return 0, fmt.Errorf("failed to create conversation: %w", err)
		}
		if conversationID, err = result.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read conversation id: %w", err)
		}
	}
	if _, err := h.insertMessage(ctx, tx, conversationID, models.RoleUser, question, nil, now); err != nil {
		return 0, fmt.Errorf("failed to save question: %w", err)
	}
	if _, err := h.insertMessage(ctx, tx, conversationID, models.RoleAssistant, answer, sources, now); err != nil {
		return 0, fmt.Errorf("failed to save answer: %w", err)
	}
	if err := touchConversation(ctx, tx, conversationID, now); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return conversationID, nil
}

func (h *History) insertMessage(ctx context.Context, tx *sql.Tx, conversationID int64, role models.Role, content string, sources []models.Citation, now time.Time) (*models.Message, error) {
	sourcesJSON, err := marshalSources(sources)
	if err != nil {
		return nil, err
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, sources, timestamp) VALUES (?, ?, ?, ?, ?)`,
		conversationID, string(role), content, sourcesJSON, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}
	return &models.Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Sources:        sources,
		Timestamp:      now,
	}, nil
}

func touchConversation(ctx context.Context, tx *sql.Tx, conversationID int64, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, formatTime(now), conversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var role, ts string
		var sources sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &sources, &ts); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		m.Timestamp = parseTime(ts)
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &m.Sources); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Messages returns every message of a conversation in chronological order.
func (h *History) Messages(ctx context.Context, conversationID int64) ([]models.Message, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, sources, timestamp
		 FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the last limit messages of a conversation in
// chronological order.
func (h *History) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, sources, timestamp
		 FROM messages WHERE conversation_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// purgeSources drops every stored citation for which match is true and
// returns the number of messages changed. Messages themselves are kept.
func (h *History) purgeSources(ctx context.Context, match func(models.Citation) bool) (int, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, sources FROM messages WHERE sources IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to scan message sources: %w", err)
	}
	type update struct {
		id      int64
		sources []models.Citation
	}
	var updates []update
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		var sources []models.Citation
		if err := json.Unmarshal([]byte(raw), &sources); err != nil {
			h.logger.Warn("skipping message with unreadable sources", zap.Int64("message_id", id), zap.Error(err))
			continue
		}
		kept := make([]models.Citation, 0, len(sources))
		for _, s := range sources {
			if !match(s) {
				kept = append(kept, s)
			}
		}
		if len(kept) != len(sources) {
			updates = append(updates, update{id: id, sources: kept})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, u := range updates {
		sourcesJSON, err := marshalSources(u.sources)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET sources = ? WHERE id = ?`, sourcesJSON, u.id); err != nil {
			return 0, fmt.Errorf("failed to update message sources: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return len(updates), nil
}

// PurgeByDocument removes citations of documentID from stored messages and
// returns the number of messages changed.
func (h *History) PurgeByDocument(ctx context.Context, documentID string) (int, error) {
	return h.purgeSources(ctx, func(c models.Citation) bool {
		return citation.MatchesDocument(c, documentID)
	})
}

// PurgeByEntity removes citations whose metadata has key=value and returns
// the number of messages changed.
func (h *History) PurgeByEntity(ctx context.Context, key, value string) (int, error) {
	return h.purgeSources(ctx, func(c models.Citation) bool {
		return citation.MatchesEntity(c, key, value)
	})
}

// PurgeMessagesContaining deletes whole messages whose text contains pattern.
func (h *History) PurgeMessagesContaining(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, nil
	}
	result, err := h.db.ExecContext(ctx,
		`DELETE FROM messages WHERE instr(content, ?) > 0`, pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
