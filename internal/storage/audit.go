package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Operation is the kind of action recorded in the audit log.
type Operation string

const (
	OpIndex   Operation = "index"
	OpDelete  Operation = "delete"
	OpArchive Operation = "archive"
	OpUpdate  Operation = "update"
	OpQuery   Operation = "query"
	OpSearch  Operation = "search"
)

// EntityType is the kind of object an audit entry is about.
type EntityType string

const (
	EntityDocument     EntityType = "document"
	EntityCollection   EntityType = "collection"
	EntityConversation EntityType = "conversation"
	EntitySender       EntityType = "sender"
	EntitySourceType   EntityType = "source_type"
)

// maxAuditValueLen is the longest string detail the audit log accepts.
const maxAuditValueLen = 500

var forbiddenAuditKeys = []string{"answer", "body", "content", "message", "query_text", "text"}

// AuditEntry is a single audit log record. Details never hold user content.
type AuditEntry struct {
	ID         int64                  `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Operation  Operation              `json:"operation"`
	EntityType EntityType             `json:"entity_type"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
}

// AuditFilter narrows Query results. Zero fields match everything.
type AuditFilter struct {
	Start      *time.Time
	End        *time.Time
	Operation  Operation
	EntityType EntityType
	EntityID   string
	Limit      int // default 100
}

// DeletionReport summarizes deletions over a period.
type DeletionReport struct {
	PeriodStart        time.Time      `json:"period_start"`
	PeriodEnd          time.Time      `json:"period_end"`
	TotalDeletions     int            `json:"total_deletions"`
	TotalChunksDeleted int            `json:"total_chunks_deleted"`
	ByReason           map[string]int `json:"by_reason"`
}

// Auditor is the privacy-safe audit log. It stores ids, operation kinds and
// counts; details that look like content are rejected.
type Auditor struct {
	db           *sql.DB
	enabled      bool
	logQueries   bool
	reportWindow time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// AuditOption configures an Auditor.
type AuditOption func(*Auditor)

// WithAuditEnabled turns logging on or off. A disabled auditor records nothing.
func WithAuditEnabled(enabled bool) AuditOption {
	return func(a *Auditor) { a.enabled = enabled }
}

// WithQueryLogging records query operations (counts and filter names only).
func WithQueryLogging(enabled bool) AuditOption {
	return func(a *Auditor) { a.logQueries = enabled }
}

// WithAuditClock sets the clock used for timestamps and default report windows.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(a *Auditor) {
		if now != nil {
			a.now = now
		}
	}
}

// WithAuditLogger sets the logger.
func WithAuditLogger(l *zap.Logger) AuditOption {
	return func(a *Auditor) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAuditor creates an Auditor on db and initializes its schema.
func NewAuditor(db *sql.DB, opts ...AuditOption) (*Auditor, error) {
	a := &Auditor{
		db:           db,
		enabled:      true,
		reportWindow: 30 * 24 * time.Hour,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return a, nil
}

func (a *Auditor) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		operation TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT,
		details TEXT,
		session_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_log(operation);
	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Enabled reports whether the auditor records entries.
func (a *Auditor) Enabled() bool {
	return a.enabled
}

// ValidateDetails rejects details that carry content-like keys or long strings.
func ValidateDetails(details map[string]interface{}) error {
	var found []string
	for _, k := range forbiddenAuditKeys {
		if _, ok := details[k]; ok {
			found = append(found, k)
		}
	}
	if len(found) > 0 {
		return fmt.Errorf("%w: forbidden keys %v", ErrContentInAudit, found)
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := details[k].(string); ok && len([]rune(s)) > maxAuditValueLen {
			return fmt.Errorf("%w: detail %q is %d characters long", ErrContentInAudit, k, len([]rune(s)))
		}
	}
	return nil
}

// Log records an entry and returns its id. A disabled auditor returns 0.
func (a *Auditor) Log(ctx context.Context, entry AuditEntry) (int64, error) {
	if !a.enabled {
		return 0, nil
	}
	if err := ValidateDetails(entry.Details); err != nil {
		return 0, err
	}

	var detailsJSON sql.NullString
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal audit details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(b), Valid: true}
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}

	result, err := a.db.ExecContext(ctx,
		`INSERT INTO audit_log (timestamp, operation, entity_type, entity_id, details, session_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(ts), string(entry.Operation), string(entry.EntityType),
		nullIfEmpty(entry.EntityID), detailsJSON, nullIfEmpty(entry.SessionID))
	if err != nil {
		return 0, fmt.Errorf("failed to write audit entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read audit id: %w", err)
	}
	a.logger.Debug("audit entry",
		zap.Int64("id", id),
		zap.String("operation", string(entry.Operation)),
		zap.String("entity_type", string(entry.EntityType)))
	return id, nil
}

// LogIndex records that a document was indexed. Only the file name is kept.
func (a *Auditor) LogIndex(ctx context.Context, documentID, sourceType string, chunks int, filePath string) (int64, error) {
	details := map[string]interface{}{
		"source_type": sourceType,
		"chunk_count": chunks,
	}
	if filePath != "" {
		details["file_name"] = filepath.Base(filePath)
	}
	return a.Log(ctx, AuditEntry{
		Operation:  OpIndex,
		EntityType: EntityDocument,
		EntityID:   documentID,
		Details:    details,
	})
}

// LogDelete records that a document was deleted.
func (a *Auditor) LogDelete(ctx context.Context, documentID, reason string, chunks int) (int64, error) {
	return a.Log(ctx, AuditEntry{
		Operation:  OpDelete,
		EntityType: EntityDocument,
		EntityID:   documentID,
		Details: map[string]interface{}{
			"reason":         reason,
			"chunks_deleted": chunks,
		},
	})
}

// LogQuery records a query without its text. It is a no-op unless query
// logging is enabled.
func (a *Auditor) LogQuery(ctx context.Context, resultCount int, mode string, filters []string) (int64, error) {
	if !a.logQueries {
		return 0, nil
	}
	if filters == nil {
		filters = []string{}
	}
	return a.Log(ctx, AuditEntry{
		Operation:  OpQuery,
		EntityType: EntityCollection,
		Details: map[string]interface{}{
			"result_count": resultCount,
			"mode":         mode,
			"filters_used": filters,
		},
	})
}

// Query returns entries matching f, newest first.
func (a *Auditor) Query(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	if !a.enabled {
		return nil, nil
	}
	query := `SELECT id, timestamp, operation, entity_type, entity_id, details, session_id FROM audit_log WHERE 1=1`
	var args []interface{}
	if f.Start != nil {
		query += ` AND timestamp >= ?`
		args = append(args, formatTime(*f.Start))
	}
	if f.End != nil {
		query += ` AND timestamp <= ?`
		args = append(args, formatTime(*f.End))
	}
	if f.Operation != "" {
		query += ` AND operation = ?`
		args = append(args, string(f.Operation))
	}
	if f.EntityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(f.EntityType))
	}
	if f.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, f.EntityID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts, op, et string
		var entityID, details, session sql.NullString
		if err := rows.Scan(&e.ID, &ts, &op, &et, &entityID, &details, &session); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.Operation = Operation(op)
		e.EntityType = EntityType(et)
		e.EntityID = entityID.String
		e.SessionID = session.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DocumentHistory returns every entry about one document, newest first.
func (a *Auditor) DocumentHistory(ctx context.Context, documentID string) ([]AuditEntry, error) {
	return a.Query(ctx, AuditFilter{EntityType: EntityDocument, EntityID: documentID, Limit: 1000})
}

// DeletionReport summarizes deletions between start and end. Zero times
// default to the last 30 days.
func (a *Auditor) DeletionReport(ctx context.Context, start, end time.Time) (*DeletionReport, error) {
	if end.IsZero() {
		end = a.now()
	}
	if start.IsZero() {
		start = end.Add(-a.reportWindow)
	}
	entries, err := a.Query(ctx, AuditFilter{Start: &start, End: &end, Operation: OpDelete, Limit: 10000})
	if err != nil {
		return nil, err
	}
	report := &DeletionReport{
		PeriodStart:    start,
		PeriodEnd:      end,
		TotalDeletions: len(entries),
		ByReason:       map[string]int{},
	}
	for _, e := range entries {
		reason := "unknown"
		if r, ok := e.Details["reason"].(string); ok && r != "" {
			reason = r
		}
		report.ByReason[reason]++
		if n, ok := e.Details["chunks_deleted"].(float64); ok {
			report.TotalChunksDeleted += int(n)
		}
	}
	return report, nil
}

// CleanupOldEntries removes entries older than retentionDays and returns how
// many were removed.
func (a *Auditor) CleanupOldEntries(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	cutoff := a.now().AddDate(0, 0, -retentionDays)
	result, err := a.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit log: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		a.logger.Info("removed old audit entries", zap.Int64("count", n), zap.Int("retention_days", retentionDays))
	}
	return int(n), nil
}
