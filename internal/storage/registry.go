package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// Registry tracks indexed source files and the heavy metadata of their chunks.
type Registry struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRegistryClock sets the clock used for timestamps.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a Registry on db and initializes its schema.
func NewRegistry(db *sql.DB, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{db: db, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL UNIQUE,
		content_hash TEXT NOT NULL,
		source_type TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		embedding_model TEXT NOT NULL,
		metadata_version INTEGER NOT NULL DEFAULT 1,
		first_indexed_at TEXT NOT NULL,
		last_indexed_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_source_type ON documents(source_type);

	CREATE TABLE IF NOT EXISTS chunk_details (
		chunk_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		file_path TEXT,
		indexed_at TEXT,
		is_pinned INTEGER NOT NULL DEFAULT 0,
		is_approved INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunk_details_document_id ON chunk_details(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunk_details_source_type ON chunk_details(source_type);
	`
	_, err := r.db.Exec(schema)
	return err
}

// ComputeContentHash returns the hex SHA-256 of the file at path.
func ComputeContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RegisterInput describes a file that has just been indexed.
type RegisterInput struct {
	// ID is used for a new entry; empty generates one. Existing entries keep theirs.
	ID             string
	FilePath       string
	ContentHash    string
	SourceType     string
	ChunkCount     int
	EmbeddingModel string
	Metadata       map[string]interface{}
}

// Register records a newly indexed file or refreshes an existing entry with
// the same path. Existing entries keep their id and first_indexed_at.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*models.TrackedDocument, error) {
	path, err := filepath.Abs(in.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	var metadataJSON sql.NullString
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(b), Valid: true}
	}

	now := r.now()
	existing, err := r.GetByFilePath(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	doc := &models.TrackedDocument{
		FilePath:        path,
		ContentHash:     in.ContentHash,
		SourceType:      in.SourceType,
		ChunkCount:      in.ChunkCount,
		EmbeddingModel:  in.EmbeddingModel,
		MetadataVersion: 1,
		FirstIndexedAt:  now,
		LastIndexedAt:   now,
		Status:          models.StatusActive,
		Metadata:        in.Metadata,
	}

	if existing != nil {
		doc.ID = existing.ID
		doc.FirstIndexedAt = existing.FirstIndexedAt
		doc.MetadataVersion = existing.MetadataVersion
		_, err = r.db.ExecContext(ctx,
			`UPDATE documents
			 SET content_hash = ?, source_type = ?, chunk_count = ?, embedding_model = ?,
			     last_indexed_at = ?, status = ?, metadata = ?
			 WHERE id = ?`,
			doc.ContentHash, doc.SourceType, doc.ChunkCount, doc.EmbeddingModel,
			formatTime(now), string(models.StatusActive), metadataJSON, doc.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update document: %w", err)
		}
		return doc, nil
	}

	doc.ID = in.ID
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (id, file_path, content_hash, source_type, chunk_count,
		     embedding_model, metadata_version, first_indexed_at, last_indexed_at, status, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.FilePath, doc.ContentHash, doc.SourceType, doc.ChunkCount,
		doc.EmbeddingModel, doc.MetadataVersion, formatTime(now), formatTime(now),
		string(models.StatusActive), metadataJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	r.logger.Debug("registered document",
		zap.String("document_id", doc.ID),
		zap.String("source_type", doc.SourceType),
		zap.Int("chunks", doc.ChunkCount))
	return doc, nil
}

const documentColumns = `id, file_path, content_hash, source_type, chunk_count, embedding_model,
	metadata_version, first_indexed_at, last_indexed_at, status, metadata`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.TrackedDocument, error) {
	var doc models.TrackedDocument
	var first, last, status string
	var metadataJSON sql.NullString
	if err := row.Scan(&doc.ID, &doc.FilePath, &doc.ContentHash, &doc.SourceType, &doc.ChunkCount,
		&doc.EmbeddingModel, &doc.MetadataVersion, &first, &last, &status, &metadataJSON); err != nil {
		return nil, err
	}
	doc.FirstIndexedAt = parseTime(first)
	doc.LastIndexedAt = parseTime(last)
	doc.Status = models.DocumentStatus(status)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// GetByID returns a tracked document by id.
func (r *Registry) GetByID(ctx context.Context, id string) (*models.TrackedDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetByFilePath returns the tracked document registered for path.
func (r *Registry) GetByFilePath(ctx context.Context, path string) (*models.TrackedDocument, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE file_path = ?`, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document at %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns tracked documents, most recently indexed first.
// Empty status or sourceType match everything.
func (r *Registry) ListDocuments(ctx context.Context, status models.DocumentStatus, sourceType string, limit int) ([]*models.TrackedDocument, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []interface{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if sourceType != "" {
		query += ` AND source_type = ?`
		args = append(args, sourceType)
	}
	query += ` ORDER BY last_indexed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.TrackedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *Registry) setStatus(ctx context.Context, id string, status models.DocumentStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, last_indexed_at = ? WHERE id = ?`,
		string(status), formatTime(r.now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark document %s: %w", status, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// MarkDeleted soft-deletes a document. It reports false when id is unknown.
func (r *Registry) MarkDeleted(ctx context.Context, id string) (bool, error) {
	return r.setStatus(ctx, id, models.StatusDeleted)
}

// MarkArchived archives a document. It reports false when id is unknown.
func (r *Registry) MarkArchived(ctx context.Context, id string) (bool, error) {
	return r.setStatus(ctx, id, models.StatusArchived)
}

// PermanentlyDelete removes a document row. It reports false when id is unknown.
func (r *Registry) PermanentlyDelete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// SourceStats counts active documents and chunks of one source type.
type SourceStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// RegistryStats summarizes the registry.
type RegistryStats struct {
	ByStatus     map[string]int         `json:"by_status"`
	BySourceType map[string]SourceStats `json:"by_source_type"`
	TotalActive  int                    `json:"total_active"`
	TotalDeleted int                    `json:"total_deleted"`
	Pinned       int                    `json:"pinned_chunks"`
	Approved     int                    `json:"approved_chunks"`
}

// GetStats returns document counts by status and active counts by source type.
func (r *Registry) GetStats(ctx context.Context) (*RegistryStats, error) {
	stats := &RegistryStats{
		ByStatus: map[string]int{
			string(models.StatusActive):   0,
			string(models.StatusDeleted):  0,
			string(models.StatusArchived): 0,
		},
		BySourceType: map[string]SourceStats{},
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[status] = n
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx,
		`SELECT source_type, COUNT(*), COALESCE(SUM(chunk_count), 0)
		 FROM documents WHERE status = ? GROUP BY source_type`,
		string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to count source types: %w", err)
	}
	for rows.Next() {
		var st string
		var s SourceStats
		if err := rows.Scan(&st, &s.Documents, &s.Chunks); err != nil {
			rows.Close()
			return nil, err
		}
		stats.BySourceType[st] = s
	}
	rows.Close()

	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(is_pinned), 0), COALESCE(SUM(is_approved), 0) FROM chunk_details`,
	).Scan(&stats.Pinned, &stats.Approved)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunk flags: %w", err)
	}

	stats.TotalActive = stats.ByStatus[string(models.StatusActive)]
	stats.TotalDeleted = stats.ByStatus[string(models.StatusDeleted)]
	return stats, nil
}

// EmbeddingCompatibility reports whether the index was built with the current model.
type EmbeddingCompatibility struct {
	Compatible      bool           `json:"compatible"`
	CurrentModel    string         `json:"current_model"`
	ModelsInIndex   map[string]int `json:"models_in_index"`
	RequiresReindex bool           `json:"requires_reindex"`
}

// CheckEmbeddingCompatibility compares the embedding models of active documents
// with currentModel. An empty index is not compatible but needs no reindex.
func (r *Registry) CheckEmbeddingCompatibility(ctx context.Context, currentModel string) (*EmbeddingCompatibility, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT embedding_model, COUNT(*) FROM documents WHERE status = ? GROUP BY embedding_model`,
		string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to check embedding models: %w", err)
	}
	defer rows.Close()

	used := map[string]int{}
	for rows.Next() {
		var model string
		var n int
		if err := rows.Scan(&model, &n); err != nil {
			return nil, err
		}
		used[model] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_, current := used[currentModel]
	compatible := len(used) <= 1 && current
	return &EmbeddingCompatibility{
		Compatible:      compatible,
		CurrentModel:    currentModel,
		ModelsInIndex:   used,
		RequiresReindex: !compatible && len(used) > 0,
	}, nil
}

// ChunkDetail is the heavy metadata of one chunk.
type ChunkDetail struct {
	ChunkID    string
	DocumentID string
	SourceType string
	Heavy      map[string]interface{}
}

// StoreChunkDetails upserts heavy metadata for the given chunks in one
// transaction. The input maps are not modified.
func (r *Registry) StoreChunkDetails(ctx context.Context, details []ChunkDetail) (int, error) {
	if len(details) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunk_details (chunk_id, document_id, source_type, file_path, indexed_at,
		     is_pinned, is_approved, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET
		     document_id = excluded.document_id,
		     source_type = excluded.source_type,
		     file_path = excluded.file_path,
		     indexed_at = excluded.indexed_at,
		     is_pinned = excluded.is_pinned,
		     is_approved = excluded.is_approved,
		     metadata_json = excluded.metadata_json`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare chunk details insert: %w", err)
	}
	defer stmt.Close()

	created := formatTime(r.now())
	for _, d := range details {
		heavy := models.CloneMetadata(d.Heavy)
		filePath := models.MetaString(heavy, "file_path")
		indexedAt := models.MetaString(heavy, "indexed_at")
		pinned := models.MetaBool(heavy, "is_pinned")
		approved := models.MetaBool(heavy, "is_approved")
		for _, k := range []string{"file_path", "indexed_at", "is_pinned", "is_approved", "document_id"} {
			delete(heavy, k)
		}

		var metadataJSON sql.NullString
		if len(heavy) > 0 {
			b, err := json.Marshal(heavy)
			if err != nil {
				return 0, fmt.Errorf("failed to marshal chunk details: %w", err)
			}
			metadataJSON = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, d.ChunkID, d.DocumentID, d.SourceType,
			nullIfEmpty(filePath), nullIfEmpty(indexedAt), pinned, approved, metadataJSON, created); err != nil {
			return 0, fmt.Errorf("failed to store chunk details: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunk details: %w", err)
	}
	return len(details), nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// GetChunkDetails returns heavy metadata keyed by chunk id. Unknown ids are absent.
func (r *Registry) GetChunkDetails(ctx context.Context, chunkIDs []string) (map[string]map[string]interface{}, error) {
	out := make(map[string]map[string]interface{}, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT chunk_id, document_id, source_type, file_path, indexed_at, is_pinned, is_approved, metadata_json
		 FROM chunk_details WHERE chunk_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunkID, documentID, sourceType string
		var filePath, indexedAt, metadataJSON sql.NullString
		var pinned, approved bool
		if err := rows.Scan(&chunkID, &documentID, &sourceType, &filePath, &indexedAt,
			&pinned, &approved, &metadataJSON); err != nil {
			return nil, err
		}
		details := map[string]interface{}{}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunk details: %w", err)
			}
		}
		details["document_id"] = documentID
		details["source_type"] = sourceType
		details["is_pinned"] = pinned
		details["is_approved"] = approved
		if filePath.Valid && filePath.String != "" {
			details["file_path"] = filePath.String
		}
		if indexedAt.Valid && indexedAt.String != "" {
			details["indexed_at"] = indexedAt.String
		}
		out[chunkID] = details
	}
	return out, rows.Err()
}

func (r *Registry) updateFlag(ctx context.Context, column, documentID string, value bool) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE chunk_details SET `+column+` = ? WHERE document_id = ?`, value, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", column, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// UpdatePinned sets the pinned flag on every chunk of a document and returns
// the number of chunks changed.
func (r *Registry) UpdatePinned(ctx context.Context, documentID string, pinned bool) (int, error) {
	return r.updateFlag(ctx, "is_pinned", documentID, pinned)
}

// UpdateApproved sets the approved flag on every chunk of a document and
// returns the number of chunks changed.
func (r *Registry) UpdateApproved(ctx context.Context, documentID string, approved bool) (int, error) {
	return r.updateFlag(ctx, "is_approved", documentID, approved)
}

// DeleteChunkDetails removes the heavy metadata of every chunk of a document.
func (r *Registry) DeleteChunkDetails(ctx context.Context, documentID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chunk_details WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunk details: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// DeleteChunkDetailsByIDs removes the heavy metadata of the given chunks.
func (r *Registry) DeleteChunkDetailsByIDs(ctx context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM chunk_details WHERE chunk_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunk details: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// ClearChunkDetails removes heavy metadata of one source type, or all of it
// when sourceType is empty.
func (r *Registry) ClearChunkDetails(ctx context.Context, sourceType string) (int, error) {
	var result sql.Result
	var err error
	if sourceType != "" {
		result, err = r.db.ExecContext(ctx, `DELETE FROM chunk_details WHERE source_type = ?`, sourceType)
	} else {
		result, err = r.db.ExecContext(ctx, `DELETE FROM chunk_details`)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear chunk details: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
