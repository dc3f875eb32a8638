package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// PGConfig configures a PGStore.
type PGConfig struct {
	DSN        string
	Table      string
	Dimensions int
}

// PGStore keeps points in a Postgres table with a pgvector column. Light
// metadata is stored as JSONB and filtered in SQL.
type PGStore struct {
	config PGConfig
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// PGOption configures a PGStore.
type PGOption func(*PGStore)

// WithPGLogger sets the logger.
func WithPGLogger(l *zap.Logger) PGOption {
	return func(s *PGStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewPGStore connects to Postgres and creates the table and index if needed.
func NewPGStore(ctx context.Context, config PGConfig, opts ...PGOption) (*PGStore, error) {
	if config.Table == "" {
		config.Table = "twin_chunks"
	}
	if !validIdentifier(config.Table) {
		return nil, fmt.Errorf("invalid table name %q", config.Table)
	}
	if config.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}

	pool, err := pgxpool.New(ctx, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &PGStore{config: config, pool: pool, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func validIdentifier(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return name != ""
}

func (s *PGStore) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			file_path TEXT,
			payload JSONB,
			embedding vector(%d)
		)`, s.config.Table, s.config.Dimensions)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	statements := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
			s.config.Table, s.config.Table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s ((payload->>'document_id'))`,
			s.config.Table, s.config.Table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_file_path_idx ON %s (file_path)`,
			s.config.Table, s.config.Table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Type returns the backend identifier.
func (s *PGStore) Type() string {
	return string(BackendPGVector)
}

// Upsert inserts or replaces points in one transaction.
func (s *PGStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, file_path, payload, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			file_path = EXCLUDED.file_path,
			payload = EXCLUDED.payload,
			embedding = EXCLUDED.embedding`, s.config.Table)

	for _, p := range points {
		if len(p.Vector) != s.config.Dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(p.Vector), s.config.Dimensions)
		}
		var filePath *string
		if p.FilePath != "" {
			filePath = &p.FilePath
		}
		payload := p.Payload
		if payload == nil {
			payload = map[string]interface{}{}
		}
		if _, err := tx.Exec(ctx, stmt, p.ID, p.Content, filePath, payload, pgvector.NewVector(p.Vector)); err != nil {
			return fmt.Errorf("failed to upsert point: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// whereClause renders conds as SQL starting at placeholder $next.
func whereClause(conds []Condition, next int) (string, []interface{}) {
	if len(conds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(conds))
	args := make([]interface{}, 0, len(conds)*2)
	for _, c := range conds {
		col := fmt.Sprintf("payload->>($%d::text)", next)
		if c.Field == FieldFilePath {
			col = "file_path"
		} else {
			args = append(args, c.Field)
			next++
		}
		switch c.Op {
		case MatchContains:
			parts = append(parts, fmt.Sprintf("%s ILIKE '%%' || $%d::text || '%%'", col, next))
		default:
			parts = append(parts, fmt.Sprintf("%s = $%d::text", col, next))
		}
		args = append(args, c.Value)
		next++
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// Search returns the top-k points matching conds ordered by cosine distance.
func (s *PGStore) Search(ctx context.Context, query []float32, k int, conds []Condition) ([]*Result, error) {
	if len(query) != s.config.Dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), s.config.Dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	where, args := whereClause(conds, 3)
	sql := fmt.Sprintf(`
		SELECT id, content, payload, embedding <=> $1 AS distance
		FROM %s%s
		ORDER BY embedding <=> $1
		LIMIT $2`, s.config.Table, where)

	rows, err := s.pool.Query(ctx, sql, append([]interface{}{pgvector.NewVector(query), k}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		var r Result
		var distance float64
		if err := rows.Scan(&r.ID, &r.Content, &r.Payload, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Score = DistanceToSimilarity(distance)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Delete removes every point matching conds and returns their ids.
func (s *PGStore) Delete(ctx context.Context, conds []Condition) ([]string, error) {
	if len(conds) == 0 {
		return nil, ErrEmptyFilter
	}
	where, args := whereClause(conds, 1)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`DELETE FROM %s%s RETURNING id`, s.config.Table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to delete vectors: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteIDs removes points by id and returns how many existed.
func (s *PGStore) DeleteIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.config.Table), ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete vectors: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Save is a no-op; Postgres persists every write.
func (s *PGStore) Save(path string) error { return nil }

// Load is a no-op; Postgres persists every write.
func (s *PGStore) Load(path string) error { return nil }

// Size returns the number of stored points, or 0 when the count fails.
func (s *PGStore) Size() int {
	var n int
	if err := s.pool.QueryRow(context.Background(), fmt.Sprintf(`SELECT count(*) FROM %s`, s.config.Table)).Scan(&n); err != nil {
		s.logger.Warn("failed to count vectors", zap.Error(err))
		return 0
	}
	return n
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
