// Package search runs hybrid (semantic + keyword) chunk retrieval and the
// index-side deletions used to forget data.
package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/embedding"
	"github.com/flatplanetpl/poc-digital-twin/internal/keyword"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
	"github.com/flatplanetpl/poc-digital-twin/internal/vector"
)

// DetailStore returns heavy chunk metadata keyed by chunk id.
type DetailStore interface {
	GetChunkDetails(ctx context.Context, chunkIDs []string) (map[string]map[string]interface{}, error)
}

// Chunk is one embedded chunk ready to be stored.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Title      string
	FilePath   string
	Vector     []float32
	// Light is the metadata stored with the vector.
	Light map[string]interface{}
}

// Service runs hybrid retrieval over a vector store and an optional keyword index.
type Service struct {
	embedder      embedding.Embedder
	vectors       vector.Store
	keywords      keyword.KeywordIndex
	keywordWeight float64
	details       DetailStore
	persistPath   string
	logger        *zap.Logger
	mu            sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithKeywordIndex enables hybrid scoring with the given keyword weight in [0,1].
func WithKeywordIndex(idx keyword.KeywordIndex, weight float64) Option {
	return func(s *Service) {
		s.keywords = idx
		s.keywordWeight = weight
	}
}

// WithDetails merges heavy chunk metadata into every candidate.
func WithDetails(d DetailStore) Option {
	return func(s *Service) { s.details = d }
}

// WithPersistPath saves the vector store to path after every write.
func WithPersistPath(path string) Option {
	return func(s *Service) { s.persistPath = path }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a search service.
func NewService(embedder embedding.Embedder, vectors vector.Store, opts ...Option) *Service {
	s := &Service{embedder: embedder, vectors: vectors, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Embedder returns the embedder used for queries and chunks.
func (s *Service) Embedder() embedding.Embedder {
	return s.embedder
}

// Search returns up to k candidates for query that pass filters, best first.
// Similarity is in [0,1].
func (s *Service) Search(ctx context.Context, query string, k int, filters Filters) ([]models.Candidate, error) {
	if k <= 0 {
		return nil, nil
	}

	hybrid := s.keywords != nil && s.keywordWeight > 0
	var (
		hits      []*vector.Result
		kwResults []*keyword.KeywordResult
		kwErr     error
		wg        sync.WaitGroup
	)
	if hybrid {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limit := k * 2
			if limit < 20 {
				limit = 20
			}
			kwResults, kwErr = s.keywords.Search(ctx, query, limit, &keyword.SearchOptions{
				TitleBoost:  2,
				PhraseBoost: 1.5,
				SourceType:  filters.SourceType,
			})
		}()
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err == nil {
		hits, err = s.vectors.Search(ctx, queryVec, k, filters.Conditions())
		if err != nil {
			err = fmt.Errorf("failed to search vectors: %w", err)
		}
	} else {
		err = fmt.Errorf("failed to embed query: %w", err)
	}
	wg.Wait()
	if err != nil {
		return nil, err
	}

	order := make([]string, len(hits))
	byID := make(map[string]*vector.Result, len(hits))
	for i, h := range hits {
		order[i] = h.ID
		byID[h.ID] = h
	}
	scores := NormalizeSemanticScores(hits)
	if hybrid {
		if kwErr != nil {
			s.logger.Warn("keyword search failed, using semantic scores", zap.Error(kwErr))
		} else {
			fused := Fuse(order, NormalizeKeywordScores(kwResults), scores, s.keywordWeight)
			for i, f := range fused {
				order[i] = f.ChunkID
				scores[f.ChunkID] = f.Score
			}
		}
	}

	var heavy map[string]map[string]interface{}
	if s.details != nil && len(order) > 0 {
		heavy, err = s.details.GetChunkDetails(ctx, order)
		if err != nil {
			s.logger.Warn("failed to load chunk details", zap.Error(err))
			heavy = nil
		}
	}

	candidates := make([]models.Candidate, 0, len(order))
	for _, id := range order {
		h := byID[id]
		candidates = append(candidates, models.Candidate{
			ID:         id,
			Content:    h.Content,
			Metadata:   storage.MergeMetadata(h.Payload, heavy[id]),
			Similarity: scores[id],
		})
	}
	s.logger.Debug("retrieved candidates",
		zap.Int("k", k),
		zap.Int("count", len(candidates)),
		zap.Bool("hybrid", hybrid))
	return candidates, nil
}

// Add stores embedded chunks in the vector store and the keyword index.
func (s *Service) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]vector.Point, len(chunks))
	docs := make(map[string]*keyword.Doc, len(chunks))
	for i, c := range chunks {
		points[i] = vector.Point{
			ID:       c.ID,
			Vector:   c.Vector,
			Content:  c.Content,
			FilePath: c.FilePath,
			Payload:  c.Light,
		}
		docs[c.ID] = &keyword.Doc{
			Content:    c.Content,
			Title:      c.Title,
			SourceType: models.MetaString(c.Light, "source_type"),
			DocumentID: c.DocumentID,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.vectors.Upsert(ctx, points); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	if s.keywords != nil {
		if err := s.keywords.IndexBatch(ctx, docs); err != nil {
			return fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	return s.persistLocked()
}

// DeleteDocument removes every chunk of a document and returns how many were removed.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	return count(s.deleteWhere(ctx, vector.Eq("document_id", documentID)))
}

// DeleteByFilePath removes every chunk loaded from path.
func (s *Service) DeleteByFilePath(ctx context.Context, path string) (int, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return count(s.deleteWhere(ctx, vector.Eq(vector.FieldFilePath, path)))
}

// DeleteBySender removes every chunk whose sender equals sender and returns
// the removed chunk ids.
func (s *Service) DeleteBySender(ctx context.Context, sender string) ([]string, error) {
	return s.deleteWhere(ctx, vector.Eq("sender", sender))
}

// DeleteByFilter removes every chunk whose light metadata matches all of filter.
func (s *Service) DeleteByFilter(ctx context.Context, filter map[string]string) (int, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	conds := make([]vector.Condition, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, vector.Eq(k, filter[k]))
	}
	return count(s.deleteWhere(ctx, conds...))
}

func count(ids []string, err error) (int, error) {
	return len(ids), err
}

// deleteWhere removes matching chunks from both indexes. On a partial failure
// the ids already removed from the vector store are returned with the error.
func (s *Service) deleteWhere(ctx context.Context, conds ...vector.Condition) ([]string, error) {
	for _, c := range conds {
		if c.Value == "" {
			return nil, fmt.Errorf("empty value for %s: %w", c.Field, vector.ErrEmptyFilter)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.vectors.Delete(ctx, conds)
	if err != nil {
		return nil, fmt.Errorf("failed to delete vectors: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if s.keywords != nil {
		if err := s.keywords.Delete(ctx, ids); err != nil {
			return ids, fmt.Errorf("failed to delete keyword entries: %w", err)
		}
	}
	if err := s.persistLocked(); err != nil {
		return ids, err
	}
	s.logger.Info("deleted chunks", zap.Int("count", len(ids)))
	return ids, nil
}

func (s *Service) persistLocked() error {
	if s.persistPath == "" {
		return nil
	}
	if err := s.vectors.Save(s.persistPath); err != nil {
		return fmt.Errorf("failed to save vector store: %w", err)
	}
	return nil
}

// Load restores the vector store from the persist path, if any.
func (s *Service) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistPath == "" {
		return nil
	}
	return s.vectors.Load(s.persistPath)
}

// Stats reports the number of stored vectors and keyword entries.
type Stats struct {
	Vectors        int     `json:"vectors"`
	KeywordEntries uint64  `json:"keyword_entries"`
	KeywordWeight  float64 `json:"keyword_weight"`
	EmbeddingModel string  `json:"embedding_model"`

	EmbeddingCache *embedding.CacheStats `json:"embedding_cache,omitempty"`
}

// Stats returns index sizes.
func (s *Service) Stats() Stats {
	st := Stats{
		Vectors:        s.vectors.Size(),
		KeywordWeight:  s.keywordWeight,
		EmbeddingModel: s.embedder.Model(),
	}
	if s.keywords != nil {
		if n, err := s.keywords.DocCount(); err == nil {
			st.KeywordEntries = n
		}
	}
	if c, ok := s.embedder.(interface{ CacheStats() embedding.CacheStats }); ok {
		cs := c.CacheStats()
		st.EmbeddingCache = &cs
	}
	return st
}

// Close closes the vector store and keyword index.
func (s *Service) Close() error {
	var errs []error
	if err := s.vectors.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.keywords != nil {
		if err := s.keywords.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
