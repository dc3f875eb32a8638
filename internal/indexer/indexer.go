// Package indexer loads source files, chunks and embeds them, and writes the
// chunks to the search index and the document registry.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/embedding"
	"github.com/flatplanetpl/poc-digital-twin/internal/extract"
	"github.com/flatplanetpl/poc-digital-twin/internal/fileid"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/search"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
)

// Index stores embedded chunks and removes a document's chunks.
type Index interface {
	Add(ctx context.Context, chunks []search.Chunk) error
	DeleteDocument(ctx context.Context, documentID string) (int, error)
}

// Registry tracks indexed files and their heavy chunk metadata.
type Registry interface {
	GetByFilePath(ctx context.Context, path string) (*models.TrackedDocument, error)
	Register(ctx context.Context, in storage.RegisterInput) (*models.TrackedDocument, error)
	StoreChunkDetails(ctx context.Context, details []storage.ChunkDetail) (int, error)
	DeleteChunkDetails(ctx context.Context, documentID string) (int, error)
}

// Auditor records index operations.
type Auditor interface {
	LogIndex(ctx context.Context, documentID, sourceType string, chunks int, filePath string) (int64, error)
}

// FileResult describes the outcome for one file.
type FileResult struct {
	Path       string
	DocumentID string
	SourceType string
	Records    int
	Chunks     int
	// Skipped is set when the file is unchanged since it was last indexed.
	Skipped bool
	Err     error
}

// Summary totals an IndexPath run.
type Summary struct {
	Indexed int
	Skipped int
	Failed  int
	Chunks  int
}

// Indexer indexes files into the search index and the registry.
type Indexer struct {
	loader   *extract.Loader
	chunker  *Chunker
	embedder embedding.Embedder
	index    Index
	registry Registry
	audit    Auditor
	logger   *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithAuditor records an index entry for every indexed file.
func WithAuditor(a Auditor) IndexerOption {
	return func(idx *Indexer) { idx.audit = a }
}

// WithChunking sets chunk size and overlap in runes.
func WithChunking(size, overlap int) IndexerOption {
	return func(idx *Indexer) { idx.chunker = NewChunker(size, overlap) }
}

// NewIndexer creates an indexer. Chunks default to 1024 runes with 100 of overlap.
func NewIndexer(loader *extract.Loader, embedder embedding.Embedder, index Index, registry Registry, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		loader:   loader,
		chunker:  NewChunker(1024, 100),
		embedder: embedder,
		index:    index,
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Supports reports whether the file at path can be indexed.
func (idx *Indexer) Supports(path string) bool {
	return idx.loader.Supports(path)
}

// IndexFile indexes one file. A file whose content hash and embedding model
// match its active registry entry is skipped. A changed file replaces its
// previous chunks and keeps its document id.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*FileResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	res := &FileResult{Path: absPath}
	if !idx.loader.Supports(absPath) {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	hash, err := storage.ComputeContentHash(absPath)
	if err != nil {
		return nil, err
	}
	existing, err := idx.registry.GetByFilePath(ctx, absPath)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}
	if existing != nil && existing.Status == models.StatusActive &&
		existing.ContentHash == hash && existing.EmbeddingModel == idx.embedder.Model() {
		res.DocumentID = existing.ID
		res.SourceType = existing.SourceType
		res.Chunks = existing.ChunkCount
		res.Skipped = true
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return res, nil
	}

	records, err := idx.loader.Load(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(absPath), err)
	}
	res.DocumentID = fileid.DocumentID(absPath)
	if existing != nil {
		res.DocumentID = existing.ID
		if _, err := idx.index.DeleteDocument(ctx, res.DocumentID); err != nil {
			return nil, fmt.Errorf("failed to remove previous chunks: %w", err)
		}
		if _, err := idx.registry.DeleteChunkDetails(ctx, res.DocumentID); err != nil {
			return nil, fmt.Errorf("failed to remove previous chunk details: %w", err)
		}
	}
	res.Records = len(records)
	res.SourceType = sourceTypeOf(records)

	chunks, details := idx.chunkRecords(res.DocumentID, absPath, records)
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		}
		for i := range chunks {
			chunks[i].Vector = vectors[i]
		}
		if err := idx.index.Add(ctx, chunks); err != nil {
			return nil, err
		}
		if _, err := idx.registry.StoreChunkDetails(ctx, details); err != nil {
			return nil, err
		}
	}
	res.Chunks = len(chunks)

	if _, err := idx.registry.Register(ctx, storage.RegisterInput{
		ID:             res.DocumentID,
		FilePath:       absPath,
		ContentHash:    hash,
		SourceType:     res.SourceType,
		ChunkCount:     res.Chunks,
		EmbeddingModel: idx.embedder.Model(),
		Metadata:       map[string]interface{}{"record_count": res.Records, "size": info.Size()},
	}); err != nil {
		return nil, err
	}
	if idx.audit != nil {
		if _, err := idx.audit.LogIndex(ctx, res.DocumentID, res.SourceType, res.Chunks, absPath); err != nil {
			idx.logger.Warn("failed to audit index", zap.String("document_id", res.DocumentID), zap.Error(err))
		}
	}
	idx.logger.Info("indexed file",
		zap.String("path", absPath),
		zap.String("document_id", res.DocumentID),
		zap.String("source_type", res.SourceType),
		zap.Int("records", res.Records),
		zap.Int("chunks", res.Chunks))
	return res, nil
}

// chunkRecords splits every record and returns the chunks (without vectors)
// with their heavy metadata. Chunk numbering runs across records.
func (idx *Indexer) chunkRecords(docID, absPath string, records []models.Record) ([]search.Chunk, []storage.ChunkDetail) {
	var (
		chunks  []search.Chunk
		details []storage.ChunkDetail
	)
	for _, rec := range records {
		for _, dc := range idx.chunker.Chunk(docID, len(chunks), Preprocess(rec.Content)) {
			md := models.CloneMetadata(rec.Metadata)
			md["document_id"] = docID
			md["chunk_index"] = dc.ChunkIndex
			light, heavy := storage.SplitMetadata(md)
			sourceType := models.MetaStringOr(md, "source_type", "unknown")
			chunks = append(chunks, search.Chunk{
				ID:         dc.ID,
				DocumentID: docID,
				Content:    dc.Content,
				Title:      titleOf(md),
				FilePath:   absPath,
				Light:      light,
			})
			details = append(details, storage.ChunkDetail{
				ChunkID:    dc.ID,
				DocumentID: docID,
				SourceType: sourceType,
				Heavy:      heavy,
			})
		}
	}
	return chunks, details
}

// titleOf picks the keyword-index title: subject, title or chat name, else
// the file name with underscores as spaces so its words match separately.
func titleOf(md map[string]interface{}) string {
	for _, k := range []string{"subject", "title", "chat_name"} {
		if s := models.MetaString(md, k); s != "" {
			return s
		}
	}
	return strings.ReplaceAll(models.MetaString(md, "filename"), "_", " ")
}

func sourceTypeOf(records []models.Record) string {
	for _, r := range records {
		if s := models.MetaString(r.Metadata, "source_type"); s != "" {
			return s
		}
	}
	return "unknown"
}

// IndexPath indexes a file, or every supported file under a directory.
// Files that fail are counted and reported to onFile; the walk continues.
// onFile may be nil.
func (idx *Indexer) IndexPath(ctx context.Context, root string, onFile func(FileResult)) (*Summary, error) {
	files, err := idx.Files(root)
	if err != nil {
		return nil, err
	}
	sum := &Summary{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := idx.IndexFile(ctx, path)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sum, err
			}
			sum.Failed++
			idx.logger.Warn("failed to index file", zap.String("path", path), zap.Error(err))
			res = &FileResult{Path: path, Err: err}
		} else if res.Skipped {
			sum.Skipped++
		} else {
			sum.Indexed++
			sum.Chunks += res.Chunks
		}
		if onFile != nil {
			onFile(*res)
		}
	}
	return sum, nil
}

// Files lists the supported files at root in walk order. Hidden files and
// directories are skipped.
func (idx *Indexer) Files(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		if !idx.loader.Supports(absRoot) {
			return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(absRoot))
		}
		return []string{absRoot}, nil
	}
	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != absRoot && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !idx.loader.Supports(path) {
			return nil
		}
		if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", absRoot, err)
	}
	return files, nil
}
