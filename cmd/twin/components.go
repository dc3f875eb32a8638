package main

import (
	"context"
	"fmt"
	"os"

	"github.com/flatplanetpl/poc-digital-twin/internal/config"
	"github.com/flatplanetpl/poc-digital-twin/internal/embedding"
	"github.com/flatplanetpl/poc-digital-twin/internal/explain"
	"github.com/flatplanetpl/poc-digital-twin/internal/extract"
	"github.com/flatplanetpl/poc-digital-twin/internal/indexer"
	"github.com/flatplanetpl/poc-digital-twin/internal/keyword"
	"github.com/flatplanetpl/poc-digital-twin/internal/llm"
	"github.com/flatplanetpl/poc-digital-twin/internal/query"
	"github.com/flatplanetpl/poc-digital-twin/internal/rag"
	"github.com/flatplanetpl/poc-digital-twin/internal/ranking"
	"github.com/flatplanetpl/poc-digital-twin/internal/search"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
	"github.com/flatplanetpl/poc-digital-twin/internal/vector"
	"go.uber.org/zap"
)

// Components holds every long-lived dependency of a command.
type Components struct {
	Stores   *storage.Stores
	Embedder embedding.Embedder
	Search   *search.Service
	LLM      *llm.Client
	Engine   *rag.Engine
	Forget   *rag.ForgetService
	Indexer  *indexer.Indexer
}

// Close releases the indexes and the database.
func (c *Components) Close() {
	if c.Search != nil {
		_ = c.Search.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Stores != nil {
		_ = c.Stores.Close()
	}
}

// initializeComponents wires the stores, indexes, ranker and engines from
// cfg. A completion provider is only required when needLLM is set; otherwise
// a provider that cannot be built leaves the engine without one.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, needLLM bool) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	stores, err := storage.OpenAll(cfg.Storage.DatabasePath,
		storage.WithAuditEnabled(cfg.Audit.On()),
		storage.WithQueryLogging(cfg.Audit.Queries),
		storage.WithAuditLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Stores = stores

	emb, err := embedding.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = emb

	vectors, err := vector.NewStore(ctx, vector.Options{
		Backend:    cfg.Vector.Backend,
		Dimensions: emb.Dimensions(),
		DSN:        cfg.Vector.DSN,
		Table:      cfg.Vector.Table,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	svcOpts := []search.Option{search.WithDetails(stores.Registry), search.WithLogger(logger)}
	if vector.Backend(cfg.Vector.Backend) != vector.BackendPGVector {
		svcOpts = append(svcOpts, search.WithPersistPath(cfg.Storage.VectorIndexPath))
	}
	if cfg.Search.KeywordOn() {
		kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath, keyword.WithLogger(logger))
		if err != nil {
			_ = vectors.Close()
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		svcOpts = append(svcOpts, search.WithKeywordIndex(kw, cfg.Search.KeywordWeight))
	}
	c.Search = search.NewService(emb, vectors, svcOpts...)
	if err := c.Search.Load(); err != nil {
		logger.Warn("vector index load skipped (reindex to rebuild)",
			zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}

	if compat, err := stores.Registry.CheckEmbeddingCompatibility(ctx, emb.Model()); err == nil && compat.RequiresReindex {
		logger.Warn("index was built with a different embedding model; reindex to search it",
			zap.String("current_model", compat.CurrentModel),
			zap.Any("models_in_index", compat.ModelsInIndex))
	}

	ranker, err := ranking.NewRanker(cfg.Ranking, ranking.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ranker: %w", err)
	}

	engineOpts := []rag.EngineOption{
		rag.WithHistory(stores.History),
		rag.WithAuditor(stores.Audit),
		rag.WithPreprocessor(query.NewPreprocessor(query.WithLogger(logger))),
		rag.WithExplainer(explain.NewBuilder(cfg.Explain.MaxContextTokens)),
		rag.WithEmbeddingModel(emb.Model()),
		rag.WithTopK(cfg.Search.TopK, cfg.Search.MaxTopK),
		rag.WithTimeout(cfg.LLM.Timeout),
		rag.WithLogger(logger),
	}
	client, err := llm.New(cfg.LLM, logger)
	switch {
	case err == nil:
		c.LLM = client
		c.Engine = rag.NewEngine(c.Search, client, ranker, engineOpts...)
	case needLLM:
		return nil, fmt.Errorf("failed to initialize llm: %w", err)
	default:
		logger.Debug("llm unavailable; answering disabled", zap.Error(err))
		c.Engine = rag.NewEngine(c.Search, nil, ranker, engineOpts...)
	}

	c.Forget = rag.NewForgetService(c.Search, stores.History, stores.Registry, stores.Audit,
		rag.WithForgetTimeout(cfg.LLM.Timeout),
		rag.WithForgetLogger(logger))

	loader := extract.NewLoader(
		extract.WithGroupWindow(cfg.Search.MessageGroupWindow),
		extract.WithWhatsAppGroupWindow(cfg.Search.WhatsAppGroupWindow),
		extract.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(loader, emb, c.Search, stores.Registry,
		indexer.WithLogger(logger),
		indexer.WithAuditor(stores.Audit),
		indexer.WithChunking(cfg.Search.ChunkSize, cfg.Search.ChunkOverlap))

	ok = true
	return c, nil
}

// existingDirs drops watch directories that are missing or not directories.
func existingDirs(dirs []string, logger *zap.Logger) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			logger.Warn("watch directory skipped", zap.String("path", d), zap.Error(err))
			continue
		}
		out = append(out, d)
	}
	return out
}
