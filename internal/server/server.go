// Package server provides the HTTP API for the digital twin.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/config"
	"github.com/flatplanetpl/poc-digital-twin/internal/llm"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/rag"
	"github.com/flatplanetpl/poc-digital-twin/internal/search"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Engine answers and searches.
type Engine interface {
	Query(ctx context.Context, req rag.QueryRequest) (*models.GroundedResponse, error)
	Stream(ctx context.Context, req rag.QueryRequest, fn func(chunk string) error) (*models.GroundedResponse, error)
	Search(ctx context.Context, question string, topK int, filters search.Filters) (*rag.SearchResult, error)
}

// Forgetter deletes personal data on request.
type Forgetter interface {
	ForgetDocument(ctx context.Context, documentID, reason string) *models.ForgetResult
	ForgetByFilePath(ctx context.Context, path, reason string) *models.ForgetResult
	ForgetSender(ctx context.Context, sender, reason string) *models.ForgetResult
	ForgetBySourceType(ctx context.Context, sourceType, reason string) *models.ForgetResult
	DeletionReport(ctx context.Context, days int) (*storage.DeletionReport, error)
}

// Documents lists tracked documents and toggles their ranking flags.
type Documents interface {
	ListDocuments(ctx context.Context, status models.DocumentStatus, sourceType string, limit int) ([]*models.TrackedDocument, error)
	UpdatePinned(ctx context.Context, documentID string, pinned bool) (int, error)
	UpdateApproved(ctx context.Context, documentID string, approved bool) (int, error)
	GetStats(ctx context.Context) (*storage.RegistryStats, error)
}

// Conversations reads and deletes chat history.
type Conversations interface {
	ListConversations(ctx context.Context, limit int) ([]*models.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	Messages(ctx context.Context, conversationID int64) ([]models.Message, error)
	DeleteConversation(ctx context.Context, id int64) (bool, error)
}

// WatchService manages watched directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the digital twin API.
type Server struct {
	engine        Engine
	forget        Forgetter
	documents     Documents
	conversations Conversations
	providers     func() []llm.ProviderInfo
	indexStats    func() search.Stats
	dataPaths     map[string]string
	config        *config.ServerConfig
	logger        *zap.Logger
	server        *http.Server

	watch         WatchService
	configPath    string
	watchConfig   *config.Config
	watchConfigMu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithDocuments enables the document endpoints and registry stats.
func WithDocuments(d Documents) Option {
	return func(s *Server) { s.documents = d }
}

// WithConversations enables the conversation endpoints.
func WithConversations(c Conversations) Option {
	return func(s *Server) { s.conversations = c }
}

// WithProviders sets the source of the provider listing.
func WithProviders(fn func() []llm.ProviderInfo) Option {
	return func(s *Server) { s.providers = fn }
}

// WithIndexStats sets the source of vector and keyword index sizes.
func WithIndexStats(fn func() search.Stats) Option {
	return func(s *Server) { s.indexStats = fn }
}

// WithDataPaths names the on-disk paths whose sizes /stats reports.
func WithDataPaths(paths map[string]string) Option {
	return func(s *Server) { s.dataPaths = paths }
}

// WithWatch enables the watch directory endpoints. When configPath is set,
// directory changes are written back to cfg at that path.
func WithWatch(ws WatchService, configPath string, cfg *config.Config) Option {
	return func(s *Server) {
		s.watch = ws
		s.configPath = configPath
		s.watchConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(cfg *config.ServerConfig, engine Engine, forget Forgetter, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		forget: forget,
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/query/stream", s.handleQueryStream)
		r.Post("/search", s.handleSearch)

		r.Post("/forget/document", s.handleForgetDocument)
		r.Post("/forget/file", s.handleForgetFile)
		r.Post("/forget/sender", s.handleForgetSender)
		r.Post("/forget/source", s.handleForgetSource)
		r.Get("/forget/report", s.handleDeletionReport)

		r.Get("/documents", s.handleListDocuments)
		r.Patch("/documents/{id}/pin", s.handlePinDocument)
		r.Patch("/documents/{id}/approve", s.handleApproveDocument)

		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)

		r.Get("/providers", s.handleProviders)
		r.Get("/stats", s.handleStats)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
