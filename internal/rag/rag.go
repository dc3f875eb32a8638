// Package rag orchestrates grounded question answering over indexed personal
// data and the matching forget operations.
package rag

import (
	"context"
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/search"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
)

// Searcher retrieves candidate fragments. Similarity is in [0,1].
type Searcher interface {
	Search(ctx context.Context, query string, k int, filters search.Filters) ([]models.Candidate, error)
}

// Completer generates text from a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, fn func(chunk string) error) error
	Name() string
	Model() string
}

// History stores conversations and scrubs forgotten sources from them.
type History interface {
	// AddExchange stores a question and its answer atomically, creating the
	// conversation when conversationID is 0, and returns the conversation id.
	AddExchange(ctx context.Context, conversationID int64, title, question, answer string, sources []models.Citation) (int64, error)
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error)
	PurgeByDocument(ctx context.Context, documentID string) (int, error)
	PurgeByEntity(ctx context.Context, key, value string) (int, error)
}

// Registry tracks indexed documents and their heavy chunk metadata.
type Registry interface {
	MarkDeleted(ctx context.Context, id string) (bool, error)
	GetByFilePath(ctx context.Context, path string) (*models.TrackedDocument, error)
	DeleteChunkDetails(ctx context.Context, documentID string) (int, error)
	DeleteChunkDetailsByIDs(ctx context.Context, chunkIDs []string) (int, error)
	ClearChunkDetails(ctx context.Context, sourceType string) (int, error)
	ListDocuments(ctx context.Context, status models.DocumentStatus, sourceType string, limit int) ([]*models.TrackedDocument, error)
}

// Index removes chunks from the search indexes. Each call reports what was
// removed; removing nothing is not an error.
type Index interface {
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	DeleteByFilePath(ctx context.Context, path string) (int, error)
	DeleteBySender(ctx context.Context, sender string) ([]string, error)
	DeleteByFilter(ctx context.Context, filter map[string]string) (int, error)
}

// Auditor records operations without their content.
type Auditor interface {
	Log(ctx context.Context, entry storage.AuditEntry) (int64, error)
	LogDelete(ctx context.Context, documentID, reason string, chunks int) (int64, error)
	LogQuery(ctx context.Context, resultCount int, mode string, filters []string) (int64, error)
	DeletionReport(ctx context.Context, start, end time.Time) (*storage.DeletionReport, error)
}

// DefaultTimeout bounds each call to a collaborator.
const DefaultTimeout = 120 * time.Second
