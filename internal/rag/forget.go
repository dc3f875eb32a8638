package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
)

// Deletion reasons.
const (
	ReasonUserRequest = "user_request"
	ReasonFileRemoved = "file_removed"
)

// ForgetService removes documents, senders and whole source types from every
// store. Steps run in order and are not rolled back: a failure leaves the
// earlier steps applied and is reported in the result.
type ForgetService struct {
	index    Index
	history  History
	registry Registry
	audit    Auditor
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// ForgetOption configures a ForgetService.
type ForgetOption func(*ForgetService)

// WithForgetTimeout bounds each step.
func WithForgetTimeout(d time.Duration) ForgetOption {
	return func(f *ForgetService) { f.timeout = d }
}

// WithForgetClock sets the clock used for report windows.
func WithForgetClock(now func() time.Time) ForgetOption {
	return func(f *ForgetService) {
		if now != nil {
			f.now = now
		}
	}
}

// WithForgetLogger sets the logger.
func WithForgetLogger(l *zap.Logger) ForgetOption {
	return func(f *ForgetService) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewForgetService creates a ForgetService.
func NewForgetService(index Index, history History, registry Registry, audit Auditor, opts ...ForgetOption) *ForgetService {
	f := &ForgetService{
		index:    index,
		history:  history,
		registry: registry,
		audit:    audit,
		timeout:  DefaultTimeout,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ValidateReason checks a caller-supplied deletion reason against what the
// audit log accepts. Control characters are rejected too.
func ValidateReason(reason string) error {
	if err := storage.ValidateDetails(map[string]interface{}{"reason": reason}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReason, err)
	}
	if strings.IndexFunc(reason, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: control characters are not allowed", ErrInvalidReason)
	}
	return nil
}

func orDefaultReason(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return ReasonUserRequest
	}
	return reason
}

func (f *ForgetService) fail(res *models.ForgetResult, err error) *models.ForgetResult {
	res.Success = false
	res.Error = err.Error()
	f.logger.Error("forget failed",
		zap.String("entity_type", res.EntityType),
		zap.String("document_id", res.DocumentID),
		zap.Int("vectors_deleted", res.VectorsDeleted),
		zap.Int("chat_references_removed", res.ChatReferencesRemoved),
		zap.Error(err))
	return res
}

func (f *ForgetService) done(res *models.ForgetResult) *models.ForgetResult {
	res.Success = true
	f.logger.Info("forgot data",
		zap.String("entity_type", res.EntityType),
		zap.String("document_id", res.DocumentID),
		zap.Int("vectors_deleted", res.VectorsDeleted),
		zap.Int("chat_references_removed", res.ChatReferencesRemoved),
		zap.Bool("registry_updated", res.RegistryUpdated),
		zap.Int64("audit_id", res.AuditID))
	return res
}

// ForgetDocument removes one document from the indexes, scrubs it from chat
// history, marks it deleted with its chunk details removed, and audits the
// deletion. An unknown id succeeds with zero counts.
func (f *ForgetService) ForgetDocument(ctx context.Context, documentID, reason string) *models.ForgetResult {
	res := &models.ForgetResult{DocumentID: documentID, EntityType: string(storage.EntityDocument)}
	if strings.TrimSpace(documentID) == "" {
		return f.fail(res, errors.New("document id is required"))
	}
	if err := ValidateReason(reason); err != nil {
		return f.fail(res, err)
	}
	reason = orDefaultReason(reason)

	n, err := call(ctx, f.timeout, "index", func(ctx context.Context) (int, error) {
		return f.index.DeleteDocument(ctx, documentID)
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.VectorsDeleted = n

	n, err = call(ctx, f.timeout, "history", func(ctx context.Context) (int, error) {
		return f.history.PurgeByDocument(ctx, documentID)
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.ChatReferencesRemoved = n

	updated, err := call(ctx, f.timeout, "registry", func(ctx context.Context) (bool, error) {
		return f.registry.MarkDeleted(ctx, documentID)
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.RegistryUpdated = updated
	if _, err := call(ctx, f.timeout, "registry", func(ctx context.Context) (int, error) {
		return f.registry.DeleteChunkDetails(ctx, documentID)
	}); err != nil {
		return f.fail(res, err)
	}

	id, err := call(ctx, f.timeout, "audit", func(ctx context.Context) (int64, error) {
		return f.audit.LogDelete(ctx, documentID, reason, res.VectorsDeleted)
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.AuditID = id
	return f.done(res)
}

// ForgetByFilePath forgets the document registered for path. A path the
// registry does not know is still removed from the indexes.
func (f *ForgetService) ForgetByFilePath(ctx context.Context, path, reason string) *models.ForgetResult {
	res := &models.ForgetResult{EntityType: "file_path", EntityValue: path}
	if strings.TrimSpace(path) == "" {
		return f.fail(res, errors.New("file path is required"))
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
		res.EntityValue = abs
	}
	if err := ValidateReason(reason); err != nil {
		return f.fail(res, err)
	}
	reason = orDefaultReason(reason)

	doc, err := call(ctx, f.timeout, "registry", func(ctx context.Context) (*models.TrackedDocument, error) {
		return f.registry.GetByFilePath(ctx, path)
	})
	switch {
	case err == nil && doc != nil:
		out := f.ForgetDocument(ctx, doc.ID, reason)
		out.EntityValue = path
		return out
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return f.fail(res, err)
	}

	n, err := call(ctx, f.timeout, "index", func(ctx context.Context) (int, error) {
		return f.index.DeleteByFilePath(ctx, path)
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.VectorsDeleted = n

	id, err := call(ctx, f.timeout, "audit", func(ctx context.Context) (int64, error) {
		return f.audit.Log(ctx, storage.AuditEntry{
			Operation:  storage.OpDelete,
			EntityType: storage.EntityDocument,
			Details: map[string]interface{}{
				"reason":         reason,
				"chunks_deleted": n,
				"file_name":      filepath.Base(path),
				"registered":     false,
			},
		})
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.AuditID = id
	return f.done(res)
}

// ForgetSender removes every chunk sent by sender with its chunk details and
// scrubs chat history sources attributed to them.
func (f *ForgetService) ForgetSender(ctx context.Context, sender, reason string) *models.ForgetResult {
	res := &models.ForgetResult{EntityType: string(storage.EntitySender), EntityValue: sender}
	if strings.TrimSpace(sender) == "" {
		return f.fail(res, errors.New("sender is required"))
	}
	if err := ValidateReason(reason); err != nil {
		return f.fail(res, err)
	}
	reason = orDefaultReason(reason)

	ids, err := call(ctx, f.timeout, "index", func(ctx context.Context) ([]string, error) {
		return f.index.DeleteBySender(ctx, sender)
	})
	res.VectorsDeleted = len(ids)
	if err != nil {
		return f.fail(res, err)
	}

	n, err := call(ctx, f.timeout, "history", func(ctx context.Context) (int, error) {
		return f.history.PurgeByEntity(ctx, "sender", sender)
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.ChatReferencesRemoved = n

	n, err = call(ctx, f.timeout, "registry", func(ctx context.Context) (int, error) {
		return f.registry.DeleteChunkDetailsByIDs(ctx, ids)
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.RegistryUpdated = n > 0

	return f.auditEntity(ctx, res, storage.EntitySender, sender, reason)
}

// ForgetBySourceType removes every chunk of one source type, scrubs chat
// history and clears the type's chunk details.
func (f *ForgetService) ForgetBySourceType(ctx context.Context, sourceType, reason string) *models.ForgetResult {
	res := &models.ForgetResult{EntityType: string(storage.EntitySourceType), EntityValue: sourceType}
	if strings.TrimSpace(sourceType) == "" {
		return f.fail(res, errors.New("source type is required"))
	}
	if err := ValidateReason(reason); err != nil {
		return f.fail(res, err)
	}
	reason = orDefaultReason(reason)

	n, err := call(ctx, f.timeout, "index", func(ctx context.Context) (int, error) {
		return f.index.DeleteByFilter(ctx, map[string]string{"source_type": sourceType})
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.VectorsDeleted = n

	n, err = call(ctx, f.timeout, "history", func(ctx context.Context) (int, error) {
		return f.history.PurgeByEntity(ctx, "source_type", sourceType)
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.ChatReferencesRemoved = n

	cleared, err := call(ctx, f.timeout, "registry", func(ctx context.Context) (int, error) {
		return f.registry.ClearChunkDetails(ctx, sourceType)
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.RegistryUpdated = cleared > 0

	return f.auditEntity(ctx, res, storage.EntitySourceType, sourceType, reason)
}

func (f *ForgetService) auditEntity(ctx context.Context, res *models.ForgetResult, entity storage.EntityType, value, reason string) *models.ForgetResult {
	id, err := call(ctx, f.timeout, "audit", func(ctx context.Context) (int64, error) {
		return f.audit.Log(ctx, storage.AuditEntry{
			Operation:  storage.OpDelete,
			EntityType: entity,
			EntityID:   value,
			Details: map[string]interface{}{
				"reason":                  reason,
				"chunks_deleted":          res.VectorsDeleted,
				"chat_references_removed": res.ChatReferencesRemoved,
			},
		})
	})
	if err != nil {
		return f.fail(res, err)
	}
	res.AuditID = id
	return f.done(res)
}

// DeletionReport summarizes deletions over the last days days.
func (f *ForgetService) DeletionReport(ctx context.Context, days int) (*storage.DeletionReport, error) {
	if days <= 0 {
		days = 30
	}
	end := f.now()
	start := end.AddDate(0, 0, -days)
	return call(ctx, f.timeout, "audit", func(ctx context.Context) (*storage.DeletionReport, error) {
		return f.audit.DeletionReport(ctx, start, end)
	})
}

// ListDeletable returns active documents, optionally of one source type.
func (f *ForgetService) ListDeletable(ctx context.Context, sourceType string, limit int) ([]*models.TrackedDocument, error) {
	if limit <= 0 {
		limit = 100
	}
	return call(ctx, f.timeout, "registry", func(ctx context.Context) ([]*models.TrackedDocument, error) {
		return f.registry.ListDocuments(ctx, models.StatusActive, sourceType, limit)
	})
}
