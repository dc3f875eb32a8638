package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/search"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
)

// calls records collaborator calls in order across fakes.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, name)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type fakeSearcher struct {
	results []models.Candidate
	err     error
	block   bool

	gotQuery   string
	gotK       int
	gotFilters search.Filters
	n          int
}

func (s *fakeSearcher) Search(ctx context.Context, q string, k int, f search.Filters) ([]models.Candidate, error) {
	s.n++
	s.gotQuery, s.gotK, s.gotFilters = q, k, f
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Candidate, len(s.results))
	copy(out, s.results)
	return out, nil
}

type fakeLLM struct {
	answer  string
	chunks  []string
	err     error
	block   bool
	prompts []string
}

func (l *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	l.prompts = append(l.prompts, prompt)
	if l.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return l.answer, l.err
}

func (l *fakeLLM) Stream(ctx context.Context, prompt string, fn func(string) error) error {
	l.prompts = append(l.prompts, prompt)
	if l.err != nil {
		return l.err
	}
	for _, c := range l.chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (l *fakeLLM) Name() string  { return "fake" }
func (l *fakeLLM) Model() string { return "fake-1" }

type savedMessage struct {
	conversationID int64
	role           models.Role
	content        string
	sources        []models.Citation
}

type fakeHistory struct {
	calls       *calls
	nextID      int64
	titles      []string
	messages    []savedMessage
	recent      []models.Message
	recentLimit int
	err         error
	answerErr   error
	purged      int
	purgeKey    string
	purgeValue  string
}

// AddExchange stores nothing when err or answerErr is set, like a rolled
// back transaction.
func (h *fakeHistory) AddExchange(_ context.Context, id int64, title, question, answer string, sources []models.Citation) (int64, error) {
	if h.err != nil {
		return 0, h.err
	}
	if h.answerErr != nil {
		return 0, h.answerErr
	}
	if id == 0 {
		h.nextID++
		id = h.nextID
		h.titles = append(h.titles, title)
	}
	h.messages = append(h.messages,
		savedMessage{id, models.RoleUser, question, nil},
		savedMessage{id, models.RoleAssistant, answer, sources})
	return id, nil
}

func (h *fakeHistory) RecentMessages(_ context.Context, _ int64, limit int) ([]models.Message, error) {
	h.recentLimit = limit
	return h.recent, nil
}

func (h *fakeHistory) PurgeByDocument(_ context.Context, _ string) (int, error) {
	h.calls.add("history.PurgeByDocument")
	return h.purged, h.err
}

func (h *fakeHistory) PurgeByEntity(_ context.Context, key, value string) (int, error) {
	h.calls.add("history.PurgeByEntity")
	h.purgeKey, h.purgeValue = key, value
	return h.purged, h.err
}

type fakeRegistry struct {
	calls      *calls
	byPath     map[string]*models.TrackedDocument
	pathErr    error
	marked     bool
	err        error
	listStatus models.DocumentStatus
	listSource string
	listLimit  int
	cleared    string
	detailIDs  []string
}

func (r *fakeRegistry) MarkDeleted(_ context.Context, _ string) (bool, error) {
	r.calls.add("registry.MarkDeleted")
	return r.marked, r.err
}

func (r *fakeRegistry) GetByFilePath(_ context.Context, path string) (*models.TrackedDocument, error) {
	r.calls.add("registry.GetByFilePath")
	if r.pathErr != nil {
		return nil, r.pathErr
	}
	if d, ok := r.byPath[path]; ok {
		return d, nil
	}
	return nil, storage.ErrNotFound
}

func (r *fakeRegistry) DeleteChunkDetails(_ context.Context, _ string) (int, error) {
	r.calls.add("registry.DeleteChunkDetails")
	return 2, r.err
}

func (r *fakeRegistry) DeleteChunkDetailsByIDs(_ context.Context, ids []string) (int, error) {
	r.calls.add("registry.DeleteChunkDetailsByIDs")
	r.detailIDs = ids
	return len(ids), r.err
}

func (r *fakeRegistry) ClearChunkDetails(_ context.Context, sourceType string) (int, error) {
	r.calls.add("registry.ClearChunkDetails")
	r.cleared = sourceType
	return 3, r.err
}

func (r *fakeRegistry) ListDocuments(_ context.Context, status models.DocumentStatus, sourceType string, limit int) ([]*models.TrackedDocument, error) {
	r.listStatus, r.listSource, r.listLimit = status, sourceType, limit
	return []*models.TrackedDocument{{ID: "d1", SourceType: sourceType}}, nil
}

type fakeIndex struct {
	calls     *calls
	deleted   int
	err       error
	gotFilter map[string]string
	gotArg    string
}

func (i *fakeIndex) DeleteDocument(_ context.Context, id string) (int, error) {
	i.calls.add("index.DeleteDocument")
	i.gotArg = id
	return i.deleted, i.err
}

func (i *fakeIndex) DeleteByFilePath(_ context.Context, path string) (int, error) {
	i.calls.add("index.DeleteByFilePath")
	i.gotArg = path
	return i.deleted, i.err
}

func (i *fakeIndex) DeleteBySender(_ context.Context, sender string) ([]string, error) {
	i.calls.add("index.DeleteBySender")
	i.gotArg = sender
	ids := make([]string, i.deleted)
	for n := range ids {
		ids[n] = fmt.Sprintf("%s_%d", sender, n)
	}
	return ids, i.err
}

func (i *fakeIndex) DeleteByFilter(_ context.Context, filter map[string]string) (int, error) {
	i.calls.add("index.DeleteByFilter")
	i.gotFilter = filter
	return i.deleted, i.err
}

type fakeAuditor struct {
	calls       *calls
	entries     []storage.AuditEntry
	queries     []string
	queryCounts []int
	err         error
	start, end  time.Time
}

func (a *fakeAuditor) Log(_ context.Context, e storage.AuditEntry) (int64, error) {
	a.calls.add("audit.Log")
	if a.err != nil {
		return 0, a.err
	}
	if err := storage.ValidateDetails(e.Details); err != nil {
		return 0, err
	}
	a.entries = append(a.entries, e)
	return int64(len(a.entries)), nil
}

func (a *fakeAuditor) LogDelete(ctx context.Context, id, reason string, chunks int) (int64, error) {
	a.calls.add("audit.LogDelete")
	if a.err != nil {
		return 0, a.err
	}
	a.entries = append(a.entries, storage.AuditEntry{
		Operation:  storage.OpDelete,
		EntityType: storage.EntityDocument,
		EntityID:   id,
		Details:    map[string]interface{}{"reason": reason, "chunks_deleted": chunks},
	})
	return int64(len(a.entries)), nil
}

func (a *fakeAuditor) LogQuery(_ context.Context, n int, mode string, filters []string) (int64, error) {
	a.queries = append(a.queries, mode)
	a.queryCounts = append(a.queryCounts, n)
	return 1, nil
}

func (a *fakeAuditor) DeletionReport(_ context.Context, start, end time.Time) (*storage.DeletionReport, error) {
	a.start, a.end = start, end
	return &storage.DeletionReport{PeriodStart: start, PeriodEnd: end, ByReason: map[string]int{}}, nil
}
