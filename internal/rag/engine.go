package rag

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/citation"
	"github.com/flatplanetpl/poc-digital-twin/internal/explain"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/query"
	"github.com/flatplanetpl/poc-digital-twin/internal/ranking"
	"github.com/flatplanetpl/poc-digital-twin/internal/search"
	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

// historyTurns is how many previous messages are sent with a follow-up question.
const historyTurns = 4

const conversationTitleLength = 60

// QueryRequest is one question to answer.
type QueryRequest struct {
	Question string `json:"question"`
	// ConversationID continues an existing conversation; zero starts a new one.
	ConversationID int64 `json:"conversation_id,omitempty"`
	TopK           int   `json:"top_k,omitempty"`
	Explain        bool  `json:"explain,omitempty"`
	// UsePriority overrides the configured priority ranking switch.
	UsePriority *bool `json:"use_priority,omitempty"`
	// Filters win over filters extracted from the question.
	Filters search.Filters `json:"-"`
}

// SearchResult is retrieval without generation.
type SearchResult struct {
	Query           models.PreprocessedQuery `json:"query"`
	Documents       []ranking.RankedDocument `json:"documents"`
	Citations       []models.Citation        `json:"citations"`
	Filters         map[string]string        `json:"filters_applied,omitempty"`
	PriorityRanking bool                     `json:"priority_ranking"`
}

// Engine answers questions from retrieved context.
type Engine struct {
	searcher       Searcher
	llm            Completer
	ranker         *ranking.Ranker
	history        History
	audit          Auditor
	preprocessor   *query.Preprocessor
	explainer      *explain.Builder
	embeddingModel string
	topK           int
	maxTopK        int
	timeout        time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHistory persists each answered question and uses recent turns as context.
func WithHistory(h History) EngineOption {
	return func(e *Engine) { e.history = h }
}

// WithAuditor records query counts and filter names.
func WithAuditor(a Auditor) EngineOption {
	return func(e *Engine) { e.audit = a }
}

// WithPreprocessor replaces the default query preprocessor.
func WithPreprocessor(p *query.Preprocessor) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.preprocessor = p
		}
	}
}

// WithExplainer replaces the default explanation builder.
func WithExplainer(b *explain.Builder) EngineOption {
	return func(e *Engine) {
		if b != nil {
			e.explainer = b
		}
	}
}

// WithEmbeddingModel names the embedding model in explanations.
func WithEmbeddingModel(name string) EngineOption {
	return func(e *Engine) { e.embeddingModel = name }
}

// WithTopK sets the default and maximum number of fragments per answer.
func WithTopK(def, max int) EngineOption {
	return func(e *Engine) {
		if def > 0 {
			e.topK = def
		}
		if max > 0 {
			e.maxTopK = max
		}
	}
}

// WithTimeout bounds each collaborator call.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithClock sets the clock used for timings.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(searcher Searcher, llm Completer, ranker *ranking.Ranker, opts ...EngineOption) *Engine {
	e := &Engine{
		searcher:     searcher,
		llm:          llm,
		ranker:       ranker,
		preprocessor: query.NewPreprocessor(),
		explainer:    explain.NewBuilder(explain.DefaultMaxContextTokens),
		topK:         5,
		maxTopK:      50,
		timeout:      DefaultTimeout,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Provider returns the completion provider and model names.
func (e *Engine) Provider() (name, model string) {
	if e.llm == nil {
		return "", ""
	}
	return e.llm.Name(), e.llm.Model()
}

// retrieval is everything known once fragments have been ranked.
type retrieval struct {
	started     time.Time
	query       models.PreprocessedQuery
	filters     search.Filters
	applied     map[string]string
	topK        int
	usePriority bool
	docs        []ranking.RankedDocument
	citations   []models.Citation
	overflow    int
	elapsed     time.Duration
}

func (e *Engine) resolveTopK(k int) int {
	if k <= 0 {
		k = e.topK
	}
	if e.maxTopK > 0 && k > e.maxTopK {
		k = e.maxTopK
	}
	return k
}

// mergeFilters combines explicit filters with those extracted from the question.
func mergeFilters(explicit search.Filters, pq models.PreprocessedQuery) search.Filters {
	f := explicit
	if f.SourceType == "" && pq.SourceFilter != nil {
		f.SourceType = *pq.SourceFilter
	}
	if f.Sender == "" && pq.PersonFilter != nil {
		f.Sender = *pq.PersonFilter
	}
	return f
}

// filterByDate keeps candidates whose date falls in r. Undated candidates are kept.
func filterByDate(candidates []models.Candidate, r *models.DateRange) []models.Candidate {
	if r == nil {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		t, ok := ranking.ParseDate(models.MetaString(c.Metadata, "date"))
		if ok && !r.Contains(t) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (e *Engine) retrieve(ctx context.Context, question string, topK int, usePriority *bool, explicit search.Filters) (*retrieval, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	r := &retrieval{started: e.now(), topK: e.resolveTopK(topK)}

	r.query = e.preprocessor.Process(question)
	text := r.query.CleanQuery
	if text == "" {
		text = question
	}
	r.filters = mergeFilters(explicit, r.query)
	r.applied = r.filters.Labels()
	if r.query.DateRange != nil {
		r.applied["date_range"] = r.query.DateRange.String()
	}

	r.usePriority = e.ranker.Enabled()
	if usePriority != nil {
		r.usePriority = *usePriority
	}
	fetchK := e.ranker.FetchK(r.topK, r.usePriority)

	candidates, err := call(ctx, e.timeout, "search", func(ctx context.Context) ([]models.Candidate, error) {
		return e.searcher.Search(ctx, text, fetchK, r.filters)
	})
	if err != nil {
		return nil, err
	}
	candidates = filterByDate(candidates, r.query.DateRange)

	if r.usePriority {
		r.docs = e.ranker.RankAndTruncate(candidates, r.topK)
	} else {
		r.docs = e.ranker.Passthrough(candidates, r.topK)
	}
	r.overflow = len(candidates) - len(r.docs)
	r.citations = citation.FromRanked(r.docs)
	r.elapsed = e.now().Sub(r.started)

	e.logger.Debug("retrieved context",
		zap.Int("fetch_k", fetchK),
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(r.docs)),
		zap.Bool("priority", r.usePriority),
		zap.Int("filters", len(r.applied)),
		zap.Duration("elapsed", r.elapsed))
	return r, nil
}

func (e *Engine) prompt(ctx context.Context, req QueryRequest, r *retrieval) (string, error) {
	question := req.Question
	if e.history != nil && req.ConversationID != 0 {
		recent, err := call(ctx, e.timeout, "history", func(ctx context.Context) ([]models.Message, error) {
			return e.history.RecentMessages(ctx, req.ConversationID, historyTurns)
		})
		if err != nil {
			return "", err
		}
		question = citation.WithHistory(question, recent)
	}
	return citation.BuildPrompt(citation.FormatContext(r.citations), question), nil
}

// Search retrieves and ranks fragments for question without generating an answer.
func (e *Engine) Search(ctx context.Context, question string, topK int, filters search.Filters) (*SearchResult, error) {
	r, err := e.retrieve(ctx, question, topK, nil, filters)
	if err != nil {
		return nil, err
	}
	e.logQuery(ctx, "search", len(r.docs), r.applied)
	return &SearchResult{
		Query:           r.query,
		Documents:       r.docs,
		Citations:       r.citations,
		Filters:         r.applied,
		PriorityRanking: r.usePriority,
	}, nil
}

// Query answers req from retrieved context. Nothing is persisted unless an
// answer was produced.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (*models.GroundedResponse, error) {
	r, err := e.retrieve(ctx, req.Question, req.TopK, req.UsePriority, req.Filters)
	if err != nil {
		return nil, err
	}
	prompt, err := e.prompt(ctx, req, r)
	if err != nil {
		return nil, err
	}

	genStart := e.now()
	answer, err := call(ctx, e.timeout, "llm", func(ctx context.Context) (string, error) {
		return e.llm.Complete(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	return e.finish(ctx, req, r, answer, e.now().Sub(genStart))
}

// Stream answers req like Query, passing each generated chunk to fn as it arrives.
func (e *Engine) Stream(ctx context.Context, req QueryRequest, fn func(chunk string) error) (*models.GroundedResponse, error) {
	r, err := e.retrieve(ctx, req.Question, req.TopK, req.UsePriority, req.Filters)
	if err != nil {
		return nil, err
	}
	prompt, err := e.prompt(ctx, req, r)
	if err != nil {
		return nil, err
	}

	genStart := e.now()
	var answer strings.Builder
	_, err = call(ctx, e.timeout, "llm", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.llm.Stream(ctx, prompt, func(chunk string) error {
			answer.WriteString(chunk)
			return fn(chunk)
		})
	})
	if err != nil {
		return nil, err
	}
	return e.finish(ctx, req, r, strings.TrimSpace(answer.String()), e.now().Sub(genStart))
}

func (e *Engine) finish(ctx context.Context, req QueryRequest, r *retrieval, answer string, genTime time.Duration) (*models.GroundedResponse, error) {
	grounded, noContext := citation.Validate(answer, r.citations)
	resp := &models.GroundedResponse{
		Answer:         answer,
		Citations:      r.citations,
		IsGrounded:     grounded,
		NoContextFound: noContext,
		ConversationID: req.ConversationID,
		Filters:        r.applied,
	}
	if resp.Citations == nil {
		resp.Citations = []models.Citation{}
	}

	if req.Explain {
		name, model := e.Provider()
		resp.Explanation = e.explainer.Build(explain.Input{
			Query:           req.Question,
			EmbeddingModel:  e.embeddingModel,
			TopK:            r.topK,
			PriorityRanking: r.usePriority,
			Documents:       r.docs,
			Filters:         r.applied,
			LLMProvider:     name,
			LLMModel:        model,
			RetrievalTime:   r.elapsed,
			GenerationTime:  genTime,
			TotalTime:       e.now().Sub(r.started),
			Overflow:        r.overflow,
		})
	}

	if e.history != nil {
		id, err := e.persist(ctx, req, answer, r.citations)
		if err != nil {
			return nil, err
		}
		resp.ConversationID = id
	}

	resp.QueryTimeMS = e.now().Sub(r.started).Milliseconds()
	e.logQuery(ctx, "query", len(r.citations), r.applied)
	e.logger.Info("answered question",
		zap.Int64("conversation_id", resp.ConversationID),
		zap.Int("citations", len(r.citations)),
		zap.Bool("grounded", grounded),
		zap.Bool("no_context", noContext),
		zap.Int64("query_time_ms", resp.QueryTimeMS))
	return resp, nil
}

func (e *Engine) persist(ctx context.Context, req QueryRequest, answer string, sources []models.Citation) (int64, error) {
	title := utils.Truncate(strings.TrimSpace(req.Question), conversationTitleLength)
	return call(ctx, e.timeout, "history", func(ctx context.Context) (int64, error) {
		return e.history.AddExchange(ctx, req.ConversationID, title, req.Question, answer, sources)
	})
}

// logQuery records the result count and the names of the filters used.
func (e *Engine) logQuery(ctx context.Context, mode string, results int, applied map[string]string) {
	if e.audit == nil {
		return
	}
	names := make([]string, 0, len(applied))
	for k := range applied {
		names = append(names, k)
	}
	sort.Strings(names)
	if _, err := e.audit.LogQuery(ctx, results, mode, names); err != nil {
		e.logger.Warn("failed to audit query", zap.Error(err))
	}
}
