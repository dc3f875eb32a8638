// Package explain reports how a grounded answer was produced: which fragments
// were retrieved, why they ranked where they did, and how much of the context
// window they used.
package explain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/ranking"
	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

const (
	// DefaultMaxContextTokens is the context budget assumed when none is configured.
	DefaultMaxContextTokens = 4000

	// RetrievalModeSimilarity orders fragments by vector similarity only.
	RetrievalModeSimilarity = "similarity"
	// RetrievalModePriorityWeighted blends similarity with document priority.
	RetrievalModePriorityWeighted = "priority_weighted"
	// ResponseModeCompact packs all fragments into a single prompt.
	ResponseModeCompact = "compact"

	truncatedFragmentRunes = 500
	jsonFragmentRunes      = 100
	jsonQueryRunes         = 50
	charsPerToken          = 4
	unknown                = "unknown"
)

// RetrievalExplanation is the scoring breakdown of one selected fragment.
type RetrievalExplanation struct {
	DocumentID           string   `json:"document_id"`
	Filename             string   `json:"filename"`
	SourceType           string   `json:"source_type"`
	SimilarityScore      float64  `json:"similarity_score"`
	PriorityScore        float64  `json:"priority_score"`
	FinalScore           float64  `json:"final_score"`
	TypeContribution     float64  `json:"type_contribution"`
	RecencyContribution  float64  `json:"recency_contribution"`
	ApprovalContribution float64  `json:"approval_contribution"`
	Rank                 int      `json:"rank"`
	PassedFilters        []string `json:"passed_filters"`
}

// ContextFragment is a piece of text that entered the prompt context.
type ContextFragment struct {
	Text       string
	SourceID   string
	SourceType string
	TokenCount int
	Truncated  bool
}

// MarshalJSON shortens the fragment text to a preview.
func (f ContextFragment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Text       string `json:"text"`
		SourceID   string `json:"source_id"`
		SourceType string `json:"source_type"`
		TokenCount int    `json:"token_count"`
		Truncated  bool   `json:"truncated"`
	}{
		Text:       utils.Truncate(f.Text, jsonFragmentRunes),
		SourceID:   f.SourceID,
		SourceType: f.SourceType,
		TokenCount: f.TokenCount,
		Truncated:  f.Truncated,
	})
}

// ContextWindowExplanation describes what fit into the LLM context window.
type ContextWindowExplanation struct {
	TotalTokens       int               `json:"total_tokens"`
	MaxTokens         int               `json:"max_tokens"`
	Utilization       float64           `json:"utilization"`
	FragmentCount     int               `json:"fragment_count"`
	Fragments         []ContextFragment `json:"fragments"`
	OverflowDocuments int               `json:"overflow_documents"`
	OverflowTokens    int               `json:"overflow_tokens"`
}

// RAGExplanation is the full account of one query.
type RAGExplanation struct {
	QueryText        string
	EmbeddingModel   string
	RetrievalMode    string
	TopK             int
	Documents        []RetrievalExplanation
	ContextWindow    *ContextWindowExplanation
	ResponseMode     string
	LLMProvider      string
	LLMModel         string
	RetrievalTimeMS  float64
	GenerationTimeMS float64
	TotalTimeMS      float64
	FiltersApplied   map[string]string
	Timestamp        time.Time
}

type timingJSON struct {
	RetrievalMS  float64 `json:"retrieval_ms"`
	GenerationMS float64 `json:"generation_ms"`
	TotalMS      float64 `json:"total_ms"`
}

// MarshalJSON shortens the query text and groups timings.
func (e RAGExplanation) MarshalJSON() ([]byte, error) {
	docs := e.Documents
	if docs == nil {
		docs = []RetrievalExplanation{}
	}
	filters := e.FiltersApplied
	if filters == nil {
		filters = map[string]string{}
	}
	return json.Marshal(struct {
		QueryText      string                    `json:"query_text"`
		EmbeddingModel string                    `json:"query_embedding_model"`
		RetrievalMode  string                    `json:"retrieval_mode"`
		TopK           int                       `json:"retrieval_top_k"`
		Documents      []RetrievalExplanation    `json:"documents_retrieved"`
		ContextWindow  *ContextWindowExplanation `json:"context_window"`
		ResponseMode   string                    `json:"response_mode"`
		LLMProvider    string                    `json:"llm_provider"`
		LLMModel       string                    `json:"llm_model"`
		Timing         timingJSON                `json:"timing"`
		FiltersApplied map[string]string         `json:"filters_applied"`
		Timestamp      string                    `json:"timestamp"`
	}{
		QueryText:      utils.Truncate(e.QueryText, jsonQueryRunes),
		EmbeddingModel: e.EmbeddingModel,
		RetrievalMode:  e.RetrievalMode,
		TopK:           e.TopK,
		Documents:      docs,
		ContextWindow:  e.ContextWindow,
		ResponseMode:   e.ResponseMode,
		LLMProvider:    e.LLMProvider,
		LLMModel:       e.LLMModel,
		Timing: timingJSON{
			RetrievalMS:  e.RetrievalTimeMS,
			GenerationMS: e.GenerationTimeMS,
			TotalMS:      e.TotalTimeMS,
		},
		FiltersApplied: filters,
		Timestamp:      e.Timestamp.Format(time.RFC3339),
	})
}

// scoreDecimals is the precision of scores shown in explanations.
const scoreDecimals = 4

// EstimateTokens approximates the token count of text at four characters per token.
func EstimateTokens(text string) int {
	return utils.RuneLen(text) / charsPerToken
}

// NewRetrievalExplanation explains a ranked document at the given 1-based rank.
func NewRetrievalExplanation(doc ranking.RankedDocument, rank int, filters []string) RetrievalExplanation {
	if filters == nil {
		filters = []string{}
	}
	return RetrievalExplanation{
		DocumentID:           models.MetaStringOr(doc.Metadata, "document_id", unknown),
		Filename:             models.MetaStringOr(doc.Metadata, "filename", unknown),
		SourceType:           models.MetaStringOr(doc.Metadata, "source_type", unknown),
		SimilarityScore:      utils.Round(doc.Similarity, scoreDecimals),
		PriorityScore:        utils.Round(doc.Priority.Score, scoreDecimals),
		FinalScore:           utils.Round(doc.WeightedScore, scoreDecimals),
		TypeContribution:     utils.Round(doc.Priority.TypeContribution, scoreDecimals),
		RecencyContribution:  utils.Round(doc.Priority.RecencyContribution, scoreDecimals),
		ApprovalContribution: utils.Round(doc.Priority.ApprovalContribution, scoreDecimals),
		Rank:                 rank,
		PassedFilters:        filters,
	}
}

// NewContextWindow accounts the token usage of the given documents against maxTokens.
func NewContextWindow(docs []ranking.RankedDocument, maxTokens int) *ContextWindowExplanation {
	fragments := make([]ContextFragment, 0, len(docs))
	total := 0
	for _, d := range docs {
		tokens := EstimateTokens(d.Content)
		total += tokens
		fragments = append(fragments, ContextFragment{
			Text:       d.Content,
			SourceID:   models.MetaStringOr(d.Metadata, "document_id", unknown),
			SourceType: models.MetaStringOr(d.Metadata, "source_type", unknown),
			TokenCount: tokens,
			Truncated:  utils.RuneLen(d.Content) > truncatedFragmentRunes,
		})
	}

	utilization := 0.0
	if maxTokens > 0 {
		utilization = float64(total) / float64(maxTokens)
		if utilization > 1 {
			utilization = 1
		}
	}
	overflow := total - maxTokens
	if overflow < 0 {
		overflow = 0
	}

	return &ContextWindowExplanation{
		TotalTokens:    total,
		MaxTokens:      maxTokens,
		Utilization:    utils.Round(utilization, scoreDecimals),
		FragmentCount:  len(fragments),
		Fragments:      fragments,
		OverflowTokens: overflow,
	}
}

// FilterLabels renders applied filters as sorted key=value labels.
func FilterLabels(filters map[string]string) []string {
	labels := make([]string, 0, len(filters))
	for k, v := range filters {
		labels = append(labels, k+"="+v)
	}
	sort.Strings(labels)
	return labels
}

// FormatSummary renders a human-readable report of an explanation.
func FormatSummary(e *RAGExplanation) string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Query processed in %.0fms\n", e.TotalTimeMS)
	fmt.Fprintf(&b, "  Retrieval: %.0fms (%s)\n", e.RetrievalTimeMS, e.RetrievalMode)
	fmt.Fprintf(&b, "  Generation: %.0fms (%s)\n", e.GenerationTimeMS, e.LLMProvider)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Documents retrieved: %d", len(e.Documents))

	if len(e.Documents) > 0 {
		b.WriteString("\n  Top sources:")
		for i, d := range e.Documents {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "\n    %d. %s (sim: %.2f, pri: %.2f)", d.Rank, d.Filename, d.SimilarityScore, d.PriorityScore)
		}
	}

	if e.ContextWindow != nil {
		cw := e.ContextWindow
		fmt.Fprintf(&b, "\n\nContext: %d/%d tokens (%.0f%% used)", cw.TotalTokens, cw.MaxTokens, cw.Utilization*100)
		if cw.OverflowDocuments > 0 {
			fmt.Fprintf(&b, "\n  %d documents excluded (overflow)", cw.OverflowDocuments)
		}
	}
	return b.String()
}
