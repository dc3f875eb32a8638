// Package ranking scores retrieved fragments by document authority and blends
// that score with semantic similarity to produce the retrieval order.
package ranking

import (
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// Category is a document classification used by the priority model.
type Category string

const (
	CategoryProfile       Category = "profile"
	CategoryDecision      Category = "decision"
	CategoryNote          Category = "note"
	CategoryEmail         Category = "email"
	CategoryContact       Category = "contact"
	CategoryConversation  Category = "conversation"
	CategoryInterests     Category = "interests"
	CategoryLocation      Category = "location"
	CategorySearchHistory Category = "search_history"
)

// Approval is the trust level a human assigned to a document.
type Approval string

const (
	ApprovalPinned    Approval = "pinned"
	ApprovalApproved  Approval = "approved"
	ApprovalAutomatic Approval = "automatic"
)

// PriorityInput is everything the priority model reads about a document.
type PriorityInput struct {
	Category   string
	IsPinned   bool
	IsApproved bool
	// Date is an ISO-8601 timestamp; empty means unknown.
	Date string
}

// Priority is the authority score of a document and its breakdown.
type Priority struct {
	TypeWeight     int     `json:"type_weight"`
	ApprovalWeight int     `json:"approval_weight"`
	RecencyWeight  float64 `json:"recency_weight"`

	TypeContribution     float64 `json:"type_contribution"`
	ApprovalContribution float64 `json:"approval_contribution"`
	RecencyContribution  float64 `json:"recency_contribution"`

	// Score is not clamped: a pinned, recent profile document exceeds 1.0.
	Score float64 `json:"priority_score"`
}

// RankedDocument is a candidate with its priority and blended score.
type RankedDocument struct {
	ID            string                 `json:"id,omitempty"`
	Content       string                 `json:"content"`
	Metadata      map[string]interface{} `json:"metadata"`
	Similarity    float64                `json:"similarity_score"`
	Priority      Priority               `json:"priority"`
	WeightedScore float64                `json:"weighted_score"`
}

// Candidate converts the ranked document back to the retrieval shape.
func (d RankedDocument) Candidate() models.Candidate {
	return models.Candidate{ID: d.ID, Content: d.Content, Metadata: d.Metadata, Similarity: d.Similarity}
}

// Clock returns the current instant. Injected so recency is testable.
type Clock func() time.Time
