package ranking

import (
	"math"
	"strings"
	"time"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// typeWeights ranks document categories by authority.
var typeWeights = map[Category]int{
	CategoryProfile:       120,
	CategoryDecision:      100,
	CategoryNote:          70,
	CategoryEmail:         50,
	CategoryContact:       40,
	CategoryConversation:  30,
	CategoryInterests:     25,
	CategoryLocation:      20,
	CategorySearchHistory: 10,
}

// categoryAliases maps loader source types onto priority categories.
var categoryAliases = map[string]Category{
	"text":      CategoryNote,
	"contacts":  CategoryContact,
	"whatsapp":  CategoryConversation,
	"messenger": CategoryConversation,
}

var approvalWeights = map[Approval]int{
	ApprovalPinned:    50,
	ApprovalApproved:  30,
	ApprovalAutomatic: 0,
}

const (
	// typeScale is the decision tier weight; profile divides to 1.2.
	typeScale     = 100.0
	approvalScale = 50.0

	typeFactor     = 0.4
	approvalFactor = 0.3
	recencyFactor  = 0.3

	neutralRecency = 0.5
)

// NormalizeCategory resolves aliases and falls back to note for unknown values.
func NormalizeCategory(category string) Category {
	c := strings.ToLower(strings.TrimSpace(category))
	if alias, ok := categoryAliases[c]; ok {
		return alias
	}
	if _, ok := typeWeights[Category(c)]; ok {
		return Category(c)
	}
	return CategoryNote
}

// TypeWeight returns the table weight for a category.
func TypeWeight(category string) int {
	return typeWeights[NormalizeCategory(category)]
}

// ApprovalOf maps the pinned/approved flags to an approval level. Pinned wins.
func ApprovalOf(pinned, approved bool) Approval {
	switch {
	case pinned:
		return ApprovalPinned
	case approved:
		return ApprovalApproved
	default:
		return ApprovalAutomatic
	}
}

// RecencyWeight returns 1 - age/maxAge clamped to [0,1], with age in whole
// days. An empty date is neutral (0.5); an unparseable date is treated as now
// and a future date weighs like today.
func RecencyWeight(date string, maxAgeDays int, now time.Time) float64 {
	if strings.TrimSpace(date) == "" {
		return neutralRecency
	}
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultConfig().RecencyMaxDays
	}
	t, ok := ParseDate(date)
	if !ok {
		t = now
	}
	ageDays := math.Floor(now.Sub(t).Hours() / 24)
	return math.Min(1, math.Max(0, 1-ageDays/float64(maxAgeDays)))
}

// ParseDate parses the first 19 characters of an ISO timestamp, or a bare date.
// Timezone suffixes are ignored.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= 19 {
		if t, err := time.ParseInLocation("2006-01-02T15:04:05", s[:19], time.Local); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", s[:19], time.Local); err == nil {
			return t, true
		}
	}
	if len(s) >= 10 {
		if t, err := time.ParseInLocation("2006-01-02", s[:10], time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CalculatePriority computes the authority score of a document.
func CalculatePriority(in PriorityInput, maxAgeDays int, now time.Time) Priority {
	tw := TypeWeight(in.Category)
	aw := approvalWeights[ApprovalOf(in.IsPinned, in.IsApproved)]
	rw := RecencyWeight(in.Date, maxAgeDays, now)

	p := Priority{
		TypeWeight:           tw,
		ApprovalWeight:       aw,
		RecencyWeight:        rw,
		TypeContribution:     float64(tw) / typeScale,
		ApprovalContribution: float64(aw) / approvalScale,
		RecencyContribution:  rw,
	}
	p.Score = typeFactor*p.TypeContribution +
		approvalFactor*p.ApprovalContribution +
		recencyFactor*p.RecencyContribution
	return p
}

// InputFromMetadata reads the priority inputs from fragment metadata.
// Category comes from document_category, then source_type; date from date, then indexed_at.
func InputFromMetadata(md map[string]interface{}) PriorityInput {
	category := models.MetaString(md, "document_category")
	if category == "" {
		category = models.MetaStringOr(md, "source_type", string(CategoryNote))
	}
	date := models.MetaString(md, "date")
	if date == "" {
		date = models.MetaString(md, "indexed_at")
	}
	return PriorityInput{
		Category:   category,
		IsPinned:   models.MetaBool(md, "is_pinned"),
		IsApproved: models.MetaBool(md, "is_approved"),
		Date:       date,
	}
}

// PriorityFromMetadata is CalculatePriority over InputFromMetadata.
func PriorityFromMetadata(md map[string]interface{}, maxAgeDays int, now time.Time) Priority {
	return CalculatePriority(InputFromMetadata(md), maxAgeDays, now)
}
