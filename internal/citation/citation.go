// Package citation builds source citations for retrieved fragments, renders
// them into prompt context, and checks whether an answer is grounded in them.
package citation

import (
	"fmt"
	"strings"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/ranking"
	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

const (
	// FragmentLength is the number of characters of content kept in a citation.
	FragmentLength = 200
	// InlinePreviewLength is the quote length of an inline citation.
	InlinePreviewLength = 50

	unknown = "unknown"
)

// New builds a citation from a fragment's content, metadata and score.
func New(content string, md map[string]interface{}, score float64) models.Citation {
	date := models.MetaString(md, "date")
	if date == "" {
		date = models.MetaString(md, "indexed_at")
	}
	if md == nil {
		md = map[string]interface{}{}
	}
	return models.Citation{
		DocumentID: models.MetaStringOr(md, "document_id", unknown),
		SourceType: models.MetaStringOr(md, "source_type", unknown),
		Filename:   models.MetaStringOr(md, "filename", unknown),
		FilePath:   models.MetaString(md, "file_path"),
		Fragment:   utils.Truncate(content, FragmentLength),
		Date:       date,
		Score:      score,
		Metadata:   md,
	}
}

// Extract builds one citation per candidate, scored by similarity.
func Extract(candidates []models.Candidate) []models.Citation {
	out := make([]models.Citation, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, New(c.Content, c.Metadata, c.Similarity))
	}
	return out
}

// FromRanked builds one citation per ranked document, scored by weighted score.
func FromRanked(docs []ranking.RankedDocument) []models.Citation {
	out := make([]models.Citation, 0, len(docs))
	for _, d := range docs {
		out = append(out, New(d.Content, d.Metadata, d.WeightedScore))
	}
	return out
}

// shortDate returns the YYYY-MM-DD part of an ISO timestamp.
func shortDate(date string) string {
	if len(date) >= 10 {
		return date[:10]
	}
	return date
}

// FormatInline renders a citation the way answers are asked to cite:
// [Source: email, 2024-01-15, "Meeting notes..."].
func FormatInline(c models.Citation) string {
	return fmt.Sprintf(`[Source: %s, %s, "%s"]`,
		c.SourceType, shortDate(c.Date), utils.Truncate(c.Fragment, InlinePreviewLength))
}

// FormatContext renders citations as numbered prompt context.
func FormatContext(citations []models.Citation) string {
	if len(citations) == 0 {
		return "No relevant sources found."
	}
	parts := make([]string, 0, len(citations))
	for i, c := range citations {
		parts = append(parts, fmt.Sprintf("[Source %d] (%s, %s, %s):\n%s\n",
			i+1, c.SourceType, shortDate(c.Date), c.Filename, c.Fragment))
	}
	return strings.Join(parts, "\n")
}

// Sources converts citations to the legacy {content, metadata, score} shape.
func Sources(citations []models.Citation) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(citations))
	for _, c := range citations {
		out = append(out, map[string]interface{}{
			"content":  c.Fragment,
			"metadata": c.Metadata,
			"score":    c.Score,
		})
	}
	return out
}

// MatchesDocument reports whether a stored citation points at documentID.
func MatchesDocument(c models.Citation, documentID string) bool {
	return c.DocumentID == documentID || models.MetaString(c.Metadata, "document_id") == documentID
}

// MatchesEntity reports whether a stored citation carries metadata key=value.
func MatchesEntity(c models.Citation, key, value string) bool {
	if key == "source_type" && c.SourceType == value {
		return true
	}
	return models.MetaString(c.Metadata, key) == value
}
