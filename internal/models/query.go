package models

import (
	"fmt"
	"time"
)

// DateRange is an inclusive time interval extracted from a question.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// String renders the range as "YYYY-MM-DD to YYYY-MM-DD".
func (r DateRange) String() string {
	return fmt.Sprintf("%s to %s", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

// PreprocessedQuery is a question with its implicit filters pulled out.
// Filters are heuristic: an unset field means nothing was recognized, not that
// the question has no such constraint.
type PreprocessedQuery struct {
	OriginalQuery    string            `json:"original_query"`
	CleanQuery       string            `json:"clean_query"`
	PersonFilter     *string           `json:"person_filter,omitempty"`
	DateRange        *DateRange        `json:"date_range,omitempty"`
	SourceFilter     *string           `json:"source_filter,omitempty"`
	ExtractedFilters map[string]string `json:"extracted_filters"`
}

// HasFilters reports whether any filter was extracted.
func (q *PreprocessedQuery) HasFilters() bool {
	return q.PersonFilter != nil || q.DateRange != nil || q.SourceFilter != nil
}
