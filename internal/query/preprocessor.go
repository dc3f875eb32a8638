// Package query extracts implicit filters (person, date range, source) from
// natural-language questions. Extraction is heuristic, not authoritative: a
// miss leaves the filter unset and the question otherwise untouched.
package query

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

// Preprocessor pulls person, date and source filters out of a question.
// It holds no per-request state and is safe for concurrent use.
type Preprocessor struct {
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithClock sets the clock used to resolve relative dates.
func WithClock(now func() time.Time) Option {
	return func(p *Preprocessor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Preprocessor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPreprocessor creates a Preprocessor.
func NewPreprocessor(opts ...Option) *Preprocessor {
	p := &Preprocessor{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts filters from raw. Families run in order person, date,
// source; each consumes at most one match, which is removed from the text.
// It never fails.
func (p *Preprocessor) Process(raw string) models.PreprocessedQuery {
	result := models.PreprocessedQuery{
		OriginalQuery:    raw,
		ExtractedFilters: map[string]string{},
	}
	text := raw

	if person, rest, ok := extractPerson(text); ok {
		result.PersonFilter = &person
		result.ExtractedFilters["person"] = person
		text = rest
	}

	if dr, rest, ok := extractDateRange(text, p.now()); ok {
		result.DateRange = &dr
		result.ExtractedFilters["date_range"] = dr.String()
		text = rest
	}

	if source, rest, ok := extractSource(text); ok {
		result.SourceFilter = &source
		result.ExtractedFilters["source"] = source
		text = rest
	}

	result.CleanQuery = cleanQuery(text)
	if len(result.ExtractedFilters) > 0 {
		p.logger.Debug("extracted query filters",
			zap.Int("filters", len(result.ExtractedFilters)),
			zap.Bool("person", result.PersonFilter != nil),
			zap.Bool("date_range", result.DateRange != nil),
			zap.Bool("source", result.SourceFilter != nil))
	}
	return result
}

func extractPerson(text string) (string, string, bool) {
	for _, re := range personPatterns {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		name := text[loc[2]:loc[3]]
		if isStopName(name) {
			continue
		}
		return name, cut(text, loc[0], loc[1]), true
	}
	return "", text, false
}

// isStopName rejects function words and month names caught by the
// capitalized-name heuristic ("from December 2021" is a date, not a person).
func isStopName(name string) bool {
	lower := strings.ToLower(name)
	if personStopWords[lower] {
		return true
	}
	first := strings.Fields(lower)[0]
	_, isMonth := months[first]
	return isMonth
}

func extractDateRange(text string, now time.Time) (models.DateRange, string, bool) {
	for _, dp := range datePatterns {
		for _, loc := range dp.re.FindAllStringSubmatchIndex(text, -1) {
			groups := []string{text[loc[2]:loc[3]]}
			if len(loc) >= 6 && loc[4] >= 0 {
				groups = append(groups, text[loc[4]:loc[5]])
			}
			if dr, ok := resolveDate(dp.kind, groups, now); ok {
				return dr, cut(text, loc[0], loc[1]), true
			}
		}
	}
	return models.DateRange{}, text, false
}

func resolveDate(kind dateKind, groups []string, now time.Time) (models.DateRange, bool) {
	switch kind {
	case dateMonthYear:
		month, ok := months[strings.ToLower(groups[0])]
		year, err := strconv.Atoi(groups[1])
		if !ok || err != nil {
			return models.DateRange{}, false
		}
		return monthRange(year, month, now.Location()), true

	case dateYearMonth, dateMonthYearNum:
		a, errA := strconv.Atoi(groups[0])
		b, errB := strconv.Atoi(groups[1])
		if errA != nil || errB != nil {
			return models.DateRange{}, false
		}
		year, month := a, b
		if kind == dateMonthYearNum {
			year, month = b, a
		}
		if month < 1 || month > 12 {
			return models.DateRange{}, false
		}
		return monthRange(year, month, now.Location()), true

	case dateRelativeLast:
		switch strings.ToLower(groups[0]) {
		case "week", "tydzień", "tygodniu":
			return models.DateRange{Start: now.AddDate(0, 0, -7), End: now}, true
		case "month", "miesiąc", "miesiącu":
			return models.DateRange{Start: now.AddDate(0, 0, -30), End: now}, true
		case "year", "rok", "roku":
			return models.DateRange{Start: now.AddDate(0, 0, -365), End: now}, true
		}

	case dateRelativeThis:
		y, m, d := now.Date()
		loc := now.Location()
		switch strings.ToLower(groups[0]) {
		case "week", "tygodniu":
			offset := (int(now.Weekday()) + 6) % 7
			return models.DateRange{Start: time.Date(y, m, d-offset, 0, 0, 0, 0, loc), End: now}, true
		case "month", "miesiącu":
			return models.DateRange{Start: time.Date(y, m, 1, 0, 0, 0, 0, loc), End: now}, true
		case "year", "roku":
			return models.DateRange{Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc), End: now}, true
		}
	}
	return models.DateRange{}, false
}

// monthRange spans the first second to the last second of a calendar month.
func monthRange(year, month int, loc *time.Location) models.DateRange {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return models.DateRange{Start: start, End: end}
}

func extractSource(text string) (string, string, bool) {
	for _, sp := range sourcePatterns {
		if loc := sp.re.FindStringIndex(text); loc != nil {
			return sp.source, cut(text, loc[0], loc[1]), true
		}
	}
	return "", text, false
}

func cleanQuery(text string) string {
	text = utils.CollapseWhitespace(text)
	text = leadingPreposition.ReplaceAllString(text, "")
	text = trailingPunct.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func cut(text string, start, end int) string {
	return text[:start] + text[end:]
}
