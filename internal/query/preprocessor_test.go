package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday.
var testNow = time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC)

func newTestPreprocessor() *Preprocessor {
	return NewPreprocessor(WithClock(func() time.Time { return testNow }))
}

func TestProcess_PersonAndMonth(t *testing.T) {
	p := newTestPreprocessor()
	got := p.Process("messages from Ewa about vacation in December 2021")

	require.NotNil(t, got.PersonFilter)
	assert.Equal(t, "Ewa", *got.PersonFilter)
	require.NotNil(t, got.DateRange)
	assert.Equal(t, time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC), got.DateRange.Start)
	assert.Equal(t, time.Date(2021, 12, 31, 23, 59, 59, 0, time.UTC), got.DateRange.End)
	assert.Nil(t, got.SourceFilter)
	assert.Equal(t, "messages about vacation", got.CleanQuery)
	assert.Equal(t, map[string]string{
		"person":     "Ewa",
		"date_range": "2021-12-01 to 2021-12-31",
	}, got.ExtractedFilters)
}

func TestProcess_Person(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"from full name", "emails from Anna Nowak about rent", "Anna Nowak"},
		{"said by", "what was said by Marek", "Marek"},
		{"name said", "things Tomek said yesterday", "Tomek"},
		{"conversation with", "my conversations with Kasia", "Kasia"},
		{"chat with", "chat with Piotr", "Piotr"},
		{"polish od", "wiadomości od Łucji", "Łucji"},
		{"polish z", "rozmowy z Żanetą o pracy", "Żanetą"},
		{"polish verb", "co napisał Grzegorz", "Grzegorz"},
	}
	p := newTestPreprocessor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Process(tt.query)
			require.NotNil(t, got.PersonFilter, "no person extracted from %q", tt.query)
			assert.Equal(t, tt.want, *got.PersonFilter)
			assert.NotContains(t, got.CleanQuery, tt.want)
		})
	}
}

func TestProcess_PersonRejectsMonthName(t *testing.T) {
	p := newTestPreprocessor()
	got := p.Process("notes from December 2021")
	assert.Nil(t, got.PersonFilter)
	require.NotNil(t, got.DateRange)
	assert.Equal(t, time.December, got.DateRange.Start.Month())
	require.NotNil(t, got.SourceFilter)
	assert.Equal(t, "text", *got.SourceFilter)
}

func TestProcess_NoFilters(t *testing.T) {
	p := newTestPreprocessor()
	got := p.Process("  what   is my   favourite colour  ")
	assert.Nil(t, got.PersonFilter)
	assert.Nil(t, got.DateRange)
	assert.Nil(t, got.SourceFilter)
	assert.Empty(t, got.ExtractedFilters)
	assert.Equal(t, "what is my favourite colour", got.CleanQuery)
	assert.False(t, got.HasFilters())
}

func TestProcess_DateRanges(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"last week", "what happened last week", testNow.AddDate(0, 0, -7), testNow},
		{"last month", "plans from last month", testNow.AddDate(0, 0, -30), testNow},
		{"last year polish", "wydatki w zeszłym roku", testNow.AddDate(0, 0, -365), testNow},
		{"this week", "meetings this week", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), testNow},
		{"this month polish", "co w tym miesiącu", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), testNow},
		{"this year", "trips this year", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), testNow},
		{"iso year month", "bills 2023-02", time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 2, 28, 23, 59, 59, 0, time.UTC)},
		{"numeric month year", "bills 02/2024", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)},
		{"polish genitive", "zdjęcia od stycznia 2022", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2022, 1, 31, 23, 59, 59, 0, time.UTC)},
		{"polish locative", "urlop w grudniu 2020", time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC)},
		{"during", "during May 2019 trip", time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2019, 5, 31, 23, 59, 59, 0, time.UTC)},
	}
	p := newTestPreprocessor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Process(tt.query)
			require.NotNil(t, got.DateRange, "no date range from %q", tt.query)
			assert.Equal(t, tt.wantStart, got.DateRange.Start)
			assert.Equal(t, tt.wantEnd, got.DateRange.End)
		})
	}
}

func TestProcess_PolishInflectionsAreConsumedWhole(t *testing.T) {
	tests := []struct {
		query     string
		person    string
		wantStart time.Time
		wantClean string
	}{
		{"co Ewa mówiła w zeszłym roku", "Ewa", testNow.AddDate(0, 0, -365), "co"},
		{"co napisała Anna w poprzednim miesiącu", "Anna", testNow.AddDate(0, 0, -30), "co"},
		{"Marek powiedział w zeszłym tygodniu o kredycie", "Marek", testNow.AddDate(0, 0, -7), "kredycie"},
	}
	p := newTestPreprocessor()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := p.Process(tt.query)
			require.NotNil(t, got.PersonFilter)
			assert.Equal(t, tt.person, *got.PersonFilter)
			require.NotNil(t, got.DateRange)
			assert.Equal(t, tt.wantStart, got.DateRange.Start)
			assert.Equal(t, tt.wantClean, got.CleanQuery)
		})
	}
}

func TestProcess_InvalidDates(t *testing.T) {
	p := newTestPreprocessor()
	for _, q := range []string{"in Atlantis 2021", "report 2021-13", "13/2021 numbers"} {
		got := p.Process(q)
		assert.Nil(t, got.DateRange, "unexpected date range for %q", q)
	}
}

func TestProcess_Source(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"my e-mail about taxes", "email"},
		{"MAIL from the bank", "email"},
		{"facebook chat about party", "messenger"},
		{"WhatsApp group plans", "whatsapp"},
		{"moje notatki o projekcie", "text"},
		{"notes on the garden", "text"},
	}
	p := newTestPreprocessor()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := p.Process(tt.query)
			require.NotNil(t, got.SourceFilter)
			assert.Equal(t, tt.want, *got.SourceFilter)
			assert.Equal(t, tt.want, got.ExtractedFilters["source"])
		})
	}
}

func TestProcess_SourceNeedsWordBoundary(t *testing.T) {
	p := newTestPreprocessor()
	got := p.Process("was the mailbox full")
	assert.Nil(t, got.SourceFilter)
}

func TestProcess_CleanStripsPrepositionAndPunctuation(t *testing.T) {
	p := newTestPreprocessor()
	got := p.Process("with email budget plans:")
	require.NotNil(t, got.SourceFilter)
	assert.Equal(t, "budget plans", got.CleanQuery)
}

func TestProcess_Idempotent(t *testing.T) {
	p := newTestPreprocessor()
	queries := []string{
		"messages from Ewa about vacation in December 2021",
		"emails from last week about the invoice",
		"what did Adam Kowalski say on whatsapp this month",
		"rozmowy z Markiem w grudniu 2021",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			first := p.Process(q)
			second := p.Process(first.CleanQuery)
			assert.Empty(t, second.ExtractedFilters, "second pass on %q extracted filters", first.CleanQuery)
		})
	}
}

func TestProcess_NeverPanics(t *testing.T) {
	p := newTestPreprocessor()
	for _, q := range []string{"", " ", "from", "in 2021", "/", "-", "z", "0/0000"} {
		assert.NotPanics(t, func() { p.Process(q) }, "input %q", q)
	}
}
