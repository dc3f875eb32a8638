package query

import "regexp"

const (
	nameEN = `[A-Z][a-z]+`
	namePL = `[A-ZĄĆĘŁŃÓŚŹŻ][a-ząćęłńóśźż]+`
)

// personPatterns are tried in order; group 1 is the name. Polish verbs take
// any gendered or plural ending.
var personPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:from|by|with)\s+(` + nameEN + `(?:\s+` + nameEN + `)?)`),
	regexp.MustCompile(`\b(?:said|wrote|mentioned|told)\s+(?:by\s+)?(` + nameEN + `(?:\s+` + nameEN + `)?)`),
	regexp.MustCompile(`(` + nameEN + `(?:\s+` + nameEN + `)?)\s+(?:said|wrote|mentioned|told)\b`),
	regexp.MustCompile(`\bconversations?\s+with\s+(` + nameEN + `(?:\s+` + nameEN + `)?)`),
	regexp.MustCompile(`\bchats?\s+with\s+(` + nameEN + `(?:\s+` + nameEN + `)?)`),

	regexp.MustCompile(`\b(?:od|z)\s+(` + namePL + `(?:\s+` + namePL + `)?)`),
	regexp.MustCompile(`(?:powiedział|napisał|wspomniał|mówił)\p{L}*\s+(` + namePL + `)`),
	regexp.MustCompile(`(` + namePL + `(?:\s+` + namePL + `)?)\s+(?:powiedział|napisał|wspomniał|mówił)\p{L}*`),
	regexp.MustCompile(`\brozmow(?:a|y)\s+z\s+(` + namePL + `(?:\s+` + namePL + `)?)`),
	regexp.MustCompile(`wiadomości\s+od\s+(` + namePL + `)`),
}

// personStopWords are capitalized function words that the name patterns pick up.
var personStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true,
	"do": true, "co": true, "jak": true, "i": true,
}

type dateKind int

const (
	dateMonthYear dateKind = iota
	dateRelativeLast
	dateRelativeThis
	dateYearMonth
	dateMonthYearNum
)

type datePattern struct {
	re   *regexp.Regexp
	kind dateKind
}

// Alternations list inflected forms before their prefixes so the whole word
// is consumed.
var datePatterns = []datePattern{
	{regexp.MustCompile(`(?i)\b(?:in|w)\s+(\p{L}+)\s+(\d{4})`), dateMonthYear},
	{regexp.MustCompile(`(?i)\b(?:from|od)\s+(\p{L}+)\s+(\d{4})`), dateMonthYear},
	{regexp.MustCompile(`(?i)\b(?:during|podczas)\s+(\p{L}+)\s+(\d{4})`), dateMonthYear},
	{regexp.MustCompile(`(?i)\b(?:w\s+)?(?:last|poprzedni(?:ego|m)?|zeszłym|zeszły)\s+(week|month|year|tygodniu|tydzień|miesiącu|miesiąc|roku|rok)`), dateRelativeLast},
	{regexp.MustCompile(`(?i)\b(?:this|w tym|tym)\s+(week|month|year|tygodniu|miesiącu|roku)`), dateRelativeThis},
	{regexp.MustCompile(`(\d{4})-(\d{1,2})`), dateYearMonth},
	{regexp.MustCompile(`(\d{1,2})/(\d{4})`), dateMonthYearNum},
}

// months maps English and Polish month names (nominative, genitive,
// locative and unaccented forms) to month numbers.
var months = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,

	"stycznia": 1, "styczeń": 1, "styczen": 1, "styczniu": 1,
	"lutego": 2, "luty": 2, "lutym": 2,
	"marca": 3, "marzec": 3, "marcu": 3,
	"kwietnia": 4, "kwiecień": 4, "kwiecien": 4, "kwietniu": 4,
	"maja": 5, "maj": 5, "maju": 5,
	"czerwca": 6, "czerwiec": 6, "czerwcu": 6,
	"lipca": 7, "lipiec": 7, "lipcu": 7,
	"sierpnia": 8, "sierpień": 8, "sierpien": 8, "sierpniu": 8,
	"września": 9, "wrzesień": 9, "wrzesien": 9, "wrześniu": 9, "wrzesniu": 9,
	"października": 10, "październik": 10, "pazdziernik": 10, "październiku": 10, "pazdzierniku": 10,
	"listopada": 11, "listopad": 11, "listopadzie": 11,
	"grudnia": 12, "grudzień": 12, "grudzien": 12, "grudniu": 12,
}

type sourcePattern struct {
	re     *regexp.Regexp
	source string
}

var sourcePatterns = []sourcePattern{
	{regexp.MustCompile(`(?i)\b(?:email|e-mail|mail|maile|emaile)\b`), "email"},
	{regexp.MustCompile(`(?i)\b(?:messenger|facebook|fb)\b`), "messenger"},
	{regexp.MustCompile(`(?i)\b(?:whatsapp|wa)\b`), "whatsapp"},
	{regexp.MustCompile(`(?i)\b(?:notatk[ai]|notes?)\b`), "text"},
}

var (
	leadingPreposition = regexp.MustCompile(`(?i)^(?:from|by|with|in|od|z|w|o)\s+`)
	trailingPunct      = regexp.MustCompile(`[,;:]+$`)
)
