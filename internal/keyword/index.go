// Package keyword provides the keyword (BM25) half of hybrid chunk search.
package keyword

import "context"

// Doc is the searchable text of one chunk.
type Doc struct {
	Content    string `json:"content"`
	Title      string `json:"title"`
	SourceType string `json:"source_type"`
	DocumentID string `json:"document_id"`
}

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from matches in the title (filename) field.
	// Values > 1 make filename matches rank higher (e.g. 3.0). Use 1.0 for no boost.
	TitleBoost float64
	// PhraseBoost multiplies the score when query terms appear close together.
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 2.
	Fuzziness int
	// SourceType restricts hits to chunks of one source type.
	SourceType string
}

// KeywordIndex defines keyword search over chunks keyed by chunk id.
type KeywordIndex interface {
	Index(ctx context.Context, id string, doc *Doc) error
	IndexBatch(ctx context.Context, docs map[string]*Doc) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, ids []string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
