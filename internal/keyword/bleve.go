package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"
)

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *BleveIndex) {
		if l != nil {
			b.logger = l
		}
	}
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) keeps Polish and
	// English names matchable as typed.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("source_type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("document_id", keywordFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path
// creates an in-memory index. If the mapping changes, remove the index
// directory to force a full re-index.
func NewBleveIndex(path string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}

	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		b.index = index
		return b, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		b.index = index
		return b, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

// Index indexes one chunk by id.
func (b *BleveIndex) Index(ctx context.Context, id string, doc *Doc) error {
	return b.index.Index(id, doc)
}

// IndexBatch indexes many chunks in one batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, docs map[string]*Doc) error {
	if len(docs) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for id, doc := range docs {
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("failed to add chunk %s to batch: %w", id, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}
	return nil
}

// Search runs a match query and returns up to limit results.
// When opts is nil or no boost is set, a single match over title+content is used.
// With boosts, title and content queries are merged with additive scoring,
// a term coverage penalty and a phrase proximity boost.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	titleBoost := 1.0
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	sourceType := ""
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
		sourceType = opts.SourceType
	}

	if titleBoost <= 1.0 && phraseBoost <= 1.0 {
		return b.searchSingle(query, limit, fuzzyEnabled, fuzziness, sourceType)
	}
	return b.searchWithBoosts(query, limit, titleBoost, phraseBoost, fuzzyEnabled, fuzziness, sourceType)
}

// restrict narrows q to one source type when sourceType is set.
func restrict(q blevequery.Query, sourceType string) blevequery.Query {
	if sourceType == "" {
		return q
	}
	tq := bleve.NewTermQuery(sourceType)
	tq.SetField("source_type")
	return bleve.NewConjunctionQuery(q, tq)
}

func (b *BleveIndex) run(q blevequery.Query, size int) (map[string]float64, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = size
	results, err := b.index.Search(req)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(results.Hits))
	for _, hit := range results.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}

func (b *BleveIndex) searchSingle(query string, limit int, fuzzyEnabled bool, fuzziness int, sourceType string) ([]*KeywordResult, error) {
	var q blevequery.Query
	if fuzzyEnabled {
		q = buildFuzzyQuery(query, fuzziness, "")
	} else {
		q = bleve.NewMatchQuery(query)
	}
	req := bleve.NewSearchRequest(restrict(q, sourceType))
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func (b *BleveIndex) searchWithBoosts(query string, limit int, titleBoost, phraseBoost float64, fuzzyEnabled bool, fuzziness int, sourceType string) ([]*KeywordResult, error) {
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	terms := tokenizeQuery(query)
	numTerms := len(terms)

	var titleQuery, contentQuery blevequery.Query
	if fuzzyEnabled {
		titleQuery = buildFuzzyQuery(query, fuzziness, "title")
		contentQuery = buildFuzzyQuery(query, fuzziness, "content")
	} else {
		tq := bleve.NewMatchQuery(query)
		tq.SetField("title")
		titleQuery = tq
		cq := bleve.NewMatchQuery(query)
		cq.SetField("content")
		contentQuery = cq
	}

	titleScores, err := b.run(restrict(titleQuery, sourceType), reqSize)
	if err != nil {
		return nil, fmt.Errorf("Bleve title search failed: %w", err)
	}
	contentScores, err := b.run(restrict(contentQuery, sourceType), reqSize)
	if err != nil {
		return nil, fmt.Errorf("Bleve content search failed: %w", err)
	}

	coverage := map[string]int{}
	if numTerms > 1 {
		coverage = b.termCoverage(terms, reqSize, fuzzyEnabled, fuzziness, sourceType)
	}
	phrase := map[string]bool{}
	if phraseBoost > 1.0 && numTerms > 1 {
		phrase = b.phraseMatches(query, reqSize, sourceType)
	}

	type scored struct {
		id    string
		score float64
	}
	ids := make(map[string]struct{}, len(titleScores)+len(contentScores))
	for id := range titleScores {
		ids[id] = struct{}{}
	}
	for id := range contentScores {
		ids[id] = struct{}{}
	}
	merged := make([]scored, 0, len(ids))
	for id := range ids {
		score := titleScores[id]*titleBoost + contentScores[id]
		// Squared coverage: chunks matching every term outrank partial matches.
		if numTerms > 1 {
			matched := coverage[id]
			if matched == 0 {
				matched = 1
			}
			c := float64(matched) / float64(numTerms)
			score *= c * c
		}
		if phrase[id] {
			score *= phraseBoost
		}
		merged = append(merged, scored{id: id, score: score})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].id < merged[j].id
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	out := make([]*KeywordResult, len(merged))
	for i, s := range merged {
		out[i] = &KeywordResult{ID: s.id, Score: s.score}
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of fuzzy queries, one per term.
// An empty field searches all fields.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// termCoverage counts how many query terms each chunk matches.
func (b *BleveIndex) termCoverage(terms []string, reqSize int, fuzzyEnabled bool, fuzziness int, sourceType string) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		var q blevequery.Query
		if fuzzyEnabled {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			q = fq
		} else {
			q = bleve.NewMatchQuery(term)
		}
		hits, err := b.run(restrict(q, sourceType), reqSize)
		if err != nil {
			b.logger.Debug("term coverage query failed", zap.Error(err))
			continue
		}
		for id := range hits {
			coverage[id]++
		}
	}
	return coverage
}

// phraseMatches finds chunks where the query appears as a phrase in the
// content or title.
func (b *BleveIndex) phraseMatches(query string, reqSize int, sourceType string) map[string]bool {
	matches := make(map[string]bool)
	for _, field := range []string{"content", "title"} {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(field)
		hits, err := b.run(restrict(pq, sourceType), reqSize)
		if err != nil {
			b.logger.Debug("phrase query failed", zap.String("field", field), zap.Error(err))
			continue
		}
		for id := range hits {
			matches[id] = true
		}
	}
	return matches
}

// Delete removes chunks from the index. Unknown ids are ignored.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete from Bleve index: %w", err)
	}
	return nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
