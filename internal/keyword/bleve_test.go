package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	doc := &Doc{
		Title:      "wyjazd.eml",
		Content:    "Anna wrote about the Kraków trip and the Bayes course in May.",
		SourceType: "email",
		DocumentID: "d1",
	}
	if err := idx.Index(ctx, "d1_0", doc); err != nil {
		t.Fatalf("Index: %v", err)
	}

	results, err := idx.Search(ctx, "Kraków", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].ID != "d1_0" {
		t.Fatalf("expected d1_0 for \"Kraków\", got %+v", results)
	}

	// Standard analyzer (no stemming) so "bayes" matches "Bayes".
	results, err = idx.Search(ctx, "bayes", 10, nil)
	if err != nil {
		t.Fatalf("Search bayes: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected a result for \"bayes\"")
	}
}

func TestBleveIndex_SearchFindsTitle(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, "n_0", &Doc{Title: "holiday plans.md", Content: "Some body text.", SourceType: "text"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	results, err := idx.Search(ctx, "holiday", 10, &SearchOptions{TitleBoost: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "n_0" {
		t.Fatalf("expected title hit, got %+v", results)
	}
}

func TestBleveIndex_SourceTypeFilter(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	err := idx.IndexBatch(ctx, map[string]*Doc{
		"e_0": {Content: "budget meeting notes", SourceType: "email"},
		"m_0": {Content: "budget meeting tomorrow?", SourceType: "messenger"},
	})
	if err != nil {
		t.Fatalf("IndexBatch: %v", err)
	}

	all, err := idx.Search(ctx, "budget", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 unfiltered hits, got %d", len(all))
	}

	filtered, err := idx.Search(ctx, "budget", 10, &SearchOptions{SourceType: "messenger"})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].ID != "m_0" {
		t.Fatalf("expected only m_0, got %+v", filtered)
	}
}

func TestBleveIndex_BoostedPrefersFullCoverage(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	err := idx.IndexBatch(ctx, map[string]*Doc{
		"both":    {Content: "summer holiday in Gdańsk with family"},
		"partial": {Content: "summer summer summer schedule"},
	})
	if err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, "summer holiday", 10, &SearchOptions{TitleBoost: 2, PhraseBoost: 1.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].ID != "both" {
		t.Fatalf("expected chunk with both terms first, got %+v", results)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, "c_0", &Doc{Content: "meeting with Katarzyna"}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, "katarzyan", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected fuzzy hit, got %d", len(results))
	}
}

func TestBleveIndex_ReopenKeepsContent(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "bleve")
	ctx := context.Background()

	idx1, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	if err := idx1.Index(ctx, "doc1_0", &Doc{Content: "uniqueword"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx2, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex (open existing): %v", err)
	}
	defer idx2.Close()

	results, err := idx2.Search(ctx, "uniqueword", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected reopened index to keep its chunk, got %d results", len(results))
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, "a", &Doc{Content: "onlyhere"})
	_ = idx.Index(ctx, "b", &Doc{Content: "onlyhere too"})

	if err := idx.Delete(ctx, []string{"a", "missing"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, err := idx.Search(ctx, "onlyhere", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Errorf("expected only b after delete, got %+v", results)
	}
	n, _ := idx.DocCount()
	if n != 1 {
		t.Errorf("DocCount=%d, want 1", n)
	}
}

func TestNewBleveIndex_MemOnlyAndCreatesDir(t *testing.T) {
	mem, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex(mem): %v", err)
	}
	_ = mem.Close()

	indexPath := filepath.Join(t.TempDir(), "sub", "bleve")
	idx, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	_ = idx.Close()
	if _, err := os.Stat(indexPath); err != nil {
		t.Errorf("index path should exist: %v", err)
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	results, err := idx.Search(context.Background(), "   ", 10, nil)
	if err != nil || results != nil {
		t.Fatalf("expected nil results for blank query, got %v %v", results, err)
	}
}
