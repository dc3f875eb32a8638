package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func testPoints() []Point {
	return []Point{
		{ID: "a", Vector: []float32{1, 0, 0}, Content: "alpha", FilePath: "/data/a.eml",
			Payload: map[string]interface{}{"document_id": "d1", "source_type": "email", "sender": "Anna Nowak"}},
		{ID: "b", Vector: []float32{0.9, 0.1, 0}, Content: "beta", FilePath: "/data/a.eml",
			Payload: map[string]interface{}{"document_id": "d1", "source_type": "email", "sender": "Anna Nowak"}},
		{ID: "c", Vector: []float32{0, 1, 0}, Content: "gamma", FilePath: "/data/c.json",
			Payload: map[string]interface{}{"document_id": "d2", "source_type": "messenger", "sender": "Jan"}},
	}
}

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(3)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(context.Background(), testPoints()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMemoryStore_UpsertSearch(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	if s.Size() != 3 {
		t.Errorf("Size=%d", s.Size())
	}
	results, err := s.Search(ctx, []float32{2, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[0].Content != "alpha" {
		t.Errorf("top result should be a, got %s", results[0].ID)
	}
	if results[0].Score < 0.999 || results[0].Score > 1 {
		t.Errorf("score should be ~1 for identical direction, got %f", results[0].Score)
	}
	if results[0].Payload["document_id"] != "d1" {
		t.Errorf("payload not returned: %v", results[0].Payload)
	}

	// Re-upserting an id replaces it without growing the store.
	if err := s.Upsert(ctx, []Point{{ID: "a", Vector: []float32{0, 0, 1}, Content: "alpha2"}}); err != nil {
		t.Fatal(err)
	}
	if s.Size() != 3 {
		t.Errorf("Size after replace=%d, want 3", s.Size())
	}
}

func TestMemoryStore_NegativeSimilarityClamped(t *testing.T) {
	s, _ := NewMemoryStore(2)
	ctx := context.Background()
	_ = s.Upsert(ctx, []Point{{ID: "x", Vector: []float32{-1, 0}}})
	results, err := s.Search(ctx, []float32{1, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Score != 0 {
		t.Fatalf("expected one result with score 0, got %+v", results)
	}
}

func TestMemoryStore_SearchFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	results, err := s.Search(ctx, []float32{1, 0, 0}, 10, []Condition{Eq("source_type", "messenger")})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "c" {
		t.Fatalf("source filter: got %+v", results)
	}

	results, _ = s.Search(ctx, []float32{1, 0, 0}, 10, []Condition{Contains("sender", "anna")})
	if len(results) != 2 {
		t.Fatalf("sender contains filter: got %d results", len(results))
	}

	results, _ = s.Search(ctx, []float32{1, 0, 0}, 10, []Condition{Eq("missing", "x")})
	if len(results) != 0 {
		t.Fatalf("missing field should not match, got %d", len(results))
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		conds []Condition
		want  int
	}{
		{"by_document", []Condition{Eq("document_id", "d1")}, 2},
		{"by_file_path", []Condition{Eq(FieldFilePath, "/data/c.json")}, 1},
		{"by_sender", []Condition{Eq("sender", "Jan")}, 1},
		{"no_match", []Condition{Eq("document_id", "nope")}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			ids, err := s.Delete(ctx, tt.conds)
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != tt.want {
				t.Errorf("deleted %d, want %d", len(ids), tt.want)
			}
			if s.Size() != 3-tt.want {
				t.Errorf("Size=%d, want %d", s.Size(), 3-tt.want)
			}
		})
	}

	s := newTestStore(t)
	if _, err := s.Delete(ctx, nil); err != ErrEmptyFilter {
		t.Errorf("expected ErrEmptyFilter, got %v", err)
	}
	n, err := s.DeleteIDs(ctx, []string{"a", "a", "zzz"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DeleteIDs=%d, want 1", n)
	}
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "indices", "vectors.bin")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryStore(3)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 3 {
		t.Fatalf("loaded Size=%d", loaded.Size())
	}
	results, err := loaded.Search(context.Background(), []float32{0, 1, 0}, 1, []Condition{Eq(FieldFilePath, "/data/c.json")})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Content != "gamma" || results[0].Payload["sender"] != "Jan" {
		t.Fatalf("unexpected loaded result: %+v", results)
	}

	wrongDim, _ := NewMemoryStore(4)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if err := loaded.Load(filepath.Join(t.TempDir(), "missing.bin")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}
