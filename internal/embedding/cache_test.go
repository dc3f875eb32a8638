package embedding

import (
	"testing"
)

func TestEmbeddingCache_LRU(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("dentist"); ok || v != nil {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("dentist", []float32{1, 2, 3})
	c.Set("hotel", []float32{4, 5})
	if _, ok := c.Get("dentist"); !ok {
		t.Fatal("dentist should be cached")
	}
	c.Set("train", []float32{6}) // evicts hotel, dentist was used more recently
	if _, ok := c.Get("hotel"); ok {
		t.Error("hotel should be evicted")
	}
	if v, ok := c.Get("dentist"); !ok || v[0] != 1 {
		t.Errorf("dentist: got %v, %v", v, ok)
	}
	if _, ok := c.Get("train"); !ok {
		t.Error("train should be present")
	}

	st := c.Stats()
	if st.Entries != 2 || st.Hits != 3 || st.Misses != 2 {
		t.Errorf("stats = %+v, want 2 entries, 3 hits, 2 misses", st)
	}
}

func TestEmbeddingCache_SetReplaces(t *testing.T) {
	c := NewEmbeddingCache(0)
	c.Set("a", []float32{1})
	c.Set("a", []float32{2})
	v, ok := c.Get("a")
	if !ok || v[0] != 2 {
		t.Errorf("got %v, %v; want replaced value", v, ok)
	}
	if c.Stats().Entries != 1 {
		t.Errorf("capacity below 1 should hold one entry")
	}
}
