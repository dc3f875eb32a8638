package vector

import (
	"context"
	"testing"
)

func TestNewStore_Memory(t *testing.T) {
	s, err := NewStore(context.Background(), Options{Backend: "memory", Dimensions: 3})
	if err != nil {
		t.Fatalf("NewStore(memory): %v", err)
	}
	defer s.Close()

	err = s.Upsert(context.Background(), []Point{{ID: "a", Vector: []float32{1, 0, 0}}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if s.Size() != 1 {
		t.Errorf("Size=%d, want 1", s.Size())
	}
}

func TestNewStore_DefaultsToMemory(t *testing.T) {
	s, err := NewStore(context.Background(), Options{Dimensions: 3})
	if err != nil {
		t.Fatalf("NewStore(''): %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}
}

func TestNewStore_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewStore(ctx, Options{Backend: "unknown", Dimensions: 3}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := NewStore(ctx, Options{Backend: "memory"}); err == nil {
		t.Error("expected error for zero dimension")
	}
	if _, err := NewStore(ctx, Options{Backend: "pgvector", Dimensions: 3}); err == nil {
		t.Error("expected error for missing dsn")
	}
}
