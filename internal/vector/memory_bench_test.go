package vector

import (
	"context"
	"fmt"
	"testing"
)

func benchStore(b *testing.B, n, dims int) *MemoryStore {
	b.Helper()
	m, err := NewMemoryStore(dims)
	if err != nil {
		b.Fatal(err)
	}
	points := make([]Point, n)
	for i := range points {
		v := make([]float32, dims)
		v[0] = float32(i) / float32(n)
		v[1] = 1
		source := "text"
		if i%4 == 0 {
			source = "email"
		}
		points[i] = Point{
			ID:       fmt.Sprintf("doc%d_0", i),
			Vector:   v,
			FilePath: fmt.Sprintf("/data/%d.txt", i),
			Payload:  map[string]interface{}{"source_type": source, "sender": fmt.Sprintf("user%d", i%10)},
		}
	}
	if err := m.Upsert(context.Background(), points); err != nil {
		b.Fatal(err)
	}
	return m
}

func BenchmarkMemoryStoreSearch(b *testing.B) {
	m := benchStore(b, 1000, 384)
	query := make([]float32, 384)
	query[0] = 1
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Search(ctx, query, 10, nil)
	}
}

func BenchmarkMemoryStoreSearchFiltered(b *testing.B) {
	m := benchStore(b, 1000, 384)
	query := make([]float32, 384)
	query[0] = 1
	conds := []Condition{Eq("source_type", "email"), Contains("sender", "user")}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Search(ctx, query, 10, conds)
	}
}
