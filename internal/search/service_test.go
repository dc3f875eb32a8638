package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatplanetpl/poc-digital-twin/internal/keyword"
	"github.com/flatplanetpl/poc-digital-twin/internal/vector"
)

// axisEmbedder maps known texts to fixed vectors so similarity is predictable.
type axisEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *axisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *axisEmbedder) Dimensions() int { return 3 }
func (e *axisEmbedder) Model() string   { return "axis" }
func (e *axisEmbedder) Close() error    { return nil }

type fakeDetails struct {
	details map[string]map[string]interface{}
	err     error
}

func (f *fakeDetails) GetChunkDetails(_ context.Context, ids []string) (map[string]map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]map[string]interface{}{}
	for _, id := range ids {
		if d, ok := f.details[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func testChunks() []Chunk {
	return []Chunk{
		{ID: "d1_0", DocumentID: "d1", Content: "trip to Kraków with Anna", Title: "trip.eml", FilePath: "/data/trip.eml",
			Vector: []float32{1, 0, 0},
			Light:  map[string]interface{}{"document_id": "d1", "source_type": "email", "sender": "Anna Nowak"}},
		{ID: "d1_1", DocumentID: "d1", Content: "hotel booking details", Title: "trip.eml", FilePath: "/data/trip.eml",
			Vector: []float32{0.8, 0.6, 0},
			Light:  map[string]interface{}{"document_id": "d1", "source_type": "email", "sender": "Anna Nowak"}},
		{ID: "d2_0", DocumentID: "d2", Content: "see you at the concert", Title: "chat.json", FilePath: "/data/chat.json",
			Vector: []float32{0.6, 0.8, 0},
			Light:  map[string]interface{}{"document_id": "d2", "source_type": "messenger", "sender": "Jan"}},
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *vector.MemoryStore) {
	t.Helper()
	store, err := vector.NewMemoryStore(3)
	require.NoError(t, err)
	emb := &axisEmbedder{vectors: map[string][]float32{"trip": {1, 0, 0}, "concert": {0, 1, 0}}}
	s := NewService(emb, store, opts...)
	require.NoError(t, s.Add(context.Background(), testChunks()))
	return s, store
}

func TestService_SearchSemantic(t *testing.T) {
	s, _ := newTestService(t)
	got, err := s.Search(context.Background(), "trip", 2, Filters{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d1_0", got[0].ID)
	assert.Equal(t, "trip to Kraków with Anna", got[0].Content)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.Equal(t, "d1_1", got[1].ID)
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Similarity, 0.0)
		assert.LessOrEqual(t, c.Similarity, 1.0)
	}
}

func TestService_SearchFilters(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	got, err := s.Search(ctx, "trip", 10, Filters{SourceType: "messenger"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d2_0", got[0].ID)

	got, err = s.Search(ctx, "trip", 10, Filters{Sender: "nowak"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Search(ctx, "trip", 0, Filters{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_SearchMergesDetails(t *testing.T) {
	details := &fakeDetails{details: map[string]map[string]interface{}{
		"d1_0": {"file_path": "/data/trip.eml", "filename": "trip.eml", "is_pinned": true},
	}}
	s, _ := newTestService(t, WithDetails(details))
	got, err := s.Search(context.Background(), "trip", 1, Filters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "trip.eml", got[0].Metadata["filename"])
	assert.Equal(t, true, got[0].Metadata["is_pinned"])
	assert.Equal(t, "email", got[0].Metadata["source_type"])

	details.err = errors.New("db closed")
	got, err = s.Search(context.Background(), "trip", 1, Filters{})
	require.NoError(t, err, "heavy metadata is display-only")
	assert.Equal(t, "email", got[0].Metadata["source_type"])
}

func TestService_SearchHybrid(t *testing.T) {
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	s, _ := newTestService(t, WithKeywordIndex(kw, 0.5))
	defer s.Close()

	// "hotel" embeds to the fallback axis, so only the keyword side separates chunks.
	got, err := s.Search(context.Background(), "hotel", 3, Filters{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "d1_1", got[0].ID)
	assert.InDelta(t, 0.5, got[0].Similarity, 1e-6)
}

func TestService_SearchEmbedError(t *testing.T) {
	store, _ := vector.NewMemoryStore(3)
	s := NewService(&axisEmbedder{err: errors.New("ollama down")}, store)
	_, err := s.Search(context.Background(), "trip", 3, Filters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
}

func TestService_Deletes(t *testing.T) {
	ctx := context.Background()

	t.Run("document", func(t *testing.T) {
		kw, _ := keyword.NewBleveIndex("")
		s, store := newTestService(t, WithKeywordIndex(kw, 0.3))
		n, err := s.DeleteDocument(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 1, store.Size())
		count, _ := kw.DocCount()
		assert.Equal(t, uint64(1), count)

		n, err = s.DeleteDocument(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("file path", func(t *testing.T) {
		s, _ := newTestService(t)
		n, err := s.DeleteByFilePath(ctx, "/data/chat.json")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("sender", func(t *testing.T) {
		s, _ := newTestService(t)
		ids, err := s.DeleteBySender(ctx, "Anna Nowak")
		require.NoError(t, err)
		assert.Len(t, ids, 2)
	})

	t.Run("filter", func(t *testing.T) {
		s, _ := newTestService(t)
		n, err := s.DeleteByFilter(ctx, map[string]string{"source_type": "email"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = s.DeleteByFilter(ctx, map[string]string{})
		assert.ErrorIs(t, err, vector.ErrEmptyFilter)
		_, err = s.DeleteBySender(ctx, "")
		assert.ErrorIs(t, err, vector.ErrEmptyFilter)
	})
}

func TestService_PersistsAfterWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	s, _ := newTestService(t, WithPersistPath(path))
	_, err := s.DeleteDocument(context.Background(), "d2")
	require.NoError(t, err)

	reloaded, _ := vector.NewMemoryStore(3)
	s2 := NewService(&axisEmbedder{}, reloaded, WithPersistPath(path))
	require.NoError(t, s2.Load())
	assert.Equal(t, 2, reloaded.Size())
	assert.Equal(t, "axis", s2.Stats().EmbeddingModel)
}

func TestFilters(t *testing.T) {
	f := Filters{SourceType: "email", Sender: "Anna", Equals: map[string]string{"thread_type": "group", "b": "x"}}
	conds := f.Conditions()
	require.Len(t, conds, 4)
	assert.Equal(t, vector.Eq("source_type", "email"), conds[0])
	assert.Equal(t, vector.Contains("sender", "Anna"), conds[1])
	assert.Equal(t, "b", conds[2].Field)
	assert.Equal(t, map[string]string{"source_type": "email", "sender": "Anna", "thread_type": "group", "b": "x"}, f.Labels())
	assert.True(t, Filters{}.IsZero())
	assert.False(t, f.IsZero())
}
