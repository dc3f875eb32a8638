package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

func newTestRegistry(t *testing.T, now *time.Time) *Registry {
	t.Helper()
	r, err := NewRegistry(openTestDB(t), WithRegistryClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return r
}

func TestComputeContentHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	h, err := ComputeContentHash(path)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h)

	_, err = ComputeContentHash(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestRegistry_RegisterAndReRegister(t *testing.T) {
	ctx := context.Background()
	now := testNow
	r := newTestRegistry(t, &now)
	path := filepath.Join(t.TempDir(), "notes.md")

	doc, err := r.Register(ctx, RegisterInput{
		FilePath: path, ContentHash: "h1", SourceType: "text", ChunkCount: 3,
		EmbeddingModel: "nomic-embed-text", Metadata: map[string]interface{}{"title": "Notes"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	assert.Equal(t, models.StatusActive, doc.Status)

	now = testNow.Add(time.Hour)
	again, err := r.Register(ctx, RegisterInput{
		FilePath: path, ContentHash: "h2", SourceType: "text", ChunkCount: 4, EmbeddingModel: "nomic-embed-text",
	})
	require.NoError(t, err)
	assert.Equal(t, doc.ID, again.ID)

	got, err := r.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.ContentHash)
	assert.Equal(t, 4, got.ChunkCount)
	assert.True(t, got.FirstIndexedAt.Equal(testNow))
	assert.True(t, got.LastIndexedAt.Equal(testNow.Add(time.Hour)))

	byPath, err := r.GetByFilePath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, byPath.ID)
}

func TestRegistry_RegisterWithPresetID(t *testing.T) {
	now := testNow
	r := newTestRegistry(t, &now)
	doc, err := r.Register(context.Background(), RegisterInput{
		ID: "preset", FilePath: filepath.Join(t.TempDir(), "x.txt"), ContentHash: "h",
		SourceType: "text", EmbeddingModel: "m",
	})
	require.NoError(t, err)
	assert.Equal(t, "preset", doc.ID)
}

func TestRegistry_NotFound(t *testing.T) {
	ctx := context.Background()
	now := testNow
	r := newTestRegistry(t, &now)

	_, err := r.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetByFilePath(ctx, "/does/not/exist")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := r.MarkDeleted(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_StatusAndStats(t *testing.T) {
	ctx := context.Background()
	now := testNow
	r := newTestRegistry(t, &now)
	dir := t.TempDir()

	register := func(name, sourceType, model string, chunks int) string {
		doc, err := r.Register(ctx, RegisterInput{
			FilePath: filepath.Join(dir, name), ContentHash: name, SourceType: sourceType,
			ChunkCount: chunks, EmbeddingModel: model,
		})
		require.NoError(t, err)
		return doc.ID
	}
	a := register("a.eml", "email", "m1", 2)
	register("b.eml", "email", "m1", 3)
	c := register("c.md", "text", "m1", 1)
	d := register("d.md", "text", "m1", 5)

	ok, err := r.MarkDeleted(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.MarkArchived(ctx, c)
	require.NoError(t, err)
	assert.True(t, ok)

	deleted, err := r.ListDocuments(ctx, models.StatusDeleted, "", 10)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, a, deleted[0].ID)

	texts, err := r.ListDocuments(ctx, "", "text", 10)
	require.NoError(t, err)
	assert.Len(t, texts, 2)

	_, err = r.StoreChunkDetails(ctx, []ChunkDetail{
		{ChunkID: "d-0", DocumentID: d, SourceType: "text", Heavy: map[string]interface{}{"is_pinned": true}},
		{ChunkID: "d-1", DocumentID: d, SourceType: "text", Heavy: map[string]interface{}{"is_approved": true}},
	})
	require.NoError(t, err)

	stats, err := r.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalActive)
	assert.Equal(t, 1, stats.TotalDeleted)
	assert.Equal(t, 1, stats.ByStatus["archived"])
	assert.Equal(t, SourceStats{Documents: 1, Chunks: 3}, stats.BySourceType["email"])
	assert.Equal(t, SourceStats{Documents: 1, Chunks: 5}, stats.BySourceType["text"])
	assert.Equal(t, 1, stats.Pinned)
	assert.Equal(t, 1, stats.Approved)

	ok, err = r.PermanentlyDelete(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistry_CheckEmbeddingCompatibility(t *testing.T) {
	ctx := context.Background()
	now := testNow
	r := newTestRegistry(t, &now)
	dir := t.TempDir()

	compat, err := r.CheckEmbeddingCompatibility(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, compat.Compatible)
	assert.False(t, compat.RequiresReindex)

	_, err = r.Register(ctx, RegisterInput{FilePath: filepath.Join(dir, "a"), ContentHash: "a", SourceType: "text", EmbeddingModel: "m1"})
	require.NoError(t, err)
	compat, err = r.CheckEmbeddingCompatibility(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, compat.Compatible)

	_, err = r.Register(ctx, RegisterInput{FilePath: filepath.Join(dir, "b"), ContentHash: "b", SourceType: "text", EmbeddingModel: "m2"})
	require.NoError(t, err)
	compat, err = r.CheckEmbeddingCompatibility(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, compat.Compatible)
	assert.True(t, compat.RequiresReindex)
	assert.Equal(t, map[string]int{"m1": 1, "m2": 1}, compat.ModelsInIndex)
}

func TestRegistry_ChunkDetails(t *testing.T) {
	ctx := context.Background()
	now := testNow
	r := newTestRegistry(t, &now)

	heavy := map[string]interface{}{
		"document_id":  "doc-1",
		"file_path":    "/data/a.json",
		"indexed_at":   "2024-03-01T10:00:00",
		"is_pinned":    false,
		"participants": "Anna, Jan",
		"has_media":    true,
	}
	n, err := r.StoreChunkDetails(ctx, []ChunkDetail{
		{ChunkID: "c1", DocumentID: "doc-1", SourceType: "messenger", Heavy: heavy},
		{ChunkID: "c2", DocumentID: "doc-1", SourceType: "messenger", Heavy: map[string]interface{}{}},
		{ChunkID: "c3", DocumentID: "doc-2", SourceType: "email", Heavy: nil},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, heavy, "file_path", "input map must not be modified")

	got, err := r.GetChunkDetails(ctx, []string{"c1", "c3", "unknown"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, map[string]interface{}{
		"document_id":  "doc-1",
		"source_type":  "messenger",
		"file_path":    "/data/a.json",
		"indexed_at":   "2024-03-01T10:00:00",
		"is_pinned":    false,
		"is_approved":  false,
		"participants": "Anna, Jan",
		"has_media":    true,
	}, got["c1"])

	changed, err := r.UpdatePinned(ctx, "doc-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	changed, err = r.UpdateApproved(ctx, "missing", true)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	got, err = r.GetChunkDetails(ctx, []string{"c2"})
	require.NoError(t, err)
	assert.Equal(t, true, got["c2"]["is_pinned"])

	removed, err := r.DeleteChunkDetails(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	cleared, err := r.ClearChunkDetails(ctx, "email")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)

	got, err = r.GetChunkDetails(ctx, []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRegistry_DeleteChunkDetailsByIDs(t *testing.T) {
	ctx := context.Background()
	now := testNow
	r := newTestRegistry(t, &now)

	_, err := r.StoreChunkDetails(ctx, []ChunkDetail{
		{ChunkID: "c1", DocumentID: "doc-1", SourceType: "messenger", Heavy: map[string]interface{}{"chat_name": "Family"}},
		{ChunkID: "c2", DocumentID: "doc-1", SourceType: "messenger", Heavy: map[string]interface{}{"chat_name": "Family"}},
		{ChunkID: "c3", DocumentID: "doc-1", SourceType: "messenger", Heavy: map[string]interface{}{"chat_name": "Family"}},
	})
	require.NoError(t, err)

	n, err := r.DeleteChunkDetailsByIDs(ctx, []string{"c1", "c3", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.DeleteChunkDetailsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := r.GetChunkDetails(ctx, []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "c2")
}
