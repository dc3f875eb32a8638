package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flatplanetpl/poc-digital-twin/internal/embedding"
	"github.com/flatplanetpl/poc-digital-twin/internal/keyword"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/ranking"
	"github.com/flatplanetpl/poc-digital-twin/internal/search"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
	"github.com/flatplanetpl/poc-digital-twin/internal/vector"
)

// TestPipeline_ForgetRemovesEverywhere runs the engine and the forget service
// against the real stores and in-memory indexes.
func TestPipeline_ForgetRemovesEverywhere(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	stores, err := storage.OpenAll(filepath.Join(dir, "twin.db"), storage.WithQueryLogging(true))
	require.NoError(t, err)
	defer stores.Close()

	emb := embedding.NewMockEmbedder(16)
	vectors, err := vector.NewMemoryStore(16)
	require.NoError(t, err)
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	svc := search.NewService(emb, vectors,
		search.WithKeywordIndex(kw, 0.3),
		search.WithDetails(stores.Registry),
		search.WithPersistPath(filepath.Join(dir, "vectors.bin")))
	defer svc.Close()

	tripPath := filepath.Join(dir, "trip.eml")
	contents := map[string]string{
		"doc-1_0": "Anna booked the hotel in Kraków for March",
		"doc-1_1": "The train leaves at 9 from the central station",
		"doc-2_0": "Shopping list: bread, milk, apples",
	}
	var chunks []search.Chunk
	for _, id := range []string{"doc-1_0", "doc-1_1", "doc-2_0"} {
		docID, source, path := "doc-1", "email", tripPath
		if id == "doc-2_0" {
			docID, source, path = "doc-2", "note", filepath.Join(dir, "list.txt")
		}
		vec, err := emb.Embed(ctx, contents[id])
		require.NoError(t, err)
		chunks = append(chunks, search.Chunk{
			ID: id, DocumentID: docID, Content: contents[id], Title: filepath.Base(path), FilePath: path, Vector: vec,
			Light: map[string]interface{}{"document_id": docID, "source_type": source, "sender": "Anna", "date": "2024-03-01"},
		})
	}
	require.NoError(t, svc.Add(ctx, chunks))
	_, err = stores.Registry.Register(ctx, storage.RegisterInput{
		ID: "doc-1", FilePath: tripPath, ContentHash: "abc", SourceType: "email", ChunkCount: 2, EmbeddingModel: emb.Model(),
	})
	require.NoError(t, err)
	_, err = stores.Registry.StoreChunkDetails(ctx, []storage.ChunkDetail{
		{ChunkID: "doc-1_0", DocumentID: "doc-1", SourceType: "email", Heavy: map[string]interface{}{"filename": "trip.eml", "file_path": tripPath}},
		{ChunkID: "doc-1_1", DocumentID: "doc-1", SourceType: "email", Heavy: map[string]interface{}{"filename": "trip.eml", "file_path": tripPath}},
	})
	require.NoError(t, err)

	ranker, err := ranking.NewRanker(ranking.DefaultConfig(), ranking.WithClock(clock))
	require.NoError(t, err)
	llm := &fakeLLM{answer: `The hotel is booked [Source: email, 2024-03-01, "Anna booked the hotel"].`}
	engine := NewEngine(svc, llm, ranker, WithHistory(stores.History), WithAuditor(stores.Audit), WithTopK(3, 10))

	resp, err := engine.Query(ctx, QueryRequest{Question: "hotel in Kraków"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Citations)
	assert.True(t, resp.IsGrounded)
	var citedTrip bool
	for _, c := range resp.Citations {
		if c.DocumentID == "doc-1" {
			citedTrip = true
			assert.Equal(t, "trip.eml", c.Filename, "heavy metadata is merged into citations")
		}
	}
	require.True(t, citedTrip)

	forget := NewForgetService(svc, stores.History, stores.Registry, stores.Audit)
	res := forget.ForgetByFilePath(ctx, tripPath, ReasonFileRemoved)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, 2, res.VectorsDeleted)
	assert.Equal(t, 1, res.ChatReferencesRemoved)
	assert.True(t, res.RegistryUpdated)

	assert.Equal(t, 1, vectors.Size())
	details, err := stores.Registry.GetChunkDetails(ctx, []string{"doc-1_0", "doc-1_1"})
	require.NoError(t, err)
	assert.Empty(t, details)
	doc, err := stores.Registry.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, doc.Status)

	msgs, err := stores.History.Messages(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, c := range msgs[1].Sources {
		assert.NotEqual(t, "doc-1", c.DocumentID)
	}

	after, err := engine.Search(ctx, "hotel in Kraków", 3, search.Filters{})
	require.NoError(t, err)
	for _, d := range after.Documents {
		assert.NotEqual(t, "doc-1", models.MetaString(d.Metadata, "document_id"))
	}

	report, err := forget.DeletionReport(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalDeletions)
	assert.Equal(t, 2, report.TotalChunksDeleted)
	assert.Equal(t, 1, report.ByReason[ReasonFileRemoved])
}

// TestPipeline_FailedAnswerStoresNothing checks that a failed answer insert
// leaves neither the conversation nor the question behind.
func TestPipeline_FailedAnswerStoresNothing(t *testing.T) {
	ctx := context.Background()
	stores, err := storage.OpenAll(filepath.Join(t.TempDir(), "twin.db"))
	require.NoError(t, err)
	defer stores.Close()
	_, err = stores.DB.Exec(`CREATE TRIGGER reject_answers BEFORE INSERT ON messages
		WHEN NEW.role = 'assistant' BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	ranker, err := ranking.NewRanker(ranking.DefaultConfig(), ranking.WithClock(clock))
	require.NoError(t, err)
	searcher := &fakeSearcher{results: []models.Candidate{candidate("d1", "email", "2024-03-01", 0.9)}}
	llm := &fakeLLM{answer: "The hotel is in Kraków."}
	engine := NewEngine(searcher, llm, ranker, WithHistory(stores.History), WithClock(clock))

	_, err = engine.Query(ctx, QueryRequest{Question: "where is the hotel"})
	require.Error(t, err)
	var up *UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, "history", up.Collaborator)

	convs, err := stores.History.ListConversations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, convs)
	var messages int
	require.NoError(t, stores.DB.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&messages))
	assert.Zero(t, messages)
}

func TestPipeline_ForgetSenderRemovesChunkDetails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	stores, err := storage.OpenAll(filepath.Join(dir, "twin.db"))
	require.NoError(t, err)
	defer stores.Close()

	emb := embedding.NewMockEmbedder(16)
	vectors, err := vector.NewMemoryStore(16)
	require.NoError(t, err)
	svc := search.NewService(emb, vectors, search.WithDetails(stores.Registry))
	defer svc.Close()

	chatPath := filepath.Join(dir, "chat.json")
	var chunks []search.Chunk
	var details []storage.ChunkDetail
	for i, sender := range []string{"Anna", "Ewa", "Anna"} {
		id := fmt.Sprintf("chat_%d", i)
		content := sender + " wrote message " + id
		vec, err := emb.Embed(ctx, content)
		require.NoError(t, err)
		chunks = append(chunks, search.Chunk{
			ID: id, DocumentID: "chat", Content: content, FilePath: chatPath, Vector: vec,
			Light: map[string]interface{}{"document_id": "chat", "source_type": "messenger", "sender": sender},
		})
		details = append(details, storage.ChunkDetail{
			ChunkID: id, DocumentID: "chat", SourceType: "messenger",
			Heavy: map[string]interface{}{"participants": "Anna, Ewa", "chat_name": "Family"},
		})
	}
	require.NoError(t, svc.Add(ctx, chunks))
	_, err = stores.Registry.StoreChunkDetails(ctx, details)
	require.NoError(t, err)

	forget := NewForgetService(svc, stores.History, stores.Registry, stores.Audit)
	res := forget.ForgetSender(ctx, "Anna", "")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.VectorsDeleted)
	assert.True(t, res.RegistryUpdated)

	left, err := stores.Registry.GetChunkDetails(ctx, []string{"chat_0", "chat_1", "chat_2"})
	require.NoError(t, err)
	assert.Len(t, left, 1)
	assert.Contains(t, left, "chat_1")
}
