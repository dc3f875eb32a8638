// Package models defines core data structures for documents, queries, answers and deletions.
package models

import "time"

// DocumentStatus is the lifecycle state of a tracked document.
type DocumentStatus string

const (
	StatusActive   DocumentStatus = "active"
	StatusDeleted  DocumentStatus = "deleted"
	StatusArchived DocumentStatus = "archived"
)

// TrackedDocument is a source file registered in the document registry.
type TrackedDocument struct {
	ID              string                 `json:"id" db:"id"`
	FilePath        string                 `json:"file_path" db:"file_path"`
	ContentHash     string                 `json:"content_hash" db:"content_hash"`
	SourceType      string                 `json:"source_type" db:"source_type"`
	ChunkCount      int                    `json:"chunk_count" db:"chunk_count"`
	EmbeddingModel  string                 `json:"embedding_model" db:"embedding_model"`
	MetadataVersion int                    `json:"metadata_version" db:"metadata_version"`
	FirstIndexedAt  time.Time              `json:"first_indexed_at" db:"first_indexed_at"`
	LastIndexedAt   time.Time              `json:"last_indexed_at" db:"last_indexed_at"`
	Status          DocumentStatus         `json:"status" db:"status"`
	Metadata        map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// Record is one unit of content produced by a loader, before chunking.
type Record struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// DocumentChunk is a chunk of a record, the unit stored in the vector index.
type DocumentChunk struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Content    string                 `json:"content"`
	ChunkIndex int                    `json:"chunk_index"`
	Metadata   map[string]interface{} `json:"metadata"`
	Embedding  []float32              `json:"-"`
}

// Candidate is a retrieved fragment with its similarity to the query in [0, 1].
type Candidate struct {
	ID         string                 `json:"id,omitempty"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Similarity float64                `json:"similarity_score"`
}
