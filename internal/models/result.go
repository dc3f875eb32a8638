package models

import "time"

// Citation points an answer back to the fragment it was built from.
type Citation struct {
	DocumentID string                 `json:"document_id"`
	SourceType string                 `json:"source_type"`
	Filename   string                 `json:"filename"`
	FilePath   string                 `json:"file_path"`
	Fragment   string                 `json:"fragment"`
	Date       string                 `json:"date"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// GroundedResponse is the answer to one question plus its grounding flags.
// IsGrounded and NoContextFound are heuristics, not proofs.
type GroundedResponse struct {
	Answer         string            `json:"answer"`
	Citations      []Citation        `json:"citations"`
	IsGrounded     bool              `json:"is_grounded"`
	NoContextFound bool              `json:"no_context_found"`
	ConversationID int64             `json:"conversation_id"`
	QueryTimeMS    int64             `json:"query_time_ms"`
	Filters        map[string]string `json:"filters_applied,omitempty"`
	Explanation    interface{}       `json:"explanation,omitempty"`
}

// ForgetResult reports what a deletion call removed. Counts reflect the steps
// that completed before any failure.
type ForgetResult struct {
	Success               bool   `json:"success"`
	Error                 string `json:"error,omitempty"`
	DocumentID            string `json:"document_id,omitempty"`
	EntityType            string `json:"entity_type,omitempty"`
	EntityValue           string `json:"entity_value,omitempty"`
	VectorsDeleted        int    `json:"vectors_deleted"`
	ChatReferencesRemoved int    `json:"chat_references_removed"`
	RegistryUpdated       bool   `json:"registry_updated"`
	AuditID               int64  `json:"audit_id,omitempty"`
}

// Conversation is a stored chat thread.
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role of a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. Sources holds the citations the
// assistant answer was built from.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	Sources        []Citation `json:"sources,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}
