package citation

import (
	"strings"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// GroundedTemplate instructs the model to answer only from context and cite every fact.
const GroundedTemplate = `You are a personal data assistant. You MUST ONLY answer based on the provided context from the user's indexed data.

CRITICAL RULES:
1. ONLY use information explicitly stated in the context below
2. If the context does not contain relevant information, respond: "I could not find this information in your data."
3. NEVER use knowledge from your training data - only the provided context
4. ALWAYS cite your sources using the format: [Source: {source_type}, {date}, "{brief_quote}"]
5. Be specific about which source each fact comes from

Context from user's data:
{context_str}

User's question: {query_str}

Answer using ONLY the context above. Include inline citations for every fact:`

// BuildPrompt fills the grounded template.
func BuildPrompt(context, question string) string {
	r := strings.NewReplacer("{context_str}", context, "{query_str}", question)
	return r.Replace(GroundedTemplate)
}

// WithHistory prefixes question with previous turns of the conversation.
func WithHistory(question string, history []models.Message) string {
	if len(history) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, m := range history {
		role := "Assistant"
		if m.Role == models.RoleUser {
			role = "User"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nCurrent question: ")
	b.WriteString(question)
	return b.String()
}
