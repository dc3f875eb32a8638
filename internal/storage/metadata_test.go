package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitMetadata(t *testing.T) {
	md := map[string]interface{}{
		"document_id":  "doc-1",
		"source_type":  "messenger",
		"date":         "2024-01-15T10:30:00",
		"sender":       "Anna",
		"file_path":    "/data/inbox/anna/message_1.json",
		"is_pinned":    true,
		"participants": "Anna, Jan",
		"short_custom": "tag",
		"long_custom":  strings.Repeat("x", 101),
	}

	light, heavy := SplitMetadata(md)

	for _, k := range []string{"document_id", "source_type", "date", "sender", "short_custom"} {
		assert.Contains(t, light, k)
	}
	for _, k := range []string{"file_path", "is_pinned", "participants", "long_custom"} {
		assert.Contains(t, heavy, k)
		assert.NotContains(t, light, k)
	}
	assert.Equal(t, "doc-1", heavy["document_id"])
	assert.NotContains(t, heavy, "sender")
}

func TestSplitMetadata_BoundaryLength(t *testing.T) {
	light, heavy := SplitMetadata(map[string]interface{}{"note": strings.Repeat("y", 100)})
	assert.Contains(t, light, "note")
	assert.Empty(t, heavy)
}

func TestMergeMetadata_RoundTrip(t *testing.T) {
	inputs := []map[string]interface{}{
		{},
		{"document_id": "d"},
		{"source_type": "email", "filename": "a.eml", "sender": "Jan", "message_count": 3},
		{"document_id": "d", "extra": strings.Repeat("z", 300), "city": "Kraków", "is_approved": false},
	}
	for _, md := range inputs {
		light, heavy := SplitMetadata(md)
		assert.Equal(t, md, MergeMetadata(light, heavy))
	}
}

func TestMergeMetadata_HeavyWins(t *testing.T) {
	got := MergeMetadata(map[string]interface{}{"k": "light", "a": 1}, map[string]interface{}{"k": "heavy"})
	assert.Equal(t, map[string]interface{}{"k": "heavy", "a": 1}, got)
	assert.Equal(t, map[string]interface{}{"a": 1}, MergeMetadata(map[string]interface{}{"a": 1}, nil))
}
