package indexer

import (
	"strings"
	"unicode"

	"github.com/flatplanetpl/poc-digital-twin/internal/fileid"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// Chunker splits text into overlapping windows measured in runes. Windows
// end at whitespace when one is available in their second half.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in runes).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Split returns the text windows. Blank text yields nil.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []string{text}
	}
	var out []string
	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes[start:end]); cut > c.chunkSize/2 {
			end = start + cut
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		if end >= len(runes) {
			break
		}
		next := end - c.chunkOverlap
		if next <= start {
			next = end
		}
		// Start the overlap on a word boundary when the overlap has one.
		if !unicode.IsSpace(runes[next-1]) {
			for i := next; i < end; i++ {
				if unicode.IsSpace(runes[i]) {
					next = i + 1
					break
				}
			}
		}
		start = next
	}
	return out
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// Chunk splits text into DocumentChunks numbered from first.
func (c *Chunker) Chunk(docID string, first int, text string) []*models.DocumentChunk {
	parts := c.Split(text)
	if len(parts) == 0 {
		return nil
	}
	chunks := make([]*models.DocumentChunk, len(parts))
	for i, p := range parts {
		chunks[i] = &models.DocumentChunk{
			ID:         fileid.ChunkID(docID, first+i),
			DocumentID: docID,
			Content:    p,
			ChunkIndex: first + i,
		}
	}
	return chunks
}
