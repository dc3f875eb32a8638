// Package vector stores chunk embeddings next to their light metadata and
// runs filtered similarity search over them.
package vector

import (
	"context"
	"errors"
	"strings"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// ErrEmptyFilter is returned when a delete is attempted without conditions.
var ErrEmptyFilter = errors.New("vector: delete requires at least one condition")

// Store defines vector storage, filtered search and filtered deletion.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, query []float32, k int, conds []Condition) ([]*Result, error)
	// Delete removes every point matching all conds and returns their ids.
	Delete(ctx context.Context, conds []Condition) ([]string, error)
	DeleteIDs(ctx context.Context, ids []string) (int, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// Point is one chunk embedding. Payload holds the light metadata only;
// FilePath is kept beside it so a file can be forgotten without loading
// the heavy half.
type Point struct {
	ID       string
	Vector   []float32
	Content  string
	FilePath string
	Payload  map[string]interface{}
}

// Result is a single search hit (ID is the chunk id).
type Result struct {
	ID      string
	Score   float64 // cosine similarity clamped to [0,1]
	Content string
	Payload map[string]interface{}
}

// MatchOp is how a Condition compares a payload value.
type MatchOp string

const (
	// MatchEquals requires the rendered value to equal Value.
	MatchEquals MatchOp = "eq"
	// MatchContains requires the value to contain Value, ignoring case.
	MatchContains MatchOp = "contains"
)

// FieldFilePath addresses Point.FilePath in conditions.
const FieldFilePath = "file_path"

// Condition is one payload predicate. Conditions are combined with AND.
type Condition struct {
	Field string
	Value string
	Op    MatchOp
}

// Eq builds an equality condition.
func Eq(field, value string) Condition {
	return Condition{Field: field, Value: value, Op: MatchEquals}
}

// Contains builds a case-insensitive substring condition.
func Contains(field, value string) Condition {
	return Condition{Field: field, Value: value, Op: MatchContains}
}

// Matches reports whether a point with the given payload and file path
// satisfies every condition. Missing fields never match.
func Matches(payload map[string]interface{}, filePath string, conds []Condition) bool {
	for _, c := range conds {
		var v string
		if c.Field == FieldFilePath {
			v = filePath
		} else {
			v = models.MetaString(payload, c.Field)
		}
		if v == "" {
			return false
		}
		switch c.Op {
		case MatchContains:
			if !strings.Contains(strings.ToLower(v), strings.ToLower(c.Value)) {
				return false
			}
		default:
			if v != c.Value {
				return false
			}
		}
	}
	return true
}
