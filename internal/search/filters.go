package search

import (
	"sort"

	"github.com/flatplanetpl/poc-digital-twin/internal/vector"
)

// Filters narrows retrieval. SourceType must match exactly; Sender matches
// any sender containing it, ignoring case. Equals adds exact payload matches.
type Filters struct {
	SourceType string
	Sender     string
	Equals     map[string]string
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.SourceType == "" && f.Sender == "" && len(f.Equals) == 0
}

// Conditions renders the filters as vector store conditions in a stable order.
func (f Filters) Conditions() []vector.Condition {
	var conds []vector.Condition
	if f.SourceType != "" {
		conds = append(conds, vector.Eq("source_type", f.SourceType))
	}
	if f.Sender != "" {
		conds = append(conds, vector.Contains("sender", f.Sender))
	}
	keys := make([]string, 0, len(f.Equals))
	for k := range f.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		conds = append(conds, vector.Eq(k, f.Equals[k]))
	}
	return conds
}

// Labels returns the filters as field -> value, for reporting.
func (f Filters) Labels() map[string]string {
	out := make(map[string]string, len(f.Equals)+2)
	for k, v := range f.Equals {
		out[k] = v
	}
	if f.SourceType != "" {
		out["source_type"] = f.SourceType
	}
	if f.Sender != "" {
		out["sender"] = f.Sender
	}
	return out
}
