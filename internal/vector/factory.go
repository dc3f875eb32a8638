package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Backend names a vector store implementation.
type Backend string

const (
	// BackendMemory keeps vectors in memory and persists them to a file.
	BackendMemory Backend = "memory"
	// BackendPGVector keeps vectors in Postgres with the pgvector extension.
	BackendPGVector Backend = "pgvector"
)

// Options selects and configures a Store.
type Options struct {
	Backend    string
	Dimensions int
	DSN        string
	Table      string
	Logger     *zap.Logger
}

// NewStore creates a vector store of the requested backend.
// Supported backends: "memory" (default), "pgvector".
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch Backend(opts.Backend) {
	case BackendMemory, "":
		return NewMemoryStore(opts.Dimensions, WithMemoryLogger(opts.Logger))
	case BackendPGVector:
		if opts.DSN == "" {
			return nil, fmt.Errorf("pgvector backend requires a dsn")
		}
		return NewPGStore(ctx, PGConfig{DSN: opts.DSN, Table: opts.Table, Dimensions: opts.Dimensions},
			WithPGLogger(opts.Logger))
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (supported: memory, pgvector)", opts.Backend)
	}
}
