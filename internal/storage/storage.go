// Package storage persists the document registry, heavy chunk metadata, chat
// history and the privacy-safe audit log in a single SQLite database.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrContentInAudit is returned when audit details look like user content.
	ErrContentInAudit = errors.New("audit details must not contain content")
)

// timeLayout keeps stored timestamps lexicographically ordered.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}

// Open opens or creates a SQLite database at dbPath with WAL journaling and
// foreign keys enabled. Parent directories are created if they do not exist.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return db, nil
}

// Stores bundles every store backed by one database.
type Stores struct {
	DB       *sql.DB
	Registry *Registry
	History  *History
	Audit    *Auditor
}

// OpenAll opens the database at dbPath and initializes every store.
func OpenAll(dbPath string, auditOpts ...AuditOption) (*Stores, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	registry, err := NewRegistry(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	history, err := NewHistory(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	audit, err := NewAuditor(db, auditOpts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Stores{DB: db, Registry: registry, History: history, Audit: audit}, nil
}

// Close closes the database connection.
func (s *Stores) Close() error {
	return s.DB.Close()
}
