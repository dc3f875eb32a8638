package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flatplanetpl/poc-digital-twin/internal/models"
)

// dateLayout is the local ISO timestamp stored in record metadata.
const dateLayout = "2006-01-02T15:04:05"

// DefaultGroupWindow joins chat messages from one sender sent within it.
const DefaultGroupWindow = 5 * time.Minute

// Source types assigned by the loader.
const (
	SourceText          = "text"
	SourceEmail         = "email"
	SourceMessenger     = "messenger"
	SourceWhatsApp      = "whatsapp"
	SourceProfile       = "profile"
	SourceContacts      = "contacts"
	SourceLocation      = "location"
	SourceSearchHistory = "search_history"
	SourceInterests     = "interests"
)

var supportedExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true,
	".eml": true, ".mbox": true,
	".json": true,
	".pdf":  true, ".docx": true, ".odt": true, ".rtf": true,
	".xlsx": true, ".html": true, ".htm": true,
}

// SupportedExtensions returns the file extensions Load understands.
func SupportedExtensions() []string {
	out := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		out = append(out, ext)
	}
	return out
}

// Loader reads a source file into records.
type Loader struct {
	extractor      *Extractor
	groupWindow    time.Duration
	whatsAppWindow time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithGroupWindow sets the messenger grouping window.
func WithGroupWindow(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.groupWindow = d
		}
	}
}

// WithWhatsAppGroupWindow sets the WhatsApp grouping window.
func WithWhatsAppGroupWindow(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.whatsAppWindow = d
		}
	}
}

// WithClock sets the time source for indexed_at and for records without a
// date of their own.
func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.logger = log
		}
	}
}

// NewLoader returns a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		extractor:      NewExtractor(),
		groupWindow:    DefaultGroupWindow,
		whatsAppWindow: DefaultWhatsAppGroupWindow,
		now:            time.Now,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supports reports whether path has an extension Load understands.
func (l *Loader) Supports(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Load reads the file at path and returns its records. Every record carries
// source_type, filename, the absolute file_path and indexed_at. Known
// Facebook export files are dispatched by name; any other JSON file that is
// not a Messenger export yields no records. A .txt file holding a WhatsApp
// chat export is read as chat messages.
func (l *Loader) Load(ctx context.Context, path string) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(abs))
	if !supportedExtensions[ext] {
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", abs)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var (
		records    []models.Record
		sourceType string
	)
	switch {
	case ext == ".eml":
		sourceType = SourceEmail
		rec, err := parseEmail(content, info.ModTime())
		if err != nil {
			return nil, err
		}
		records = []models.Record{rec}
	case ext == ".mbox":
		sourceType = SourceEmail
		for i, raw := range splitMbox(content) {
			rec, err := parseEmail(raw, info.ModTime())
			if err != nil {
				l.logger.Warn("skipping unreadable message",
					zap.String("path", abs), zap.Int("index", i), zap.Error(err))
				continue
			}
			records = append(records, rec)
		}
	case ext == ".json":
		if export, ok := facebookExports[filepath.Base(abs)]; ok {
			sourceType = export.source
			records, err = export.parse(content, l.now())
		} else {
			sourceType = SourceMessenger
			records, err = parseMessenger(content, l.groupWindow)
		}
		if err != nil {
			return nil, err
		}
	case ext == ".txt" && isWhatsAppExport(abs, content):
		sourceType = SourceWhatsApp
		records = parseWhatsApp(content, whatsAppChatName(abs), l.whatsAppWindow, l.now())
	default:
		sourceType = SourceText
		text, md, err := l.extractor.ExtractBytes(content, ext)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		if _, ok := md["date"]; !ok {
			md["date"] = info.ModTime().Local().Format(dateLayout)
		}
		records = []models.Record{{Content: text, Metadata: md}}
	}

	indexedAt := l.now().Local().Format(dateLayout)
	for i := range records {
		md := records[i].Metadata
		if md == nil {
			md = map[string]interface{}{}
			records[i].Metadata = md
		}
		md["source_type"] = sourceType
		md["filename"] = filepath.Base(abs)
		md["file_path"] = abs
		md["indexed_at"] = indexedAt
	}
	l.logger.Debug("loaded file",
		zap.String("path", abs),
		zap.String("source_type", sourceType),
		zap.Int("records", len(records)))
	return records, nil
}
