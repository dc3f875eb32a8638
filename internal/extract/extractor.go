// Package extract turns source files into records: text plus the metadata
// used for filtering, ranking and citation.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lu4p/cat"
)

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text and any metadata the
// format carries (page count, sheet names, HTML title).
func (e *Extractor) Extract(path string) (string, map[string]interface{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unknown extensions are
// read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, map[string]interface{}, error) {
	meta := map[string]interface{}{}
	if ext != "" {
		meta["file_type"] = strings.TrimPrefix(ext, ".")
	}
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		var doc *pdfDocument
		if doc, err = extractPDF(content); err == nil {
			text = doc.text
			meta["page_count"] = doc.pages
			setIf(meta, "title", doc.title)
			setIf(meta, "author", doc.author)
			if !doc.date.IsZero() {
				meta["date"] = doc.date.Local().Format(dateLayout)
			}
		}
	case ".docx":
		text, err = extractDOCX(content)
	case ".odt", ".rtf":
		text, err = cat.FromBytes(content)
		if err != nil {
			err = fmt.Errorf("extract %s: %w", strings.TrimPrefix(ext, "."), err)
		}
	case ".xlsx":
		var sheet *spreadsheet
		if sheet, err = extractExcel(content); err == nil {
			text = sheet.text
			meta["sheets"] = strings.Join(sheet.sheets, ", ")
			setIf(meta, "author", sheet.author)
			if !sheet.modified.IsZero() {
				meta["date"] = sheet.modified.Local().Format(dateLayout)
			}
		}
	case ".html", ".htm":
		var title string
		text, title, err = extractHTML(content)
		if title != "" {
			meta["title"] = title
		}
	case ".md", ".markdown":
		text, _ = extractPlain(content)
		if title := markdownTitle(text); title != "" {
			meta["title"] = title
		}
	default:
		text, err = extractPlain(content)
	}
	if err != nil {
		return "", nil, err
	}
	meta["char_count"] = len([]rune(text))
	return text, meta, nil
}

func setIf(meta map[string]interface{}, key, value string) {
	if value != "" {
		meta[key] = value
	}
}

// markdownTitle returns the text of the first level-one heading.
func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}
