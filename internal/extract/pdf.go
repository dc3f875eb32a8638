package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

type pdfDocument struct {
	text   string
	pages  int
	title  string
	author string
	date   time.Time
}

// extractPDF returns the text of every non-empty page, pages separated by a
// blank line, plus the Info dictionary fields used as metadata.
func extractPDF(content []byte) (*pdfDocument, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	doc := &pdfDocument{pages: r.NumPage()}
	var pages []string
	for i := 1; i <= doc.pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	doc.text = strings.Join(pages, "\n\n")

	info := r.Trailer().Key("Info")
	doc.title = strings.TrimSpace(info.Key("Title").Text())
	doc.author = strings.TrimSpace(info.Key("Author").Text())
	for _, key := range []string{"ModDate", "CreationDate"} {
		if t, ok := parsePDFDate(info.Key(key).Text()); ok {
			doc.date = t
			break
		}
	}
	return doc, nil
}

// parsePDFDate reads the D:YYYYMMDDHHmmSS prefix of a PDF date string. The
// timezone suffix is ignored and the time is taken as local.
func parsePDFDate(s string) (time.Time, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	for _, layout := range []string{"20060102150405", "200601021504", "20060102"} {
		if len(s) >= len(layout) {
			if t, err := time.ParseInLocation(layout, s[:len(layout)], time.Local); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
