package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultBody  = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// Run text, with or without attributes such as xml:space.
	docxText = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	// Paragraph ends and explicit breaks.
	docxBreak = regexp.MustCompile(`</w:p>|<w:br\s*/>|<w:tab\s*/>`)
	// Override entry for the main part, in either attribute order.
	docxOverride = regexp.MustCompile(`<Override\s[^>]*>`)
	docxAttr     = regexp.MustCompile(`(PartName|ContentType)="([^"]+)"`)
)

// extractDOCX returns the text of a .docx file, one line per paragraph.
// Paragraph elements with attributes (w:rsidR and friends) are handled.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract docx: not a zip archive: %w", err)
	}
	body := docxDefaultBody
	if types, err := readZipFile(zr, docxContentTypes); err == nil {
		if p := docxMainPart(types); p != "" {
			body = p
		}
	}
	doc, err := readZipFile(zr, body)
	if err != nil {
		return "", fmt.Errorf("extract docx: %w", err)
	}

	var lines []string
	for _, para := range docxBreak.Split(string(doc), -1) {
		var b strings.Builder
		for _, m := range docxText.FindAllStringSubmatch(para, -1) {
			b.WriteString(html.UnescapeString(m[1]))
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// docxMainPart returns the main document part named in [Content_Types].xml,
// without its leading slash.
func docxMainPart(types []byte) string {
	for _, o := range docxOverride.FindAll(types, -1) {
		var part, ctype string
		for _, a := range docxAttr.FindAllSubmatch(o, -1) {
			switch string(a[1]) {
			case "PartName":
				part = string(a[2])
			case "ContentType":
				ctype = string(a[2])
			}
		}
		if ctype == docxMainType {
			return strings.TrimPrefix(part, "/")
		}
	}
	return ""
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
