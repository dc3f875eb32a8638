package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/flatplanetpl/poc-digital-twin/pkg/utils"
)

// extractHTML returns the visible text of an HTML document and its title.
// Script, style and noscript elements are dropped.
func extractHTML(content []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", "", fmt.Errorf("parse HTML: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, head").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	var lines []string
	root.Find("p, li, h1, h2, h3, h4, h5, h6, td, pre, blockquote, div").Each(func(_ int, s *goquery.Selection) {
		// Leaf blocks only; containers are covered by their children.
		if s.Find("p, li, h1, h2, h3, h4, h5, h6, td, pre, blockquote, div").Length() > 0 {
			return
		}
		if text := utils.CollapseWhitespace(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		if text := utils.CollapseWhitespace(root.Text()); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), title, nil
}
