package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type spreadsheet struct {
	text     string
	sheets   []string
	author   string
	modified time.Time
}

// extractExcel renders each sheet as rows of text. When the first row of a
// sheet names two or more columns, later rows become "column: value" pairs so
// a chunk keeps the meaning of its cells. Sheets after the first are
// introduced by a [name] line.
func extractExcel(content []byte) (*spreadsheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	out := &spreadsheet{sheets: f.GetSheetList()}
	var parts []string
	for i, sheet := range out.sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		body := renderRows(rows)
		if body == "" {
			continue
		}
		if i > 0 {
			body = "[" + sheet + "]\n" + body
		}
		parts = append(parts, body)
	}
	out.text = strings.Join(parts, "\n\n")

	if props, err := f.GetDocProps(); err == nil && props != nil {
		out.author = strings.TrimSpace(props.Creator)
		for _, s := range []string{props.Modified, props.Created} {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				out.modified = t
				break
			}
		}
	}
	return out, nil
}

func renderRows(rows [][]string) string {
	var lines []string
	var header []string
	if len(rows) > 1 && nonEmpty(rows[0]) >= 2 {
		header = rows[0]
		lines = append(lines, strings.Join(trimRow(rows[0]), "\t"))
		rows = rows[1:]
	}
	for _, row := range rows {
		row = trimRow(row)
		if len(row) == 0 {
			continue
		}
		if header == nil {
			lines = append(lines, strings.Join(row, "\t"))
			continue
		}
		pairs := make([]string, 0, len(row))
		for i, cell := range row {
			if cell == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				cell = strings.TrimSpace(header[i]) + ": " + cell
			}
			pairs = append(pairs, cell)
		}
		lines = append(lines, strings.Join(pairs, "; "))
	}
	return strings.Join(lines, "\n")
}

// trimRow drops trailing empty cells; a blank row becomes nil.
func trimRow(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

func nonEmpty(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}
