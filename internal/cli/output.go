// Package cli renders answers, search results and deletion reports for the
// command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/flatplanetpl/poc-digital-twin/internal/citation"
	"github.com/flatplanetpl/poc-digital-twin/internal/indexer"
	"github.com/flatplanetpl/poc-digital-twin/internal/models"
	"github.com/flatplanetpl/poc-digital-twin/internal/rag"
	"github.com/flatplanetpl/poc-digital-twin/internal/storage"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const fragmentWords = 30

var (
	heading = color.New(color.FgCyan, color.Bold)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	success = color.New(color.FgGreen)
	faint   = color.New(color.Faint)
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a grounded answer with its sources.
func WriteAnswer(w io.Writer, resp *models.GroundedResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)
	switch {
	case resp.NoContextFound:
		warning.Fprintln(w, "No relevant context was found for this question.")
	case !resp.IsGrounded:
		warning.Fprintln(w, "The answer does not cite its sources; verify it before relying on it.")
	}
	if len(resp.Filters) > 0 {
		faint.Fprintf(w, "Filters: %s\n", formatFilters(resp.Filters))
	}
	writeCitations(w, resp.Citations)
	faint.Fprintf(w, "Conversation %d, %dms\n", resp.ConversationID, resp.QueryTimeMS)
	if resp.Explanation != nil {
		heading.Fprintln(w, "\nExplanation")
		if err := writeJSON(w, resp.Explanation); err != nil {
			return err
		}
	}
	return nil
}

func writeCitations(w io.Writer, citations []models.Citation) {
	if len(citations) == 0 {
		return
	}
	heading.Fprintln(w, "Sources")
	for i, c := range citations {
		fmt.Fprintf(w, "  %d. %s\n", i+1, citation.FormatInline(c))
		if c.FilePath != "" {
			faint.Fprintf(w, "     %s (score %.3f)\n", c.FilePath, c.Score)
		}
	}
	fmt.Fprintln(w)
}

func formatFilters(filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + filters[k]
	}
	return strings.Join(parts, ", ")
}

// WriteSearchResults writes ranked fragments without an answer.
func WriteSearchResults(w io.Writer, res *rag.SearchResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "\nFound %d fragments", len(res.Documents))
	if res.PriorityRanking {
		fmt.Fprint(w, " (priority ranking)")
	}
	fmt.Fprintln(w)
	if len(res.Filters) > 0 {
		faint.Fprintf(w, "Filters: %s\n", formatFilters(res.Filters))
	}
	fmt.Fprintln(w)
	for i, doc := range res.Documents {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		heading.Fprintf(w, "%d. %s", i+1, models.MetaStringOr(doc.Metadata, "filename", doc.ID))
		fmt.Fprintf(w, " [%s, %s]\n",
			models.MetaStringOr(doc.Metadata, "source_type", "unknown"),
			models.MetaStringOr(doc.Metadata, "date", "undated"))
		fmt.Fprintf(w, "Score: %.4f (similarity %.4f, priority %.4f)\n",
			doc.WeightedScore, doc.Similarity, doc.Priority.Score)
		fmt.Fprintf(w, "\n%s\n\n", TruncateWords(doc.Content, fragmentWords))
	}
	return nil
}

// WriteForgetResult writes the outcome of a deletion.
func WriteForgetResult(w io.Writer, res *models.ForgetResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	target := res.EntityValue
	if target == "" {
		target = res.DocumentID
	}
	if !res.Success {
		failure.Fprintf(w, "✗ Failed to forget %s %q: %s\n", res.EntityType, target, res.Error)
		fmt.Fprintf(w, "  Removed before the failure: %d vectors, %d chat references\n",
			res.VectorsDeleted, res.ChatReferencesRemoved)
		return nil
	}
	success.Fprintf(w, "✓ Forgot %s %q\n", res.EntityType, target)
	fmt.Fprintf(w, "  Vectors deleted:         %d\n", res.VectorsDeleted)
	fmt.Fprintf(w, "  Chat references removed: %d\n", res.ChatReferencesRemoved)
	fmt.Fprintf(w, "  Registry updated:        %t\n", res.RegistryUpdated)
	if res.AuditID != 0 {
		faint.Fprintf(w, "  Audit entry %d\n", res.AuditID)
	}
	return nil
}

// WriteDeletionReport writes the deletion summary of a period.
func WriteDeletionReport(w io.Writer, report *storage.DeletionReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	heading.Fprintf(w, "Deletions %s to %s\n",
		report.PeriodStart.Format("2006-01-02"), report.PeriodEnd.Format("2006-01-02"))
	fmt.Fprintf(w, "  Total deletions: %d\n", report.TotalDeletions)
	fmt.Fprintf(w, "  Chunks deleted:  %d\n", report.TotalChunksDeleted)
	if len(report.ByReason) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(report.ByReason))
	for r := range report.ByReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	fmt.Fprintln(w, "  By reason:")
	for _, r := range reasons {
		fmt.Fprintf(w, "    %-20s %d\n", r, report.ByReason[r])
	}
	return nil
}

// WriteIndexSummary writes the totals of an indexing run.
func WriteIndexSummary(w io.Writer, sum *indexer.Summary) {
	success.Fprintf(w, "✓ Indexed %d file(s), %d chunks\n", sum.Indexed, sum.Chunks)
	if sum.Skipped > 0 {
		fmt.Fprintf(w, "  Unchanged: %d\n", sum.Skipped)
	}
	if sum.Failed > 0 {
		failure.Fprintf(w, "  Failed:    %d\n", sum.Failed)
	}
}

// WriteFileResult writes one failed or indexed file of a run.
func WriteFileResult(w io.Writer, res indexer.FileResult) {
	switch {
	case res.Err != nil:
		failure.Fprintf(w, "✗ %s: %v\n", res.Path, res.Err)
	case res.Skipped:
		faint.Fprintf(w, "- %s (unchanged)\n", res.Path)
	default:
		fmt.Fprintf(w, "+ %s [%s] %d chunks\n", res.Path, res.SourceType, res.Chunks)
	}
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
