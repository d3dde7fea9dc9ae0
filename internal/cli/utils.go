// Package cli provides the interactive session and output helpers for nearest.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/hyperjump/nearest/internal/models"
)

// OutputFormat is the format for query output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" and "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// WriteQueryResponse writes a query response to w in the given format.
func WriteQueryResponse(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	writeQueryResponseText(w, resp)
	return nil
}

func writeQueryResponseText(w io.Writer, resp *models.QueryResponse) {
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintf(w, "\n%s\n", resp.Query)
	for _, t := range resp.Skipped {
		fmt.Fprintf(w, "skipped %s %s: not in vocabulary\n", t.Op, t.Word)
	}
	if resp.Reference != nil {
		fmt.Fprintf(w, "\nsequential (%s):\n", formatMicros(resp.Timings.SequentialMicros))
		writeNeighbors(w, resp.Reference)
	}
	fmt.Fprintf(w, "\n%s (%s):\n", resp.Backend, formatMicros(resp.Timings.PrimaryMicros))
	writeNeighbors(w, resp.Neighbors)
	if resp.Agree != nil && !*resp.Agree {
		color.New(color.FgYellow).Fprintln(w, "\nwarning: backends returned different rankings")
	}
	fmt.Fprintln(w)
}

func writeNeighbors(w io.Writer, neighbors []models.Neighbor) {
	if len(neighbors) == 0 {
		fmt.Fprintln(w, "  (no neighbours)")
		return
	}
	width := 0
	for _, n := range neighbors {
		width = max(width, len(n.Word))
	}
	for _, n := range neighbors {
		fmt.Fprintf(w, "%3d. %-*s  %.4f\n", n.Rank, width, n.Word, n.Score)
	}
}

// WriteWordInfo writes a vocabulary lookup result.
func WriteWordInfo(w io.Writer, info models.WordInfo, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, info)
	}
	if !info.Found {
		fmt.Fprintf(w, "%q is not in the vocabulary\n", info.Word)
		if len(info.Suggestions) > 0 {
			fmt.Fprintf(w, "Did you mean: %s?\n", strings.Join(info.Suggestions, ", "))
		}
		return nil
	}
	fmt.Fprintf(w, "%s: index %d, norm %.4f\n", info.Word, info.Index, info.Norm)
	return nil
}

// WriteStatus writes the store summary.
func WriteStatus(w io.Writer, st models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Words:      %d\n", st.Words)
	fmt.Fprintf(w, "Dimensions: %d\n", st.Dimensions)
	fmt.Fprintf(w, "Norm:       %s\n", st.Norm)
	fmt.Fprintf(w, "Backend:    %s\n", st.Backend)
	fmt.Fprintf(w, "K:          %d\n", st.K)
	if st.Source != "" {
		fmt.Fprintf(w, "Source:     %s\n", st.Source)
	}
	if st.Stored > 0 {
		fmt.Fprintf(w, "Stored:     %d\n", st.Stored)
	}
	if st.ImportedAt != "" {
		fmt.Fprintf(w, "Imported:   %s\n", st.ImportedAt)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMicros(us int64) string {
	if us < 1000 {
		return fmt.Sprintf("%d us", us)
	}
	return fmt.Sprintf("%.2f ms", float64(us)/1000)
}
