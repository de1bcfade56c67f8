package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rendis/cmdkit/internal/workflows"
	"github.com/rendis/cmdkit/pkg/schema"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// printWarnings writes validation warnings, one per line.
func printWarnings(w io.Writer, result *schema.ValidationResult) {
	if result == nil {
		return
	}
	for _, issue := range result.Issues() {
		if issue.Severity == schema.SeverityWarning {
			fmt.Fprintf(w, "warning: %s\n", issue)
		}
	}
}

// varsFlag parses a --vars value, returning nil for an empty flag.
func varsFlag(spec string) (map[string]string, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}
	return workflows.ParseVars(spec)
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
