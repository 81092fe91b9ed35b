package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- Result %d (similarity: %.3f) ---\n", i+1, r.Similarity()))

		if r.Metadata.Source != "" {
			location := r.Metadata.Source
			if r.Metadata.Page > 0 {
				location += fmt.Sprintf(" (page %d)", r.Metadata.Page)
			}
			sb.WriteString(fmt.Sprintf("File: %s\n", location))
		}

		sb.WriteString("\n")
		sb.WriteString(r.Text)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
