package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/app"
	"github.com/ziadkadry99/docqa/internal/tools"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a raw similarity search over the index",
	Long:  `Embeds the query and prints the nearest passages without calling the chat model.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntP("limit", "k", tools.DefaultTopK, "maximum number of results")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp(ctx, app.Components{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if a.Store.Count() == 0 {
		fmt.Fprintln(out, "Vector store is empty. Run `docqa index` or `docqa upload` first.")
		return nil
	}

	results, err := a.RAG.Search(ctx, strings.Join(args, " "), limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	if jsonOutput {
		return printSearchResultsJSON(out, results)
	}
	printSearchResultsTable(out, results)
	return nil
}

type searchResultJSON struct {
	Rank       int     `json:"rank"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
	Filename   string  `json:"filename"`
	Page       int     `json:"page,omitempty"`
	Text       string  `json:"text"`
}

func printSearchResultsJSON(w io.Writer, results []vectordb.SearchResult) error {
	out := make([]searchResultJSON, 0, len(results))
	for i, r := range results {
		out = append(out, searchResultJSON{
			Rank:       i + 1,
			Similarity: r.Similarity(),
			Source:     r.Metadata.Source,
			Filename:   r.Metadata.Filename,
			Page:       r.Metadata.Page,
			Text:       r.Text,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printSearchResultsTable(w io.Writer, results []vectordb.SearchResult) {
	fmt.Fprintf(w, "Found %d results:\n\n", len(results))
	for i, r := range results {
		location := r.Metadata.Filename
		if r.Metadata.Page > 0 {
			location = fmt.Sprintf("%s p.%d", location, r.Metadata.Page)
		}
		fmt.Fprintf(w, "  %d. [%.1f%%] %s\n", i+1, r.Similarity()*100, location)
		fmt.Fprintf(w, "     %s\n\n", truncate(strings.Join(strings.Fields(r.Text), " "), 120))
	}
}
