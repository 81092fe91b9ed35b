package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/app"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Remove index records whose files no longer exist",
	Long: `Garbage-collects the index: records whose source file is gone are
deleted. Files indexed from any folder are kept while they exist.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		a, err := openApp(ctx, app.Components{})
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Store.SyncWithFilesystem(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sources: %d, missing: %d, records deleted: %d, remaining: %d\n",
			stats.TotalSources, stats.MissingSources, stats.Deleted, stats.Remaining)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		jsonOutput, _ := cmd.Flags().GetBool("json")

		a, err := openApp(ctx, app.Components{})
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Store.Stats(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Fprintf(out, "Collection:      %s\n", stats.Collection)
		if stats.Dir != "" {
			fmt.Fprintf(out, "Directory:       %s\n", stats.Dir)
		}
		fmt.Fprintf(out, "Records:         %d\n", stats.TotalRecords)
		fmt.Fprintf(out, "Sources:         %d\n", stats.UniqueSources)
		fmt.Fprintf(out, "Dimensions:      %d\n", stats.Dimensions)
		fmt.Fprintf(out, "Avg text length: %.0f\n", stats.AvgTextLength)

		exts := make([]string, 0, len(stats.Extensions))
		for ext, n := range stats.Extensions {
			exts = append(exts, fmt.Sprintf("%s=%d", ext, n))
		}
		sort.Strings(exts)
		fmt.Fprintf(out, "Extensions:      %s\n", strings.Join(exts, " "))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every record in the index",
	Long:  `Drops the vector collection and its ledger. Uploaded files are kept; run "docqa index" on the accepted store to rebuild.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			confirm := promptui.Prompt{
				Label:     "Delete all index records",
				IsConfirm: true,
			}
			if _, err := confirm.Run(); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		a, err := openApp(ctx, app.Components{})
		if err != nil {
			return err
		}
		defer a.Close()

		cleared, err := a.Store.Clear(ctx)
		if err != nil {
			return err
		}
		if !cleared {
			fmt.Fprintln(cmd.OutOrStdout(), "Index was already empty.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Index cleared.")
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "output statistics as JSON")
	clearCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(syncCmd, statsCmd, clearCmd)
}
