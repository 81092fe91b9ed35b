package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/app"
	"github.com/ziadkadry99/docqa/internal/pipeline"
	"github.com/ziadkadry99/docqa/internal/progress"
)

var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Index every PDF and text file under a directory",
	Long: `Walks the directory, extracts, chunks and embeds every supported file and
writes the records to the vector index. Files whose content has not changed
since the last run are skipped unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().Bool("force", false, "re-index unchanged files")
	indexCmd.Flags().Bool("sync", false, "remove records of deleted files afterwards")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	force, _ := cmd.Flags().GetBool("force")
	sync, _ := cmd.Flags().GetBool("sync")

	a, err := openApp(ctx, app.Components{})
	if err != nil {
		return err
	}
	defer a.Close()

	rep := progress.NewReporter("Indexing")
	res, err := a.Pipeline.ProcessFolder(ctx, args[0], pipeline.FolderOptions{
		Force:    force,
		Progress: progress.Func(rep),
	})
	rep.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d file(s), skipped %d unchanged, %d failed: %d chunk(s) in %s\n",
		res.FilesProcessed, res.FilesSkipped, res.FilesFailed, res.ChunksAdded, res.Duration.Round(time.Millisecond))
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  error: %v\n", e)
	}

	if sync {
		stats, err := a.Store.SyncWithFilesystem(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		fmt.Fprintf(out, "Removed %d record(s) of %d missing file(s)\n", stats.Deleted, stats.MissingSources)
	}

	if res.FilesFailed > 0 {
		return fmt.Errorf("%d file(s) failed to index", res.FilesFailed)
	}
	return nil
}
