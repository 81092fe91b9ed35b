package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/extractor"
)

var extractCmd = &cobra.Command{
	Use:   "extract <path>",
	Short: "Show the text and chunks a file or folder yields, without indexing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		showChunks, _ := cmd.Flags().GetBool("chunks")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ex := extractor.New(extractor.WithFilters(cfg.Ingest.Include, cfg.Ingest.Exclude))

		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		var segments []extractor.Segment
		if info.IsDir() {
			res, err := ex.ExtractFolder(ctx, args[0])
			if err != nil {
				return err
			}
			for _, f := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %v\n", f.Path, f.Err)
			}
			segments = res.Segments
		} else if segments, err = ex.Extract(args[0]); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !showChunks {
			for _, s := range segments {
				fmt.Fprintf(out, "%s [segment %d, page %d, %d chars]\n", s.Filename, s.Index, s.Page, len(s.Content))
			}
			fmt.Fprintf(out, "%d segment(s)\n", len(segments))
			return nil
		}

		ch, err := chunker.New(
			chunker.WithChunkSize(cfg.Chunking.Size),
			chunker.WithOverlap(cfg.Chunking.Overlap),
		)
		if err != nil {
			return err
		}
		chunks := ch.Chunk(segments)
		for _, c := range chunks {
			fmt.Fprintf(out, "--- %s #%d (%d chars)\n%s\n", c.Filename, c.Ordinal, len(c.Content), c.Content)
		}
		fmt.Fprintf(out, "%d chunk(s) from %d segment(s)\n", len(chunks), len(segments))
		return nil
	},
}

func init() {
	extractCmd.Flags().Bool("chunks", false, "print the chunks instead of a segment summary")
	rootCmd.AddCommand(extractCmd)
}
