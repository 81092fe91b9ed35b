package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/app"
	"github.com/ziadkadry99/docqa/internal/pipeline"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <files...>",
	Short: "Upload documents through the ingestion pipeline",
	Long: `Stages each file, rejects duplicates by name, moves the rest to the
accepted store and indexes them. The command fails if any file is not indexed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := openApp(ctx, app.Components{})
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	for _, path := range args {
		res := uploadFile(ctx, a.Pipeline, path)
		status := "ok"
		if !res.Success {
			status = string(res.State)
			failed++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s: %s\n", status, filepath.Base(path), res.Message)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) were not indexed", failed, len(args))
	}
	return nil
}

func uploadFile(ctx context.Context, p *pipeline.Pipeline, path string) pipeline.UploadResult {
	f, err := os.Open(path)
	if err != nil {
		return pipeline.UploadResult{Message: err.Error(), Namespace: pipeline.NamespaceError, State: pipeline.StateFailed}
	}
	defer f.Close()
	return p.HandleUpload(ctx, filepath.Base(path), f)
}
