package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/app"
	"github.com/ziadkadry99/docqa/internal/blob"
)

var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "List accepted documents",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		a, err := openApp(ctx, app.Components{})
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.Pipeline.Documents(ctx)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No documents uploaded.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tINDEXED\tMODIFIED\tURL")
		for _, d := range docs {
			fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n",
				d.Name, d.Size, d.Indexed, d.ModTime.Format("2006-01-02 15:04"), a.URLs.URL(d.Name))
		}
		return tw.Flush()
	},
}

var documentsRmCmd = &cobra.Command{
	Use:   "rm <name...>",
	Short: "Remove documents and their index records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		a, err := openApp(ctx, app.Components{})
		if err != nil {
			return err
		}
		defer a.Close()

		var errs []error
		for _, name := range args {
			n, err := a.Pipeline.RemoveDocument(ctx, name)
			if errors.Is(err, blob.ErrNotFound) {
				errs = append(errs, fmt.Errorf("%s: not found", name))
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%d record(s))\n", name, n)
		}
		return errors.Join(errs...)
	},
}

func init() {
	documentsCmd.AddCommand(documentsRmCmd)
	rootCmd.AddCommand(documentsCmd)
}
