package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/app"
	mcpserver "github.com/ziadkadry99/docqa/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long: `Starts a Model Context Protocol (MCP) server on stdio, exposing document
search, web search, document listing and index statistics to AI agents.
Without a chat model key, search_documents returns raw passages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := commandContext(cmd)
		defer stop()

		a, err := openApp(ctx, app.Components{Chat: true})
		if err != nil {
			// Search still works from the index alone.
			fmt.Fprintf(os.Stderr, "Warning: chat model unavailable (%v); serving raw search\n", err)
			if a, err = openApp(ctx, app.Components{}); err != nil {
				return err
			}
		}
		defer a.Close()

		mcpserver.Version = Version
		fmt.Fprintf(os.Stderr, "docqa MCP server started on stdio (records=%d)\n", a.Store.Count())

		srv := mcpserver.NewServer(mcpserver.Deps{
			RAG:       a.RAG,
			Grounding: a.Grounding,
			Pipeline:  a.Pipeline,
			Store:     a.Store,
		})
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
