package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/app"
	"github.com/ziadkadry99/docqa/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API: question answering (JSON and websocket streaming),
document upload and removal, index maintenance, thread history and speech.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	a, err := openApp(ctx, app.All)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		a.Config.Server.Addr = addr
	}

	srv := server.New(a)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("shutdown", zap.Error(err))
		return err
	}
	return nil
}
