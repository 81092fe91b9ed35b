package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/config"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Question answering over your documents",
	Long: `docqa ingests PDF and text documents into a vector index and answers
questions about them with a tool-using agent. When the documents do not
cover a question it falls back to a cited web answer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// API keys usually live in .env next to the config.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with API keys")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
