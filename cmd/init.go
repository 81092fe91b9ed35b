package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize docqa configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose model providers and storage and generates a .docqa.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
