package cmd

import (
	"github.com/spf13/cobra"

	"repoquery/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize repoquery configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure repoquery for your project and generates a .repoquery.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
