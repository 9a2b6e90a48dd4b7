package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the erdbridge CLI. Subcommands (deploy,
// rollback, history) are attached here.
var rootCmd = &cobra.Command{
	Use:           "erdbridge",
	Short:         "Deploy ERD-derived schemas to a Dataverse environment",
	Long:          "Deployment utilities for ERD-derived schemas: deploy descriptors, roll deployments back, inspect history.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
