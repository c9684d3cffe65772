// Package cli implements the rollcall command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "rollcall",
	Short:        "Multi-factor presence verification and fraud detection",
	Long:         "Verifies attendance claims with a one-time code, a face embedding and proximity evidence, and locks out identities that keep failing.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
