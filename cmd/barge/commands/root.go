// Package commands implements the barge CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "barge",
		Short: "Barge - group-chat attention daemon",
		Long: `Barge decides when a conversational agent should speak in a group
chat without being addressed: immersive follow-ups after a reply,
and proactive interjections judged over buffered group traffic.

Examples:
  barge setup
  barge serve
  barge serve --config ./config.yaml --verbose`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSetupCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
