// Package cli provides the command-line interface for tgmigrate.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tgmigrate/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "tgmigrate",
	Short: "Copy the history of one Telegram channel into another",
	Long: "tgmigrate reads every message of a source channel, re-posts it to a destination " +
		"channel oldest first, and keeps a ledger so an interrupted run can be resumed.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tgmigrate %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultConfigDir, "directory holding config.yaml")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
