// Package cli implements the fanquest command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fanquest",
	Short: "fanquest: progression and rewards for fan communities",
	Long: `fanquest runs the progression engine behind a fan app: levels,
daily quests, collectible draws with pity, streaks, badges and leaderboards.

Run 'fanquest serve' to start the HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
