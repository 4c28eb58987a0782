package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reporttrack/internal/cli/commands"
)

var rootCmd = &cobra.Command{
	Use:   "reporttrack",
	Short: "ReportTrack CLI - regulatory reporting tracker",
	Long: `ReportTrack CLI is a command-line client for the ReportTrack API.
It manages report definitions and instances, alerts and compliance statistics.

Set REPORTTRACK_API_URL and REPORTTRACK_TOKEN before use.`,
	SilenceUsage: true,
}

func init() {
	// Add commands
	rootCmd.AddCommand(commands.NewLoginCommand())
	rootCmd.AddCommand(commands.NewDefinitionCommand())
	rootCmd.AddCommand(commands.NewInstanceCommand())
	rootCmd.AddCommand(commands.NewAlertCommand())
	rootCmd.AddCommand(commands.NewStatsCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
