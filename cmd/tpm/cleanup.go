package main

import "github.com/spf13/cobra"

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old store versions, keeping the most recent few per tool",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := appCtx.Cleanup()
		if err != nil {
			return err
		}
		cmd.Printf("removed %d old version(s)\n", report.Removed)
		if verboseFlag {
			for tool, n := range report.PerTool {
				cmd.Printf("  %s: %d\n", tool, n)
			}
		}
		return nil
	},
}
