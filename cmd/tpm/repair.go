package main

import "github.com/spf13/cobra"

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Recreate missing or stale symlinks and validate the store tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := appCtx.Repair()
		if err != nil {
			return err
		}
		cmd.Printf("repaired %d symlink(s)\n", report.SymlinksRepaired)
		for _, issue := range report.StoreIssues {
			cmd.PrintErrf("%s", formatter.Format(issue))
		}
		return nil
	},
}
