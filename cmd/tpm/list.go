package main

import "github.com/spf13/cobra"

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		records := appCtx.List()
		if len(records) == 0 {
			cmd.Println("no tools installed")
			return nil
		}
		for _, rec := range records {
			if verboseFlag {
				cmd.Printf("%s\t%s\t%s\n", rec.Tool, rec.Version, rec.SymlinkPath)
				continue
			}
			cmd.Printf("%s\t%s\n", rec.Tool, rec.Version)
		}
		return nil
	},
}
