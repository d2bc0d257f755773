package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateAllFlag bool

var updateCmd = &cobra.Command{
	Use:   "update [owner/repo]",
	Short: "Update a tool, or every installed tool with --all, to its latest release",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if updateAllFlag {
			results := appCtx.UpdateAll(cmd.Context())
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					cmd.PrintErrf("%s", formatter.Format(r.Err))
					continue
				}
				cmd.Printf("%s: %s\n", r.Tool, updateStatus(r.Updated))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tools failed to update", failed, len(results))
			}
			return nil
		}

		if len(args) != 1 {
			return cobra.ExactArgs(1)(cmd, args)
		}
		if err := appCtx.Update(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("updated %s\n", args[0])
		return nil
	},
}

func updateStatus(updated bool) string {
	if updated {
		return "updated"
	}
	return "already up to date"
}

func init() {
	updateCmd.Flags().BoolVar(&updateAllFlag, "all", false, "Update every installed tool")
}
