package main

import "github.com/spf13/cobra"

var removeCmd = &cobra.Command{
	Use:     "remove <owner/repo>",
	Aliases: []string{"rm", "uninstall"},
	Short:   "Remove an installed tool",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appCtx.Remove(args[0]); err != nil {
			return err
		}
		cmd.Printf("removed %s\n", args[0])
		return nil
	},
}
