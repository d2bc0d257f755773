package main

import (
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <owner/repo>",
	Short: "Install a tool's latest release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appCtx.Install(cmd.Context(), args[0], forceFlag); err != nil {
			return err
		}
		cmd.Printf("installed %s\n", args[0])
		return nil
	},
}
