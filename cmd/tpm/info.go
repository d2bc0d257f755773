package main

import "github.com/spf13/cobra"

var infoCmd = &cobra.Command{
	Use:   "info <owner/repo>",
	Short: "Show the installed record for a tool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := appCtx.Info(args[0])
		if err != nil {
			return err
		}
		cmd.Printf("tool:      %s\n", rec.Tool)
		cmd.Printf("version:   %s\n", rec.Version)
		cmd.Printf("binary:    %s\n", rec.Binary)
		cmd.Printf("store:     %s\n", rec.StorePath)
		cmd.Printf("symlink:   %s\n", rec.SymlinkPath)
		if rec.Checksum != "" {
			cmd.Printf("checksum:  %s\n", rec.Checksum)
		}
		if !rec.InstalledAt.IsZero() {
			cmd.Printf("installed: %s\n", rec.InstalledAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
