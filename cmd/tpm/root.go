package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/x49dev/tpm/internal/config"
	tpmerrors "github.com/x49dev/tpm/internal/errors"
	"github.com/x49dev/tpm/internal/manifest"
	"github.com/x49dev/tpm/internal/orchestrator"
	"github.com/x49dev/tpm/internal/tpmlog"
)

var (
	forceFlag   bool
	verboseFlag bool
	debugFlag   bool

	appCtx    *orchestrator.Context
	formatter *tpmerrors.Formatter
)

var rootCmd = &cobra.Command{
	Use:           "tpm",
	Short:         "Install CLI tools into a Termux prefix from GitHub releases",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level := tpmlog.LevelWarn
		switch {
		case debugFlag:
			level = tpmlog.LevelDebug
		case verboseFlag:
			level = tpmlog.LevelVerbose
		}
		logger := tpmlog.New(os.Stderr, level)

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		formatter = tpmerrors.NewFormatter(os.Stderr, !cfg.ShouldColorize(os.Stderr.Fd()))

		mf, err := manifest.Load(cfg.ManifestFile)
		if err != nil {
			return err
		}

		appCtx = orchestrator.New(cfg, logger, mf, "")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&forceFlag, "force", false, "Reinstall even if already installed")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Print informational progress")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Print debug-level detail")

	rootCmd.AddCommand(
		installCmd,
		updateCmd,
		removeCmd,
		infoCmd,
		listCmd,
		repairCmd,
		cleanupCmd,
		versionCmd,
	)
}
