package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/interview-scheduler/internal/config"
	"github.com/example/interview-scheduler/internal/logging"
)

// cli carries state shared by every subcommand. It is filled in by the root
// command's PersistentPreRunE.
type cli struct {
	logLevel  string
	logFormat string
	debug     bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "interviewd",
		Short: "Interview scheduling negotiation service",
		Long: "interviewd shortlists candidates, negotiates interview slots with candidates " +
			"and interviewers over chat and mail, and collects interviewer feedback.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				cfg.LogLevel = c.logLevel
			}
			if c.logFormat != "" {
				cfg.LogFormat = c.logFormat
			}
			if c.debug {
				cfg.LogLevel = "debug"
			}
			c.cfg = cfg
			c.logger = logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides INTERVIEW_LOG_LEVEL")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format (text, json); overrides INTERVIEW_LOG_FORMAT")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "Shorthand for --log-level=debug")

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newSeedCmd(c),
		newSweepCmd(c),
		newArchiveCmd(c),
		newHashKeyCmd(),
	)
	return root
}
