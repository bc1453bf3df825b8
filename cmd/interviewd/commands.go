package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/interview-scheduler/internal/application"
	"github.com/example/interview-scheduler/internal/roster"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			applied, err := a.store.Migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			for _, m := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %03d %s\n", m.Version, m.Description)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			}
			return nil
		},
	}
}

func newSeedCmd(c *cli) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import candidates and interviewers from a roster YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := roster.Load(file)
			if err != nil {
				return err
			}
			candidates, interviewers, err := f.Inputs()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.roster.Import(cmd.Context(), candidates, interviewers)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "candidates=%d interviewers=%d skipped=%d\n",
				result.Candidates, result.Interviewers, result.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "roster.yaml", "Roster file to import")
	return cmd
}

func newSweepCmd(c *cli) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the timeout sweep and feedback reconciler without the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if !once {
				sweeper, reconciler := a.sweeper(), a.reconciler()
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error { return ignoreCancel(sweeper.Start(gctx)) })
				g.Go(func() error { return ignoreCancel(reconciler.Start(gctx)) })
				return g.Wait()
			}

			result, sweepErr := a.sweeper().Tick(ctx)
			phases := make([]string, 0, len(result))
			for phase := range result {
				phases = append(phases, phase)
			}
			sort.Strings(phases)
			for _, phase := range phases {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%d\n", phase, result[phase])
			}

			polled, pollErr := a.reconciler().Poll(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "feedback_applied=%d feedback_ignored=%d feedback_failed=%d\n",
				polled.Applied, polled.Ignored, polled.Failed)
			return errors.Join(sweepErr, pollErr)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	return cmd
}

func newArchiveCmd(c *cli) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Copy finished interviews to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("older-than") {
				olderThan = c.cfg.ArchiveAfter
			}
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.archive.ArchiveTerminal(cmd.Context(), olderThan)
			for _, key := range result.Keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age of the last transition (default INTERVIEW_ARCHIVE_AFTER)")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the argon2id hash of an admin key for INTERVIEW_ADMIN_KEY_HASH",
		Long:  "Hashes the key given as argument, or the first line of standard input when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyArgument(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			hash, err := application.HashAPIKey(key, application.DefaultArgon2idParams)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func keyArgument(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
