package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(c *cli) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the timeout sweep and the feedback reconciler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.ValidateServe(); err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					c.logger.Error("failed to close resources", "error", cerr)
				}
			}()

			if !skipMigrate {
				applied, err := a.store.Migrate(ctx)
				if err != nil {
					return fmt.Errorf("apply migrations: %w", err)
				}
				c.logger.Info("database ready", "driver", c.cfg.DBDriver, "applied_migrations", len(applied))
			}

			return serve(ctx, a)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply pending migrations on startup")
	return cmd
}

// serve runs until ctx is cancelled or one of the components fails. The
// sweep and the reconciler stop before the HTTP server drains.
func serve(ctx context.Context, a *app) error {
	logger := a.logger
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	sweeper := a.sweeper()
	reconciler := a.reconciler()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCancel(sweeper.Start(gctx))
	})
	g.Go(func() error {
		return ignoreCancel(reconciler.Start(gctx))
	})
	g.Go(func() error {
		logger.Info("interview API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sweeper.Stop()
		reconciler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
