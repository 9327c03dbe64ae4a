package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"applogs/internal/logging"
	"applogs/internal/logsapi"
	"applogs/internal/models"

	"github.com/spf13/cobra"
)

// archivePruner removes archived records older than a cutoff
type archivePruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}

type upstreamCleaner interface {
	Cleanup(ctx context.Context, auth models.AuthContext, daysToKeep int) (string, error)
}

func newCleanupCmd(load configLoader) *cobra.Command {
	var (
		days  int
		token string
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete application logs older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logging.Init(logging.Config{
				Format:    cfg.Monitoring.LogFormat,
				Level:     cfg.Monitoring.LogLevel,
				Component: serviceName,
			})
			if token == "" {
				token = cfg.Upstream.Token
			}

			client, err := logsapi.New(cfg.Upstream.BaseURL, logsapi.WithTimeout(cfg.Upstream.Timeout))
			if err != nil {
				return fmt.Errorf("create log api client: %w", err)
			}

			var pruner archivePruner
			if cfg.Archive.Enabled {
				chClient, err := openArchive(cfg)
				if err != nil {
					return err
				}
				defer chClient.Close()
				pruner = chClient
			}
			return runCleanup(cmd.Context(), cmd.OutOrStdout(), client, pruner, models.AuthContext{Token: token}, days, time.Now())
		},
	}

	cmd.Flags().IntVar(&days, "days", 90, "number of days of logs to keep")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for the log API (defaults to upstream.token)")
	return cmd
}

func runCleanup(ctx context.Context, out io.Writer, upstream upstreamCleaner, pruner archivePruner, auth models.AuthContext, days int, now time.Time) error {
	if days <= 0 {
		return fmt.Errorf("days must be positive, got %d", days)
	}

	msg, err := upstream.Cleanup(ctx, auth, days)
	if err != nil {
		return fmt.Errorf("upstream cleanup: %w", err)
	}
	fmt.Fprintln(out, msg)

	if pruner == nil {
		return nil
	}
	cutoff := now.AddDate(0, 0, -days)
	if err := pruner.DeleteOlderThan(ctx, cutoff); err != nil {
		return fmt.Errorf("archive cleanup: %w", err)
	}
	fmt.Fprintf(out, "Archive records before %s scheduled for deletion\n", cutoff.UTC().Format(time.RFC3339))
	return nil
}
