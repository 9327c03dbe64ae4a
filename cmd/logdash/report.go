package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"applogs/internal/analytics"
	"applogs/internal/clickhouse"
	"applogs/internal/config"
	"applogs/internal/dashboard"
	"applogs/internal/logging"
	"applogs/internal/logsapi"
	"applogs/internal/models"

	"github.com/spf13/cobra"
)

type reportOptions struct {
	view        string
	period      string
	thresholdMs int64
	archive     bool
	limit       int
	token       string
}

func newReportCmd(load configLoader) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compute one dashboard view and print it as JSON",
		Example: `  logdash report --view performance --period 24h
  logdash report --view security --period 7d --archive`,
		Args: cobra.NoArgs,
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
			if opts.token == "" {
				opts.token = cfg.Upstream.Token
			}

			var src dashboard.Source
			if opts.archive {
				src, err = archiveSource(cmd.Context(), cfg, opts)
				if err != nil {
					return err
				}
			} else {
				src, err = newAPISource(cfg)
				if err != nil {
					return err
				}
			}
			return runReport(cmd.Context(), cmd.OutOrStdout(), cfg.Analytics, src, opts)
		},
	}

	cmd.Flags().StringVar(&opts.view, "view", viewPerformance, "view to compute: performance, security, statistics or overview")
	cmd.Flags().StringVar(&opts.period, "period", "", "time window such as 24h, 7d or 30days (view default when empty)")
	cmd.Flags().Int64Var(&opts.thresholdMs, "threshold", 0, "slow operation threshold in milliseconds")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "read records from the ClickHouse archive instead of the log API")
	cmd.Flags().IntVar(&opts.limit, "limit", 10000, "maximum archived records to load with --archive")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token for the log API (defaults to upstream.token)")
	return cmd
}

func runReport(ctx context.Context, out io.Writer, cfg config.AnalyticsConfig, src dashboard.Source, opts reportOptions) error {
	svc, err := dashboard.NewService(src, cfg, dashboard.WithLogger(logging.Component("report")))
	if err != nil {
		return err
	}
	auth := models.AuthContext{Token: opts.token}

	var view any
	switch strings.ToLower(strings.TrimSpace(opts.view)) {
	case viewPerformance:
		view, err = svc.Performance(ctx, auth, dashboard.PerformanceRequest{Period: opts.period, ThresholdMs: opts.thresholdMs})
	case viewSecurity:
		view, err = svc.Security(ctx, auth, dashboard.SecurityRequest{Period: opts.period})
	case viewStatistics:
		view, err = svc.Statistics(ctx, auth, dashboard.StatisticsRequest{Range: opts.period})
	case viewOverview:
		view, err = svc.Overview(ctx, auth)
	default:
		return fmt.Errorf("unknown view %q", opts.view)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func newAPISource(cfg *config.Config) (*logsapi.Client, error) {
	client, err := logsapi.New(cfg.Upstream.BaseURL, logsapi.WithTimeout(cfg.Upstream.Timeout))
	if err != nil {
		return nil, fmt.Errorf("create log api client: %w", err)
	}
	return client, nil
}

// archiveSource loads the archived records covering the report window.
func archiveSource(ctx context.Context, cfg *config.Config, opts reportOptions) (*dashboard.SnapshotSource, error) {
	since, err := reportSince(cfg.Analytics, opts, time.Now())
	if err != nil {
		return nil, err
	}

	chClient, err := openArchive(cfg)
	if err != nil {
		return nil, err
	}
	defer chClient.Close()

	records, err := chClient.RecentLogs(ctx, since, opts.limit)
	if err != nil {
		return nil, err
	}
	if len(records) > cfg.Analytics.BatchSize {
		cfg.Analytics.BatchSize = len(records)
	}
	return dashboard.NewSnapshotSource(records), nil
}

// reportSince is the start of the first bucket of the report window.
func reportSince(cfg config.AnalyticsConfig, opts reportOptions, now time.Time) (time.Time, error) {
	raw := opts.period
	if raw == "" {
		switch strings.ToLower(opts.view) {
		case viewSecurity:
			raw = cfg.SecurityPeriod
		case viewStatistics:
			raw = cfg.StatisticsRange
		default:
			raw = cfg.DefaultPeriod
		}
	}
	window, err := analytics.ParseWindow(raw)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	return analytics.NewTimeline(window, now, loc).Start(0), nil
}

func openArchive(cfg *config.Config) (*clickhouse.Client, error) {
	chClient, err := clickhouse.NewClient(&cfg.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	return chClient, nil
}
