package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"applogs/internal/archive"
	"applogs/internal/config"
	"applogs/internal/dashboard"
	"applogs/internal/logging"
	"applogs/internal/monitoring"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API, metrics server and tracing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.Init(logging.Config{
		Format:    cfg.Monitoring.LogFormat,
		Level:     cfg.Monitoring.LogLevel,
		Component: serviceName,
	})

	if cfg.Monitoring.TracingEnabled {
		shutdown, err := monitoring.InitTracing(ctx, monitoring.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: Version,
			Endpoint:       cfg.Monitoring.OTLPEndpoint,
			SampleRate:     cfg.Monitoring.TraceSampleRate,
		})
		if err != nil {
			return fmt.Errorf("initialize tracing: %w", err)
		}
		defer shutdown(context.Background())
	}

	metricsServer := monitoring.StartMetricsServer(cfg.Monitoring.MetricsPort, cfg.Monitoring.MetricsPath)
	defer metricsServer.Shutdown(context.Background())

	client, err := newAPISource(cfg)
	if err != nil {
		return err
	}

	opts := []dashboard.Option{dashboard.WithLogger(logging.Component("dashboard"))}
	if cfg.Archive.Enabled {
		chClient, err := openArchive(cfg)
		if err != nil {
			return err
		}
		defer chClient.Close()

		if err := chClient.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("prepare archive schema: %w", err)
		}

		archiver := archive.New(chClient, cfg.Archive, logging.Component("archive"))
		archiver.Start(ctx)
		defer archiver.Stop()
		opts = append(opts, dashboard.WithArchive(archiver))
	}

	svc, err := dashboard.NewService(client, cfg.Analytics, opts...)
	if err != nil {
		return fmt.Errorf("create dashboard service: %w", err)
	}

	api := NewAPI(cfg, svc, monitoring.NewHealthCheck())
	api.healthCheck.SetReady(true)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("upstream", client.BaseURL()).
			Bool("archive", cfg.Archive.Enabled).
			Msg("Dashboard API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully...")
	api.healthCheck.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
