package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nexus-trading/walletscope/internal/alerts"
	"github.com/nexus-trading/walletscope/internal/api"
	"github.com/nexus-trading/walletscope/internal/bus"
	"github.com/nexus-trading/walletscope/internal/tracing"
	"github.com/nexus-trading/walletscope/internal/worker"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, alert stream and optional bus worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg := opts.cfg

	log.Info().Msg("=============================================")
	log.Info().Str("version", Version).Msg("walletscope - Starting")
	log.Info().Msg("HOLDINGS -> FORENSICS + MONITOR -> ADVISOR -> REPORT")
	log.Info().Msg("=============================================")

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Tracing shutdown failed")
		}
	}()

	a := buildApp(ctx, cfg, opts.stub)
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.health.Start(gctx)
		return nil
	})

	server := api.New(cfg.Server, api.Deps{
		Analyzer:      a.coordinator,
		Activity:      a.activity,
		ActivityLimit: cfg.Analysis.Coordinator.ActivityLimit,
		Alerts:        alerts.NewHub(a.registry, cfg.Alerts.MaxClients, cfg.Alerts.AllowedOrigins),
		Health:        a.health,
		Metrics:       cfg.Metrics.Enabled,
		Thresholds:    cfg.Analysis.Advisor.Thresholds,
	})
	g.Go(func() error { return server.Run(gctx) })

	if cfg.Kafka.Enabled && cfg.Kafka.ConsumeRequests {
		consumer, err := bus.NewConsumer(cfg.Kafka, bus.TopicAnalysisRequests)
		if err != nil {
			log.Warn().Err(err).Msg("Kafka consumer unavailable, bus worker disabled")
		} else {
			defer consumer.Close()
			w := worker.New(consumer, a.coordinator)
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	log.Info().Str("addr", cfg.Server.Addr).Msg("walletscope - Running")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("walletscope - Shutdown complete")
	return nil
}
