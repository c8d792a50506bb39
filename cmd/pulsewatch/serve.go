package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pulsewatch/internal/alert"
	"pulsewatch/internal/api"
	"pulsewatch/internal/checker"
	"pulsewatch/internal/logging"
	"pulsewatch/internal/maintenance"
	"pulsewatch/internal/metrics"
	"pulsewatch/internal/probe"
	"pulsewatch/internal/recorder"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the ingestion API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	log := logging.Component(logger, "main")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("database connection successful")

	m := metrics.New("pulsewatch")

	httpProbe := probe.NewHTTP(cfg.Probe.HTTPTimeout, cfg.Probe.UserAgent)
	probes := &probe.Set{
		HTTP:    httpProbe,
		Keyword: probe.NewKeyword(httpProbe),
		Ping:    probe.NewPing(cfg.Probe.PingTimeout, cfg.Probe.PingPrivileged),
	}

	var cooldown alert.Cooldown = alert.NewStoreCooldown(store, cfg.Alerting.Cooldown)
	if cfg.Alerting.RedisURL != "" {
		rc, err := alert.NewRedisCooldown(ctx, cfg.Alerting.RedisURL, store, cfg.Alerting.Cooldown)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()
		cooldown = rc
		log.Info("using redis alert cooldown")
	}

	dispatcher := alert.NewDispatcher(cfg.Alerting.WebhookTimeout, m, logger)
	if cfg.Alerting.NATSURL != "" {
		pub, err := alert.NewNATSPublisher(cfg.Alerting.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer pub.Close()
		dispatcher = dispatcher.WithPublisher(pub, cfg.Alerting.NATSSubject)
		log.WithField("subject", cfg.Alerting.NATSSubject).Info("publishing alerts to nats")
	}

	guard := maintenance.NewGuard(store, cfg.Maintenance.CacheTTL, logger)
	evaluator := alert.NewEvaluator(cfg.Alerting.Cooldown, cfg.Alerting.ErrorRateWindow, cfg.Alerting.SSLWarningDays)
	notifier := alert.NewNotifier(guard, cooldown, dispatcher, m, logger)
	rec := recorder.New(store, m, logger)

	checkerSvc := checker.New(checker.Deps{
		Store:     store,
		Probes:    probes,
		Certs:     &probe.CertChecker{Timeout: cfg.Probe.SSLTimeout},
		Recorder:  rec,
		Evaluator: evaluator,
		Notifier:  notifier,
		Metrics:   m,
		Logger:    logger,
	}, cfg)

	handlers := api.NewHandlers(store, rec, evaluator, notifier, logger)
	server := api.NewServer(cfg.HTTP.Port, api.NewRouter(handlers, m, logger), logger)

	if err := checkerSvc.Start(ctx); err != nil {
		return err
	}
	serverErr := server.Start()

	log.Info("application is running...")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, starting graceful shutdown...")
	case err, ok := <-serverErr:
		if ok && err != nil {
			checkerSvc.Stop()
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer shutdownCancel()

	// Stop the scheduler first so no new ticks start during shutdown.
	checkerSvc.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown error: %w", err)
	}
	log.Info("application shut down gracefully")
	return nil
}
