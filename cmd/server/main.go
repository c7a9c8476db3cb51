package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	broadcastmetrics "immersion/internal/broadcast/metrics"
	conventionhandler "immersion/internal/convention/handler"
	conventionmetrics "immersion/internal/convention/metrics"
	conventionservice "immersion/internal/convention/service"
	feedbackhandler "immersion/internal/feedback/handler"
	feedbackservice "immersion/internal/feedback/service"
	httpapi "immersion/internal/http"
	jwttoken "immersion/internal/jwt_token"
	"immersion/internal/outbox/bus"
	outboxhandler "immersion/internal/outbox/handler"
	outboxmetrics "immersion/internal/outbox/metrics"
	"immersion/internal/outbox/quarantine"
	"immersion/internal/outbox/worker"
	"immersion/internal/platform/config"
	"immersion/internal/platform/httpserver"
	"immersion/internal/platform/logger"
	platformmetrics "immersion/internal/platform/metrics"
)

const (
	tokenIssuer   = "immersion"
	tokenAudience = "immersion-api"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	var (
		outboxMetrics    = outboxmetrics.New()
		broadcastMetrics = broadcastmetrics.New()
	)

	conventions := conventionservice.New(infra.conventions, infra.outbox, infra.tx,
		conventionservice.WithLogger(log),
		conventionservice.WithMetrics(conventionmetrics.New()),
	)
	recorder := feedbackservice.New(infra.feedback, feedbackservice.WithLogger(log))
	quarantineManager := quarantine.New(infra.outbox,
		quarantine.WithLogger(log),
		quarantine.WithMetrics(outboxMetrics),
	)
	dispatcher := bus.New(infra.outbox,
		bus.WithLogger(log),
		bus.WithMetrics(outboxMetrics),
	)

	closeSubscribers, err := subscribe(ctx, cfg, infra, dispatcher, recorder, log, broadcastMetrics)
	if err != nil {
		return err
	}
	defer closeSubscribers()

	outboxWorker := worker.New(infra.outbox, dispatcher, infra.conventions, quarantineManager,
		worker.WithInterval(cfg.Outbox.PollInterval),
		worker.WithBatchSize(cfg.Outbox.BatchSize),
		worker.WithConcurrency(cfg.Outbox.Workers),
		worker.WithLogger(log),
		worker.WithMetrics(outboxMetrics),
	)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, tokenIssuer, tokenAudience)
	router := httpapi.NewRouter(httpapi.Config{
		Validator: jwttoken.NewJWTServiceAdapter(jwtService),
		Logger:    log,
		Metrics:   platformmetrics.New(),
		Health:    infra.health,
		Handlers: []httpapi.Registrar{
			conventionhandler.New(conventions, log),
			feedbackhandler.New(recorder, conventions, log),
			outboxhandler.New(quarantineManager, log),
		},
	})
	srv := httpserver.New(cfg.Server.Addr, otelhttp.NewHandler(router, "immersion"))

	log.Info("starting immersion",
		slog.String("addr", cfg.Server.Addr),
		slog.Bool("postgres", infra.db != nil),
		slog.Bool("redis", infra.redis != nil),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return outboxWorker.Run(ctx)
	})
	g.Go(func() error {
		return httpserver.Serve(ctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	return g.Wait()
}
