package main

import (
	"context"
	"fmt"
	"log/slog"

	"immersion/internal/broadcast"
	"immersion/internal/broadcast/francetravail"
	"immersion/internal/broadcast/gateway"
	broadcastmetrics "immersion/internal/broadcast/metrics"
	"immersion/internal/broadcast/oauth"
	"immersion/internal/broadcast/ratelimit"
	"immersion/internal/broadcast/retry"
	"immersion/internal/broadcast/stream"
	"immersion/internal/broadcast/tokencache"
	"immersion/internal/broadcast/webhook"
	"immersion/internal/outbox/bus"
	"immersion/internal/outbox/models"
	"immersion/internal/platform/config"
	"immersion/pkg/platform/circuit"
)

// subscribe builds one gateway per configured partner and registers it on every
// convention topic. The returned func releases partner connections.
func subscribe(
	ctx context.Context,
	cfg config.Config,
	in *infra,
	dispatcher *bus.Dispatcher,
	feedback gateway.FeedbackRecorder,
	log *slog.Logger,
	m *broadcastmetrics.Metrics,
) (func(), error) {
	strategy := retry.Strategy{
		Base:       cfg.Broadcast.RetryBase,
		MaxBackoff: cfg.Broadcast.RetryMaxBackoff,
		Deadline:   cfg.Broadcast.RetryDeadline,
		Jitter:     cfg.Broadcast.RetryJitter,
	}
	gatewayOpts := func(name string) []gateway.Option {
		return []gateway.Option{
			gateway.WithBreaker(circuit.New(name, circuit.WithFailureThreshold(cfg.Broadcast.CircuitThreshold))),
			gateway.WithLogger(log.With("partner", name)),
			gateway.WithMetrics(m),
		}
	}

	var (
		gateways []*gateway.Gateway
		closers  []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if ft := cfg.FranceTravail; ft.Enabled() {
		limiters := ratelimit.NewPartner(francetravail.Name,
			ratelimit.Quota(ft.CommonQuota),
			ratelimit.Quota(ft.BroadcastQuota),
			ratelimit.WithMetrics(m),
		)
		client := broadcast.NewClient(francetravail.Name, cfg.Broadcast.RequestTimeout)
		credentials := oauth.NewClientCredentials(oauth.Config{
			AuthBaseURL:  ft.AuthBaseURL,
			ClientID:     ft.ClientID,
			ClientSecret: ft.ClientSecret,
		}, client, limiters.Common, strategy)
		tokens := tokencache.New(francetravail.Name, tokenStore(in),
			tokencache.WithSafetyMargin(cfg.Broadcast.TokenSafetyMargin),
			tokencache.WithFetchTimeout(cfg.Broadcast.RequestTimeout),
			tokencache.WithLogger(log),
			tokencache.WithMetrics(m),
		)
		partner := francetravail.New(francetravail.Config{APIBaseURL: ft.APIBaseURL, Scope: ft.Scope},
			client, tokens, credentials.Fetch)
		gateways = append(gateways, gateway.New(partner, limiters.Broadcast, strategy, feedback,
			gatewayOpts(francetravail.Name)...))
	}

	for _, consumer := range cfg.Webhooks {
		callback := webhook.New(webhook.Consumer{
			ID:                  consumer.ID,
			Name:                consumer.Name,
			CallbackURL:         consumer.CallbackURL,
			AuthorizationHeader: consumer.Authorization,
		}, broadcast.NewClient(consumer.Name, cfg.Broadcast.RequestTimeout))
		limiter := ratelimit.New(consumer.Name+".broadcast", 0, 0, ratelimit.WithMetrics(m))
		opts := append(gatewayOpts(consumer.Name), gateway.WithConsumerID(consumer.ID))
		gateways = append(gateways, gateway.New(callback, limiter, strategy, feedback, opts...))
	}

	if k := cfg.Kafka; len(k.Brokers) > 0 {
		client, err := stream.Dial(ctx, k.Brokers, k.Topic)
		if err != nil {
			return closeAll, err
		}
		closers = append(closers, client.Close)
		if err := stream.EnsureTopic(ctx, client, k.Topic, k.Partitions, k.Replication); err != nil {
			return closeAll, err
		}
		limiter := ratelimit.New(stream.Name+".broadcast", 0, 0)
		gateways = append(gateways, gateway.New(stream.NewPublisher(client, k.Topic), limiter, strategy, feedback,
			gatewayOpts(stream.Name)...))
	}

	for _, g := range gateways {
		for _, topic := range models.AllTopics {
			if err := dispatcher.Subscribe(topic, g.SubscriberID(), g); err != nil {
				return closeAll, fmt.Errorf("subscribe %s: %w", g.Name(), err)
			}
		}
		log.Info("partner subscribed", "partner", g.Name())
	}
	if len(gateways) == 0 {
		log.Warn("no partner configured, events are marked published without delivery")
	}
	return closeAll, nil
}

// tokenStore shares partner tokens across instances when Redis is configured.
func tokenStore(in *infra) tokencache.Store {
	if in.redis != nil {
		return tokencache.NewRedisStore(in.redis.Client)
	}
	return tokencache.NewMemoryStore(nil)
}
