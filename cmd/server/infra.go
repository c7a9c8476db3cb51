package main

import (
	"context"
	"database/sql"
	"log/slog"

	conventionservice "immersion/internal/convention/service"
	conventionstore "immersion/internal/convention/store"
	feedbackservice "immersion/internal/feedback/service"
	feedbackstore "immersion/internal/feedback/store"
	httpapi "immersion/internal/http"
	"immersion/internal/outbox/ports"
	outboxstore "immersion/internal/outbox/store"
	"immersion/internal/platform/config"
	"immersion/internal/platform/postgres"
	platformredis "immersion/internal/platform/redis"
	"immersion/pkg/platform/tx"
)

// infra holds the stores and connections shared by the whole process.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client

	conventions conventionservice.ConventionStore
	outbox      ports.Store
	feedback    feedbackservice.Store
	tx          conventionservice.UnitOfWork
	health      map[string]httpapi.HealthCheck
}

// openInfra picks Postgres stores when a database is configured and in-memory
// stores otherwise. Redis is optional either way.
func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{health: map[string]httpapi.HealthCheck{}}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		in.db = db
		in.conventions = conventionstore.NewPostgres(db)
		in.outbox = outboxstore.NewPostgres(db)
		in.feedback = feedbackstore.NewPostgres(db)
		in.tx = tx.NewSQL(db)
		in.health["postgres"] = db.PingContext
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		in.conventions = conventionstore.NewInMemory()
		in.outbox = outboxstore.NewInMemory()
		in.feedback = feedbackstore.NewInMemory()
		in.tx = tx.NewInMemory()
	}

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	if rc != nil {
		in.redis = rc
		in.health["redis"] = rc.Health
	}
	return in, nil
}

func (in *infra) Close() {
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
