// Package ratelimit queues partner calls behind token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"immersion/internal/broadcast/metrics"
)

// Limiter is a token bucket holding Reservoir tokens, refilled over Interval.
// Calls beyond the current reservoir wait instead of failing.
type Limiter struct {
	name      string
	reservoir int
	interval  time.Duration
	bucket    *rate.Limiter
	metrics   *metrics.Metrics
}

type Option func(*Limiter)

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New builds a limiter allowing reservoir calls per interval. A non-positive
// reservoir or interval yields an unlimited limiter.
func New(name string, reservoir int, interval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		name:      name,
		reservoir: reservoir,
		interval:  interval,
	}
	if reservoir <= 0 || interval <= 0 {
		l.bucket = rate.NewLimiter(rate.Inf, 0)
	} else {
		every := interval / time.Duration(reservoir)
		l.bucket = rate.NewLimiter(rate.Every(every), reservoir)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Name() string { return l.name }

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	err := l.bucket.Wait(ctx)
	l.metrics.ObserveLimiterWait(l.name, time.Since(start))
	if err != nil {
		return fmt.Errorf("rate limiter %s: %w", l.name, err)
	}
	return nil
}

// Run waits for a token, then calls fn.
func (l *Limiter) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// Partner pairs the limiter for token acquisition and other auxiliary calls
// with the limiter for business payload calls. Build one per partner at
// startup and share it.
type Partner struct {
	Common    *Limiter
	Broadcast *Limiter
}

// Quota describes one endpoint family's allowance.
type Quota struct {
	Reservoir int
	Interval  time.Duration
}

func NewPartner(partner string, common, broadcast Quota, opts ...Option) Partner {
	return Partner{
		Common:    New(partner+".common", common.Reservoir, common.Interval, opts...),
		Broadcast: New(partner+".broadcast", broadcast.Reservoir, broadcast.Interval, opts...),
	}
}
