package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_QueuesBeyondReservoir(t *testing.T) {
	l := New("test", 2, 200*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "reservoir calls run immediately")

	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond, "third call waits for a refill")
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := New("test", 1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter test")
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New("open", 0, 0)
	for range 100 {
		require.NoError(t, l.Wait(context.Background()))
	}
}

func TestLimiter_Run(t *testing.T) {
	l := New("test", 1, time.Second)
	boom := errors.New("boom")

	err := l.Run(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestNewPartner(t *testing.T) {
	p := NewPartner("france-travail",
		Quota{Reservoir: 1, Interval: time.Second},
		Quota{Reservoir: 10, Interval: time.Second},
	)
	assert.Equal(t, "france-travail.common", p.Common.Name())
	assert.Equal(t, "france-travail.broadcast", p.Broadcast.Name())
}
