// Package retry runs partner calls with capped exponential backoff under a
// hard deadline.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"

	"immersion/internal/broadcast"
)

// Strategy waits min(MaxBackoff, Base*2^attempt + jitter) between attempts,
// with jitter drawn uniformly from [0, Jitter). The first attempt runs
// immediately. Once the next wait would take the total past Deadline, Do gives
// up and returns the last error unchanged.
type Strategy struct {
	Base       time.Duration
	MaxBackoff time.Duration
	Deadline   time.Duration
	Jitter     time.Duration
}

func Default() Strategy {
	return Strategy{
		Base:       time.Second,
		MaxBackoff: 30 * time.Second,
		Deadline:   2 * time.Minute,
		Jitter:     250 * time.Millisecond,
	}
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// deadline is reached. Only errors for which broadcast.IsRetryable holds are
// retried. When Do gives up it returns the error of the last attempt, even if
// the deadline cut that attempt short.
func (s Strategy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if s.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Deadline)
		defer cancel()
	}

	var last error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		last = op(ctx)
		if last != nil && !broadcast.IsRetryable(last) {
			return struct{}{}, backoff.Permanent(last)
		}
		return struct{}{}, last
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxElapsedTime(s.Deadline),
	)
	if err != nil && last != nil {
		return last
	}
	return err
}

// Delay is the wait before retry number attempt (0 for the first retry),
// without jitter.
func (s Strategy) Delay(attempt int) time.Duration {
	d := s.Base
	for range attempt {
		if s.MaxBackoff > 0 && d >= s.MaxBackoff {
			break
		}
		d *= 2
	}
	if s.MaxBackoff > 0 && d > s.MaxBackoff {
		d = s.MaxBackoff
	}
	return d
}

func (s Strategy) newBackOff() backoff.BackOff {
	return &exponential{strategy: s}
}

type exponential struct {
	strategy Strategy
	attempt  int
}

func (e *exponential) NextBackOff() time.Duration {
	d := e.strategy.Delay(e.attempt)
	e.attempt++
	if e.strategy.Jitter > 0 {
		d += rand.N(e.strategy.Jitter)
	}
	if e.strategy.MaxBackoff > 0 && d > e.strategy.MaxBackoff {
		d = e.strategy.MaxBackoff
	}
	return d
}

func (e *exponential) Reset() {
	e.attempt = 0
}
