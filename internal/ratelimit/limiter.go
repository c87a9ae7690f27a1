// Package ratelimit paces outgoing storage requests with a token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rescale/s3fetch/internal/logging"
)

// Waits longer than this are logged, at most once per warnInterval.
const (
	warnThreshold = 2 * time.Second
	warnInterval  = 10 * time.Second
)

// Limiter is a token bucket. It allows bursts up to burst requests, then
// refills at rate tokens per second. A nil *Limiter never blocks.
type Limiter struct {
	rate   float64
	burst  float64
	logger *logging.Logger

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastWarn   time.Time
}

// New creates a limiter that starts with a full bucket. A burst below 1
// is raised to 1. It returns nil when rate is not positive.
func New(rate float64, burst int, logger *logging.Logger) *Limiter {
	if rate <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Limiter{
		rate:       rate,
		burst:      float64(burst),
		logger:     logger,
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := l.reserve()
		if wait == 0 {
			if waited := time.Since(start); waited > warnThreshold {
				l.logger.Debug().Dur("waited", waited).Msg("Rate limit wait completed")
			}
			return nil
		}
		l.warn(wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token and returns 0, or returns how long until one is
// available.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	if l.tokens >= 1 {
		l.tokens--
		return 0
	}
	return time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
}

func (l *Limiter) refill(now time.Time) {
	l.tokens += now.Sub(l.lastRefill).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now
}

func (l *Limiter) warn(wait time.Duration) {
	if wait <= warnThreshold {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastWarn) < warnInterval {
		return
	}
	l.lastWarn = time.Now()
	l.logger.Warn().Dur("wait", wait).Msg("Rate limited, waiting for request capacity")
}

// Tokens returns the tokens currently available.
func (l *Limiter) Tokens() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(time.Now())
	return l.tokens
}
