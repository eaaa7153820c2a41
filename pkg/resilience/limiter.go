// Package resilience provides a token bucket rate limiter and a circuit
// breaker used around the Ollama endpoints.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned by Call when no token is available.
var ErrRateLimited = errors.New("rate limited")

// LimiterOpts configures the token bucket.
type LimiterOpts struct {
	// Rate is tokens added per second.
	Rate float64
	// Burst is the bucket capacity.
	Burst int
}

// Limiter is a token bucket rate limiter.
type Limiter struct {
	mu     sync.Mutex
	opts   LimiterOpts
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewLimiter creates a token bucket limiter, starting full.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Rate <= 0 {
		opts.Rate = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{opts: opts, tokens: float64(opts.Burst), now: time.Now}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		deficit := 1.0 - l.tokens
		wait := time.Duration(deficit / l.opts.Rate * float64(time.Second))
		l.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Call runs f if a token is available, otherwise returns ErrRateLimited.
func (l *Limiter) Call(ctx context.Context, f func(context.Context) error) error {
	if !l.Allow() {
		return ErrRateLimited
	}
	return f(ctx)
}

// refill adds tokens for elapsed time. Caller holds mu.
func (l *Limiter) refill() {
	now := l.now()
	if l.last.IsZero() {
		l.last = now
		return
	}
	l.tokens += now.Sub(l.last).Seconds() * l.opts.Rate
	if l.tokens > float64(l.opts.Burst) {
		l.tokens = float64(l.opts.Burst)
	}
	l.last = now
}
