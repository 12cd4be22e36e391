// Package ratelimit throttles calls to external data providers.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/dyike/alphaagents/internal/config"
	"github.com/dyike/alphaagents/internal/logger"
)

type Limiter interface {
	// Wait blocks until a call is allowed or ctx is done.
	Wait(ctx context.Context) error
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SlidingWindow allows at most maxCalls within any trailing period. When the
// window is full the caller waits until the oldest recorded call leaves it.
type SlidingWindow struct {
	name     string
	maxCalls int
	period   time.Duration
	clock    Clock

	mu    sync.Mutex
	calls []time.Time
}

func NewSlidingWindow(name string, maxCalls int, period time.Duration) *SlidingWindow {
	return NewSlidingWindowWithClock(name, maxCalls, period, realClock{})
}

func NewSlidingWindowWithClock(name string, maxCalls int, period time.Duration, clock Clock) *SlidingWindow {
	if maxCalls <= 0 {
		maxCalls = 1
	}
	return &SlidingWindow{
		name:     name,
		maxCalls: maxCalls,
		period:   period,
		clock:    clock,
	}
}

func (l *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}
		logger.Debug(ctx, "Rate limit reached, waiting", "provider", l.name, "wait_ms", wait.Milliseconds())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// reserve records a call and returns 0, or returns how long until the oldest
// call in the window expires.
func (l *SlidingWindow) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.period)
	kept := l.calls[:0]
	for _, ts := range l.calls {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.calls = kept

	if len(l.calls) < l.maxCalls {
		l.calls = append(l.calls, now)
		return 0
	}
	return l.calls[0].Add(l.period).Sub(now)
}

type noop struct{}

func (noop) Wait(ctx context.Context) error { return ctx.Err() }

// Noop never throttles.
func Noop() Limiter { return noop{} }

// Registry hands out one shared limiter per provider identity.
type Registry struct {
	mu       sync.Mutex
	limits   map[string]config.RateLimit
	limiters map[string]Limiter
	disabled bool
}

func NewRegistry(limits map[string]config.RateLimit) *Registry {
	return &Registry{
		limits:   limits,
		limiters: make(map[string]Limiter),
	}
}

// NewNoopRegistry returns a registry whose limiters never block.
func NewNoopRegistry() *Registry {
	return &Registry{limiters: make(map[string]Limiter), disabled: true}
}

// For returns the limiter for provider. Providers without a configured limit
// are not throttled.
func (r *Registry) For(provider string) Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[provider]; ok {
		return l
	}
	var l Limiter = noop{}
	if rl, ok := r.limits[provider]; ok && !r.disabled {
		l = NewSlidingWindow(provider, rl.MaxCalls, rl.Period)
	}
	r.limiters[provider] = l
	return l
}
