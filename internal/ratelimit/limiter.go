// Package ratelimit provides a fixed-window call limiter used to keep the
// exit monitor's oracle reads under the upstream RPC quota.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultLimit is the default number of calls allowed per window.
const DefaultLimit = 10

// DefaultWindow is the default window length.
const DefaultWindow = time.Second

// Limiter allows at most limit calls per fixed window. Callers that would
// exceed the limit block until the next window opens. The counter resets
// when a call arrives after the window elapsed, so an idle limiter carries
// no state forward.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	blocked func()
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		l.window = d
	}
}

// WithBlockedObserver registers a callback invoked once per Wait call
// that actually has to block for a slot. Used to feed a counter.
func WithBlockedObserver(fn func()) Option {
	return func(l *Limiter) {
		l.blocked = fn
	}
}

// WithClock injects the time and sleep functions. Test hook.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// New creates a limiter allowing limit calls per window.
func New(limit int, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	l := &Limiter{
		limit:  limit,
		window: DefaultWindow,
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a call may proceed right now, consuming one slot
// if so.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll(l.now())
	if l.count >= l.limit {
		return false
	}
	l.count++
	return true
}

// Wait blocks until a call slot is free or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	waited := false
	for {
		l.mu.Lock()
		now := l.now()
		l.roll(now)
		if l.count < l.limit {
			l.count++
			l.mu.Unlock()
			return nil
		}
		wait := l.windowStart.Add(l.window).Sub(now)
		l.mu.Unlock()

		if !waited {
			waited = true
			if l.blocked != nil {
				l.blocked()
			}
		}
		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// roll resets the counter when the current window has elapsed. Caller must
// hold mu.
func (l *Limiter) roll(now time.Time) {
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
