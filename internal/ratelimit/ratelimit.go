// Package ratelimit implements named fixed-window throttlers over a pluggable
// counter store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store counts hits per key inside a fixed window.
type Store interface {
	// Increment adds one hit to key and returns the hit count of the current
	// window and when that window ends. A new window starts on the first hit
	// after the previous one ended.
	Increment(ctx context.Context, key string, window time.Duration) (hits int, resetAt time.Time, err error)
}

// Throttler allows Limit hits per Window.
type Throttler struct {
	Name   string
	Limit  int
	Window time.Duration
}

func (t Throttler) validate() error {
	switch {
	case t.Name == "":
		return errors.New("throttler name is required")
	case t.Limit <= 0:
		return fmt.Errorf("throttler %q: limit must be positive", t.Name)
	case t.Window <= 0:
		return fmt.Errorf("throttler %q: window must be positive", t.Name)
	}
	return nil
}

// Result is the outcome of one throttler for one request.
type Result struct {
	Throttler
	Hits    int
	ResetAt time.Time
}

// Allowed reports whether the hit fits in the window.
func (r Result) Allowed() bool {
	return r.Hits <= r.Limit
}

// Remaining returns hits left in the window, never negative.
func (r Result) Remaining() int {
	return max(0, r.Limit-r.Hits)
}

// RetryAfter returns the wait until the window resets, rounded up to a second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return (d + time.Second - 1).Truncate(time.Second)
}

// Limiter applies every configured throttler to each request.
type Limiter struct {
	store      Store
	throttlers []Throttler
	now        func() time.Time
}

// New creates a limiter. Throttler names must be unique.
func New(store Store, throttlers ...Throttler) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if len(throttlers) == 0 {
		return nil, errors.New("at least one throttler must be configured")
	}
	seen := make(map[string]struct{}, len(throttlers))
	for _, t := range throttlers {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("duplicate throttler name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return &Limiter{
		store:      store,
		throttlers: append([]Throttler(nil), throttlers...),
		now:        time.Now,
	}, nil
}

// Now returns the limiter clock.
func (l *Limiter) Now() time.Time {
	return l.now()
}

// Throttlers returns the configured throttlers.
func (l *Limiter) Throttlers() []Throttler {
	return append([]Throttler(nil), l.throttlers...)
}

// Check counts one hit for key against every throttler. Entries in overrides
// replace the throttler with the same name. The returned bool is false when
// any throttler is exhausted.
func (l *Limiter) Check(ctx context.Context, key string, overrides ...Throttler) ([]Result, bool, error) {
	results := make([]Result, 0, len(l.throttlers))
	allowed := true
	for _, t := range l.throttlers {
		for _, o := range overrides {
			if o.Name == t.Name {
				t = o
			}
		}
		hits, resetAt, err := l.store.Increment(ctx, t.Name+":"+key, t.Window)
		if err != nil {
			return nil, false, fmt.Errorf("throttler %s: %w", t.Name, err)
		}
		r := Result{Throttler: t, Hits: hits, ResetAt: resetAt}
		if !r.Allowed() {
			allowed = false
		}
		results = append(results, r)
	}
	return results, allowed, nil
}
