package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{t: time.Unix(1_700_000_000, 0)}
}

func TestMemoryStoreFixedWindow(t *testing.T) {
	clk := newClock()
	ms := NewMemoryStore(withClock(clk.Now))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		hits, resetAt, err := ms.Increment(ctx, "k", time.Second)
		require.NoError(t, err)
		require.Equal(t, i, hits)
		require.Equal(t, clk.Now().Add(time.Second), resetAt)
	}

	clk.Advance(999 * time.Millisecond)
	hits, _, err := ms.Increment(ctx, "k", time.Second)
	require.NoError(t, err)
	require.Equal(t, 4, hits)

	clk.Advance(time.Millisecond)
	hits, resetAt, err := ms.Increment(ctx, "k", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, hits)
	require.Equal(t, clk.Now().Add(time.Second), resetAt)

	hits, _, err = ms.Increment(ctx, "other", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, hits)
}

func TestMemoryStoreCleanup(t *testing.T) {
	clk := newClock()
	ms := NewMemoryStore(withClock(clk.Now))
	ctx := context.Background()

	_, _, _ = ms.Increment(ctx, "short", time.Second)
	_, _, _ = ms.Increment(ctx, "long", time.Minute)
	require.Equal(t, 2, ms.Len())

	clk.Advance(2 * time.Second)
	require.Equal(t, 1, ms.Cleanup())
	require.Equal(t, 1, ms.Len())
}

func TestMemoryStoreRun(t *testing.T) {
	ms := NewMemoryStore(WithCleanupInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	_, _, _ = ms.Increment(ctx, "k", time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- ms.Run(ctx) }()

	require.Eventually(t, func() bool { return ms.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	bad := NewMemoryStore(WithCleanupInterval(0))
	require.Error(t, bad.Run(context.Background()))
}

func TestLimiterCheck(t *testing.T) {
	clk := newClock()
	ms := NewMemoryStore(withClock(clk.Now))
	l, err := New(ms,
		Throttler{Name: "short", Limit: 3, Window: time.Second},
		Throttler{Name: "long", Limit: 5, Window: time.Minute},
	)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, ok, err := l.Check(ctx, "ip")
		require.NoError(t, err)
		require.True(t, ok)
	}

	results, ok, err := l.Check(ctx, "ip")
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, results, 2)
	require.Equal(t, "short", results[0].Name)
	require.False(t, results[0].Allowed())
	require.Equal(t, 0, results[0].Remaining())
	require.Equal(t, "long", results[1].Name)
	require.True(t, results[1].Allowed())
	require.Equal(t, 1, results[1].Remaining())

	// a different key has its own windows
	_, ok, err = l.Check(ctx, "other-ip")
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(time.Second)
	results, ok, err = l.Check(ctx, "ip")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, results[0].Hits)
	require.Equal(t, 5, results[1].Hits)

	_, ok, err = l.Check(ctx, "ip")
	require.NoError(t, err)
	require.False(t, ok, "long throttler exhausted")
}

func TestLimiterOverride(t *testing.T) {
	clk := newClock()
	l, err := New(NewMemoryStore(withClock(clk.Now)),
		Throttler{Name: "short", Limit: 3, Window: time.Second},
	)
	require.NoError(t, err)
	ctx := context.Background()
	token := Throttler{Name: "short", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		_, ok, err := l.Check(ctx, "ip", token)
		require.NoError(t, err)
		require.True(t, ok)
	}
	clk.Advance(2 * time.Second)
	results, ok, err := l.Check(ctx, "ip", token)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, time.Minute, results[0].Window)
	require.Equal(t, 58*time.Second, results[0].RetryAfter(clk.Now()))
}

func TestNewValidation(t *testing.T) {
	ms := NewMemoryStore()
	_, err := New(nil, Throttler{Name: "a", Limit: 1, Window: time.Second})
	require.Error(t, err)
	_, err = New(ms)
	require.Error(t, err)
	_, err = New(ms, Throttler{Limit: 1, Window: time.Second})
	require.Error(t, err)
	_, err = New(ms, Throttler{Name: "a", Window: time.Second})
	require.Error(t, err)
	_, err = New(ms, Throttler{Name: "a", Limit: 1})
	require.Error(t, err)
	_, err = New(ms,
		Throttler{Name: "a", Limit: 1, Window: time.Second},
		Throttler{Name: "a", Limit: 2, Window: time.Second},
	)
	require.ErrorContains(t, err, "duplicate")
}

func TestResultRetryAfter(t *testing.T) {
	now := time.Unix(100, 0)
	r := Result{ResetAt: now.Add(1500 * time.Millisecond)}
	require.Equal(t, 2*time.Second, r.RetryAfter(now))
	r = Result{ResetAt: now.Add(-time.Second)}
	require.Zero(t, r.RetryAfter(now))
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("down")
}

func TestLimiterStoreError(t *testing.T) {
	l, err := New(failingStore{}, Throttler{Name: "short", Limit: 1, Window: time.Second})
	require.NoError(t, err)
	_, ok, err := l.Check(context.Background(), "ip")
	require.ErrorContains(t, err, "throttler short: down")
	require.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		hits, resetAt, err := store.Increment(ctx, "short:ip", 10*time.Second)
		require.NoError(t, err)
		require.Equal(t, i, hits)
		require.WithinDuration(t, time.Now().Add(10*time.Second), resetAt, time.Second)
	}
	require.True(t, mr.Exists("throttle:short:ip"))
	require.Equal(t, 10*time.Second, mr.TTL("throttle:short:ip"))

	mr.FastForward(10 * time.Second)
	hits, _, err := store.Increment(ctx, "short:ip", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, hits)
}

func TestRedisStoreWithLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := New(NewRedisStore(client, "test:"), Throttler{Name: "short", Limit: 2, Window: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := l.Check(ctx, "ip")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = l.Check(ctx, "ip")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = l.Check(ctx, "ip")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "3", mustGet(t, mr, "test:short:ip"))
}

func TestNewRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	store, client, err := NewRedisStoreFromURL(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NotNil(t, store)

	_, _, err = NewRedisStoreFromURL(context.Background(), "not a url")
	require.Error(t, err)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
