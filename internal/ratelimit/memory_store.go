package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type window struct {
	hits    int
	resetAt time.Time
}

// MemoryStore keeps windows in process memory. Run removes ended windows in
// the background.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window

	cleanupInterval time.Duration
	logger          *zap.Logger
	now             func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often ended windows are removed.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithLogger sets the logger for cleanup events.
func WithLogger(logger *zap.Logger) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if logger != nil {
			ms.logger = logger
		}
	}
}

func withClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.now = now
	}
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		windows:         make(map[string]*window),
		cleanupInterval: time.Minute,
		logger:          zap.NewNop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

func (ms *MemoryStore) Increment(_ context.Context, key string, d time.Duration) (int, time.Time, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	w, ok := ms.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(d)}
		ms.windows[key] = w
	}
	w.hits++
	return w.hits, w.resetAt, nil
}

// Len returns the number of tracked windows.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.windows)
}

// Cleanup removes every window that has ended and returns how many were dropped.
func (ms *MemoryStore) Cleanup() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	removed := 0
	for key, w := range ms.windows {
		if !now.Before(w.resetAt) {
			delete(ms.windows, key)
			removed++
		}
	}
	return removed
}

// Run cleans up periodically until ctx is done. It blocks; use it from an
// errgroup or a goroutine.
func (ms *MemoryStore) Run(ctx context.Context) error {
	if ms.cleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be > 0, got %v", ms.cleanupInterval)
	}
	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	ms.logger.Info("rate limit cleanup started", zap.Duration("cleanup_interval", ms.cleanupInterval))
	for {
		select {
		case <-ctx.Done():
			ms.logger.Info("rate limit cleanup stopped")
			return nil
		case <-ticker.C:
			if n := ms.Cleanup(); n > 0 {
				ms.logger.Debug("rate limit windows removed", zap.Int("removed", n))
			}
		}
	}
}
