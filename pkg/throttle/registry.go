package throttle

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Registry lazily maintains one bucket per subject key, all sharing one
// configuration. Buckets idle past the timeout are swept by a background
// cleanup loop so unbounded key spaces cannot leak memory.
type Registry struct {
	cfg *Config
	log *slog.Logger

	mu      sync.RWMutex
	entries map[string]*registryEntry

	cleanupInterval time.Duration
	idleTimeout     time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

type registryEntry struct {
	bucket     *Bucket
	lastAccess atomic.Int64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCleanupInterval sets how often stale buckets are swept.
// Set to 0 to disable background cleanup.
func WithCleanupInterval(interval time.Duration) RegistryOption {
	return func(r *Registry) {
		r.cleanupInterval = interval
	}
}

// WithIdleTimeout sets how long a bucket may go unused before the cleanup
// loop removes it. Non-positive values are ignored.
func WithIdleTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.idleTimeout = timeout
		}
	}
}

// WithLogger sets the logger used by the cleanup loop. Nil is ignored.
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry creates a registry over the given configuration. The cleanup
// loop wakes on wall-clock time but measures idleness on the configuration's
// clock, so with a manual clock entries age only as that clock is advanced.
func NewRegistry(cfg *Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		cfg:             cfg,
		log:             slog.New(slog.DiscardHandler),
		entries:         make(map[string]*registryEntry),
		cleanupInterval: 5 * time.Minute,
		idleTimeout:     time.Hour,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.cleanupInterval > 0 {
		go r.cleanup()
	}

	return r
}

// Bucket returns the bucket for the given key, creating it on first use.
func (r *Registry) Bucket(key string) *Bucket {
	now := r.cfg.clk.Now()

	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		entry.lastAccess.Store(now)
		return entry.bucket
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have created the entry between the locks.
	if entry, ok := r.entries[key]; ok {
		entry.lastAccess.Store(now)
		return entry.bucket
	}

	entry = &registryEntry{bucket: r.cfg.NewBucket()}
	entry.lastAccess.Store(now)
	r.entries[key] = entry
	return entry.bucket
}

// Remove drops the bucket for the given key, if any.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Len returns the number of live buckets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.stopCleanup)
	})
}

func (r *Registry) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := r.removeStale(); removed > 0 {
				r.log.Debug("removed stale throttle buckets", slog.Int("count", removed))
			}
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *Registry) removeStale() int {
	now := r.cfg.clk.Now()
	threshold := r.idleTimeout.Nanoseconds()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.entries {
		if now-entry.lastAccess.Load() > threshold {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}
