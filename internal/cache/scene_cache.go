// Package cache keeps recently decoded scenes in memory so that repeated
// chip requests against the same bundle do not reload it from disk.
//
// Entries expire after a TTL and the cache holds at most MaxEntries scenes,
// evicting the least recently used. A background loop sweeps expired
// entries until its context is cancelled.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/star/goeschip/internal/metrics"
	"github.com/star/goeschip/internal/scene"
)

// Config holds cache configuration.
type Config struct {
	TTL        time.Duration // How long an unused scene stays cached (default: 10m)
	MaxEntries int           // Upper bound on cached scenes (default: 4)
	Sweep      time.Duration // Interval of the expiry loop (default: 1m)
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 4
	}
	if c.Sweep <= 0 {
		c.Sweep = time.Minute
	}
	return c
}

// LoadFunc decodes the scene called name.
type LoadFunc func(name string) (*scene.Scene, error)

// entry wraps a scene with access metadata.
type entry struct {
	scene    *scene.Scene
	lastUsed time.Time
}

// SceneCache is a load-through cache of decoded scenes.
// Safe for concurrent use by multiple goroutines.
type SceneCache struct {
	mu      sync.Mutex
	entries map[string]*entry

	config Config
	load   LoadFunc
	logger *slog.Logger
	now    func() time.Time

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewSceneCache creates a cache that fills misses with load.
func NewSceneCache(config Config, load LoadFunc, logger *slog.Logger) *SceneCache {
	config = config.withDefaults()
	logger.Info("scene cache initialized",
		"ttl_seconds", config.TTL.Seconds(),
		"max_entries", config.MaxEntries,
	)
	return &SceneCache{
		entries: make(map[string]*entry),
		config:  config,
		load:    load,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the scene called name, loading it on a miss. Load errors are
// returned as is and nothing is cached.
func (c *SceneCache) Get(name string) (*scene.Scene, error) {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[name]; ok && now.Sub(e.lastUsed) < c.config.TTL {
		e.lastUsed = now
		c.mu.Unlock()
		c.hits.Add(1)
		metrics.IncSceneCacheHits()
		return e.scene, nil
	}
	c.mu.Unlock()

	c.misses.Add(1)
	metrics.IncSceneCacheMisses()

	// Loads run outside the lock; two concurrent misses on one scene both
	// load it and the later one wins.
	s, err := c.load(name)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("cache: loader returned no scene")
	}

	c.mu.Lock()
	c.entries[name] = &entry{scene: s, lastUsed: now}
	evicted := c.evictOverflowLocked()
	c.mu.Unlock()

	c.recordEvictions(evicted)
	return s, nil
}

// evictOverflowLocked drops least recently used entries beyond MaxEntries.
// Caller must hold mu.
func (c *SceneCache) evictOverflowLocked() int {
	removed := 0
	for len(c.entries) > c.config.MaxEntries {
		var oldestName string
		var oldest time.Time
		for name, e := range c.entries {
			if oldestName == "" || e.lastUsed.Before(oldest) {
				oldestName, oldest = name, e.lastUsed
			}
		}
		delete(c.entries, oldestName)
		removed++
	}
	return removed
}

// evictExpired removes entries unused for longer than the TTL.
func (c *SceneCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.TTL)

	c.mu.Lock()
	removed := 0
	for name, e := range c.entries {
		if e.lastUsed.Before(cutoff) {
			delete(c.entries, name)
			removed++
		}
	}
	c.mu.Unlock()

	c.recordEvictions(removed)
	return removed
}

func (c *SceneCache) recordEvictions(n int) {
	if n > 0 {
		c.evictions.Add(int64(n))
		c.logger.Debug("scene cache eviction", "entries_removed", n)
	}
	c.updateMetrics()
}

// Start sweeps expired entries every Sweep interval. Blocks until ctx is
// cancelled.
func (c *SceneCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.Sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("scene cache sweeper stopped")
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

// Stats holds cache statistics.
type Stats struct {
	Entries   int      `json:"entries"`
	SizeBytes int64    `json:"size_bytes"`
	Scenes    []string `json:"scenes"`
	Hits      int64    `json:"hits"`
	Misses    int64    `json:"misses"`
	Evictions int64    `json:"evictions"`
}

// Stats returns current cache statistics.
func (c *SceneCache) Stats() Stats {
	c.mu.Lock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	c.mu.Unlock()
	sort.Strings(names)

	return Stats{
		Entries:   len(names),
		SizeBytes: c.estimateSizeBytes(),
		Scenes:    names,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// estimateSizeBytes returns a rough estimate of the cached sample memory.
func (c *SceneCache) estimateSizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, e := range c.entries {
		s := e.scene
		total += int64(len(s.X)+len(s.Y)) * int64(unsafe.Sizeof(float64(0)))
		if s.CMI != nil {
			total += int64(len(s.CMI.Data)) * int64(unsafe.Sizeof(float32(0)))
		}
	}
	return total
}

// updateMetrics publishes current cache size to Prometheus.
func (c *SceneCache) updateMetrics() {
	c.mu.Lock()
	count := len(c.entries)
	c.mu.Unlock()

	metrics.SetSceneCacheEntries(count)
	metrics.SetSceneCacheSizeBytes(c.estimateSizeBytes())
}
