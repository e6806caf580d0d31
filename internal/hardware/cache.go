package hardware

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/benchforge/portcore/pkg/metrics"
)

// Config configures a MetadataCache.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Reader        EepromReader
	Enumerator    PortEnumerator
	Logger        *slog.Logger
	Metrics       *metrics.CacheMetrics

	// MaxCacheSize bounds how many ports' recency the eviction hint index
	// tracks. Once exceeded, the least-recently-used port's entry is
	// dropped from the map itself, not just the hint.
	MaxCacheSize int
}

func (c *Config) setDefaults() {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MaxCacheSize <= 0 {
		c.MaxCacheSize = 1024
	}
}

func (c *Config) validate() error {
	if c.Reader == nil {
		return errConfig("reader is required")
	}
	if c.Enumerator == nil {
		return errConfig("enumerator is required")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errConfig(msg string) error { return configError("hardware: " + msg) }

// entry is one cached port's metadata plus its bookkeeping. Each entry has
// its own mutex so one port's refresh never blocks lookups on another.
type entry struct {
	mu           sync.Mutex
	metadata     HardwareMetadata
	expiresAt    time.Time
	refreshing   bool
	lastAccessed time.Time
	accessCount  int64
}

// Stats is a point-in-time snapshot of cache operation counters.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
	Expired int64
}

// MetadataCache caches per-port HardwareMetadata with single-writer-per-key
// refresh semantics. entries is the source of truth; recency is an
// eviction-hint index only — it never serves reads, it just caps how many
// ports the map is allowed to hold by dropping the least-recently-touched
// port's entry once MaxCacheSize is exceeded.
type MetadataCache struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]*entry

	recency *lru.Cache[string, struct{}]

	sf singleflight.Group

	hits    int64
	misses  int64
	expired int64

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewMetadataCache builds a cache from cfg, applying defaults for TTL and
// sweep interval if unset.
func NewMetadataCache(cfg Config) (*MetadataCache, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &MetadataCache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	recency, err := lru.NewWithEvict[string, struct{}](cfg.MaxCacheSize, func(portName string, _ struct{}) {
		// Invalidate acquires c.mu; run it outside the LRU's own lock
		// (held by the caller of this callback) to avoid a self-deadlock
		// when Get/upsert call recency.Add while already holding c.mu.
		go c.Invalidate(portName)
	})
	if err != nil {
		return nil, errConfig("build recency index: " + err.Error())
	}
	c.recency = recency

	return c, nil
}

// Start launches the background sweep loop. Safe to call once; a second
// call is a no-op.
func (c *MetadataCache) Start(ctx context.Context) {
	c.once.Do(func() {
		go c.sweepLoop(ctx)
	})
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (c *MetadataCache) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *MetadataCache) sweepLoop(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.clearExpired()
		}
	}
}

// Get returns the cached metadata for portName, synchronously populating it
// on first access or forceRefresh, and kicking a single-flighted background
// refresh when a stale entry is found. The returned metadata may be stale;
// callers passing forceRefresh always get a freshly read value.
func (c *MetadataCache) Get(ctx context.Context, portName string, forceRefresh bool) *HardwareMetadata {
	defer c.recency.Add(portName, struct{}{})

	c.mu.RLock()
	e, ok := c.entries[portName]
	c.mu.RUnlock()

	if !ok || forceRefresh {
		md := c.fetch(ctx, portName)
		e = c.upsert(portName, md)
		atomic.AddInt64(&c.misses, 1)
		result := e.metadata
		return &result
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastAccessed = time.Now()
	e.accessCount++
	atomic.AddInt64(&c.hits, 1)

	if time.Now().Before(e.expiresAt) {
		result := e.metadata
		return &result
	}

	if !e.refreshing {
		e.refreshing = true
		go c.backgroundRefresh(portName)
	}

	result := e.metadata
	return &result
}

func (c *MetadataCache) backgroundRefresh(portName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, _ = c.sf.Do(portName, func() (interface{}, error) {
		md := c.fetch(ctx, portName)
		c.mu.RLock()
		e, ok := c.entries[portName]
		c.mu.RUnlock()
		if ok {
			e.mu.Lock()
			e.metadata = md
			e.expiresAt = time.Now().Add(c.cfg.TTL)
			e.refreshing = false
			e.mu.Unlock()
		}
		return nil, nil
	})
}

func (c *MetadataCache) fetch(ctx context.Context, portName string) HardwareMetadata {
	descriptor, err := c.cfg.Enumerator.Info(ctx, portName)
	if err != nil || descriptor == nil {
		return HardwareMetadata{
			IsValid:      false,
			ErrorMessage: "port not found during metadata refresh",
			LastRead:     time.Now().UnixNano(),
		}
	}

	data, err := c.cfg.Reader.Read(ctx, descriptor.BridgeSerial)
	if err != nil {
		c.cfg.Logger.Warn("eeprom read failed", "port", portName, "error", err)
		return HardwareMetadata{
			SerialNumber: descriptor.BridgeSerial,
			IsValid:      false,
			ErrorMessage: err.Error(),
			LastRead:     time.Now().UnixNano(),
		}
	}

	return HardwareMetadata{
		SerialNumber: descriptor.BridgeSerial,
		ProductDesc:  data.ProductDescription,
		IsValid:      data.IsValid,
		ErrorMessage: data.Error,
		LastRead:     time.Now().UnixNano(),
	}
}

func (c *MetadataCache) upsert(portName string, md HardwareMetadata) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[portName]
	if !ok {
		e = &entry{}
		c.entries[portName] = e
	}
	e.metadata = md
	e.expiresAt = time.Now().Add(c.cfg.TTL)
	e.lastAccessed = time.Now()
	e.accessCount++
	return e
}

// Invalidate synchronously removes a cached entry.
func (c *MetadataCache) Invalidate(portName string) {
	c.mu.Lock()
	delete(c.entries, portName)
	c.mu.Unlock()
	c.recency.Remove(portName)
}

// clearExpired drops expired entries, skipping any currently refreshing.
func (c *MetadataCache) clearExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for name, e := range c.entries {
		e.mu.Lock()
		expired := now.After(e.expiresAt) && !e.refreshing
		e.mu.Unlock()
		if expired {
			delete(c.entries, name)
			atomic.AddInt64(&c.expired, 1)
		}
	}
}

// Stats returns a snapshot of cache operation counters.
func (c *MetadataCache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Entries: entries,
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Expired: atomic.LoadInt64(&c.expired),
	}
}
