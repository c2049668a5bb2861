// Package cache implements the in-process cache-aside layer used by the
// read path: a TTL and size-bounded key-value store with tag-based
// invalidation and memoization built on its get-or-compute primitive.
//
// Known limitations, kept deliberately:
//   - HitRate is a heuristic (see Stats), not a true hit/miss ratio.
//   - GetOrSet performs no in-flight de-duplication: concurrent misses for
//     the same key each invoke their factory independently.
//   - Tag index entries are not reconciled when a tagged key expires or is
//     evicted through the untagged path; invalidation of such keys is a
//     harmless no-op.
package cache

import (
	"context"
	"math"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTTL applies when an entry is set without an explicit TTL.
	DefaultTTL = 3600 * time.Second

	// DefaultMaxSize bounds the number of entries held at once.
	DefaultMaxSize = 10000

	// DefaultSweepInterval is how often the background sweep removes
	// expired entries that are never read again.
	DefaultSweepInterval = 5 * time.Minute
)

// EntryOptions overrides store defaults for a single Set call.
type EntryOptions struct {
	TTL     time.Duration // 0 means the store default
	MaxSize int           // 0 means the store default
}

// entry is a single cached value with access bookkeeping.
type entry struct {
	value        interface{}
	createdAt    time.Time
	expiresAt    time.Time
	accessCount  int64
	lastAccessed time.Time
}

func (e *entry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// Store is a process-wide cache with per-entry TTL, approximate-LRU
// eviction and a periodic expiry sweep. A single mutex guards the entry
// map and the tag index so that get-then-delete-on-expiry and
// set-with-eviction are each atomic with respect to other callers.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	tags    map[string]map[string]struct{}

	defaultTTL time.Duration
	maxSize    int

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once

	logger *zap.Logger
}

// StoreConfig configures a Store. Zero values fall back to the defaults.
type StoreConfig struct {
	DefaultTTL    time.Duration
	MaxSize       int
	SweepInterval time.Duration
}

// NewStore creates a Store and starts its background sweep. Callers own
// the store's lifetime and must call Stop during shutdown.
func NewStore(cfg StoreConfig, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	s := &Store{
		entries:       make(map[string]*entry),
		tags:          make(map[string]map[string]struct{}),
		defaultTTL:    cfg.DefaultTTL,
		maxSize:       cfg.MaxSize,
		sweepInterval: cfg.SweepInterval,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}

	go s.sweepLoop()

	return s
}

// Get returns the live value for key. An expired entry is removed and
// reported as a miss. Hits increment the entry's access count and refresh
// its last-accessed time.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}

	now := time.Now()
	if !e.live(now) {
		delete(s.entries, key)
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = now

	return e.value, true
}

// Has reports whether key holds a live value without touching its access
// statistics. Like Get, it removes an entry discovered to be expired.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if !e.live(time.Now()) {
		delete(s.entries, key)
		return false
	}
	return true
}

// Set stores value under key, overwriting any existing entry. When the
// size bound is reached, eviction runs before insertion so the bound holds
// after every call.
func (s *Store) Set(key string, value interface{}, opts ...EntryOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, opts)
}

func (s *Store) setLocked(key string, value interface{}, opts []EntryOptions) {
	ttl := s.defaultTTL
	maxSize := s.maxSize
	if len(opts) > 0 {
		if opts[0].TTL > 0 {
			ttl = opts[0].TTL
		}
		if opts[0].MaxSize > 0 {
			maxSize = opts[0].MaxSize
		}
	}

	if _, exists := s.entries[key]; !exists && len(s.entries) >= maxSize {
		s.evictLocked()
	}

	now := time.Now()
	s.entries[key] = &entry{
		value:        value,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
}

// evictLocked removes the least-recently-accessed 10% of entries
// (at least one). Approximate LRU: eviction is infrequent and the set is
// bounded, so a sort at eviction time beats O(1) LRU bookkeeping on every
// read.
func (s *Store) evictLocked() {
	type victim struct {
		key          string
		lastAccessed time.Time
	}

	candidates := make([]victim, 0, len(s.entries))
	for k, e := range s.entries {
		candidates = append(candidates, victim{key: k, lastAccessed: e.lastAccessed})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
	})

	n := int(math.Ceil(float64(len(candidates)) * 0.1))
	if n < 1 {
		n = 1
	}

	for _, v := range candidates[:n] {
		delete(s.entries, v.key)
	}

	s.logger.Debug("Evicted least recently used cache entries",
		zap.Int("count", n),
		zap.Int("remaining", len(s.entries)),
	)
}

// Delete removes key and reports whether an entry was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return ok
}

// Clear removes every entry and returns the number removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[string]*entry)

	s.logger.Info("Cleared cache", zap.Int("count", n))
	return n
}

// ClearByPattern removes every key matching re and returns the count.
// This is the bulk-invalidation mechanism for callers that do not use
// tags.
func (s *Store) ClearByPattern(re *regexp.Regexp) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.entries {
		if re.MatchString(k) {
			delete(s.entries, k)
			n++
		}
	}

	s.logger.Info("Cleared cache entries by pattern",
		zap.String("pattern", re.String()),
		zap.Int("count", n),
	)
	return n
}

// GetOrSet returns the cached value for key, or invokes factory on a
// miss, stores its result, and returns it. Factory failures propagate to
// the caller and nothing is cached. Concurrent misses for the same key
// each invoke factory independently; there is no single-flight.
func (s *Store) GetOrSet(ctx context.Context, key string, factory func(context.Context) (interface{}, error), opts ...EntryOptions) (interface{}, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	// The factory may block on the backing store; compute outside the lock.
	v, err := factory(ctx)
	if err != nil {
		return nil, err
	}

	s.Set(key, v, opts...)
	return v, nil
}

// ItemStats describes one live entry in a stats snapshot.
type ItemStats struct {
	Key          string        `json:"key"`
	AccessCount  int64         `json:"accessCount"`
	Age          time.Duration `json:"age"`
	TTLRemaining time.Duration `json:"ttlRemaining"`
}

// Stats is a point-in-time snapshot of the store.
type Stats struct {
	Size    int         `json:"size"`
	MaxSize int         `json:"maxSize"`
	HitRate float64     `json:"hitRate"`
	Items   []ItemStats `json:"items"`
}

// Stats returns the current size, a per-key breakdown sorted by
// descending access count, and the hit-rate heuristic
// totalAccesses / (totalAccesses + entryCount) * 100, rounded to two
// decimals. True hit/miss counters are not tracked; downstream dashboards
// depend on this exact shape, so do not redefine it.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	items := make([]ItemStats, 0, len(s.entries))
	var totalAccesses int64
	for k, e := range s.entries {
		if !e.live(now) {
			continue
		}
		totalAccesses += e.accessCount
		items = append(items, ItemStats{
			Key:          k,
			AccessCount:  e.accessCount,
			Age:          now.Sub(e.createdAt),
			TTLRemaining: e.expiresAt.Sub(now),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].AccessCount > items[j].AccessCount
	})

	hitRate := 0.0
	if denom := totalAccesses + int64(len(items)); denom > 0 {
		hitRate = float64(totalAccesses) / float64(denom) * 100
		hitRate = math.Round(hitRate*100) / 100
	}

	return Stats{
		Size:    len(items),
		MaxSize: s.maxSize,
		HitRate: hitRate,
		Items:   items,
	}
}

// sweepLoop periodically removes expired entries regardless of read
// activity, bounding memory held by keys that are set but never read
// again.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	n := 0
	for k, e := range s.entries {
		if !e.live(now) {
			delete(s.entries, k)
			n++
		}
	}

	if n > 0 {
		s.logger.Debug("Swept expired cache entries", zap.Int("count", n))
	}
}

// Stop cancels the background sweep and clears the store. It is safe to
// call more than once; only the first call has any effect.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.Clear()
	})
}
