// Package store provides the process-wide, TTL-bounded key/value store that
// backs all per-identity engine state (events, profiles, fingerprints,
// rate-limiter buckets, reputation). Each entry carries its own lock and
// expiry, and a background ticker sweeps expired entries out of the map.
package store

import (
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Stats is a snapshot of store-wide counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
	HitRate   float64
}

type entry struct {
	mu           sync.Mutex
	value        any
	createdAt    time.Time
	lastAccessAt atomic.Int64 // unix nanos, read/written without the entry lock for fast LRU scans
	accessCount  atomic.Int64
	expiresAt    time.Time // zero value means no TTL
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (e *entry) touch(now time.Time) {
	e.lastAccessAt.Store(now.UnixNano())
	e.accessCount.Add(1)
}

// Options configures a Store at construction.
type Options struct {
	// Capacity is the maximum number of live keys before approximate-LRU
	// eviction kicks in on Set. Zero means unbounded.
	Capacity int
	// SweepInterval is how often the background janitor clears expired
	// entries. Defaults to 60s.
	SweepInterval time.Duration
	// Clock lets tests substitute a deterministic time source.
	Clock func() time.Time
}

// Store is a concurrency-safe, TTL-bounded map with approximate-LRU eviction
// over capacity. The zero value is not usable; construct with New.
type Store struct {
	opts  Options
	clock func() time.Time

	mu      sync.RWMutex // guards structural changes to entries (insert/delete/iterate)
	entries map[string]*entry

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	stop      chan struct{}
	stopOnce  sync.Once
	sweepDone chan struct{}
}

// New constructs a Store and starts its background sweeper unless
// SweepInterval is negative.
func New(opts Options) *Store {
	if opts.SweepInterval == 0 {
		opts.SweepInterval = 60 * time.Second
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Store{
		opts:      opts,
		clock:     clock,
		entries:   make(map[string]*entry),
		stop:      make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.sweepDone)
	}
	return s
}

// Close stops the background sweeper and releases all entries.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.sweepDone
	s.Clear()
}

func (s *Store) sweepLoop() {
	defer close(s.sweepDone)
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			n := s.Cleanup()
			if n > 0 {
				log.Debug().Int("evicted", n).Msg("store_sweep")
			}
		}
	}
}

// Set stores value under key with an optional TTL (zero means no expiry).
// If the store is at capacity, the single least-recently-accessed entry is
// evicted first (approximate LRU via linear scan, acceptable at the target
// sizes this engine targets).
func (s *Store) Set(key string, value any, ttl time.Duration) {
	now := s.clock()
	e := &entry{value: value, createdAt: now}
	e.touch(now)
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	if _, exists := s.entries[key]; !exists && s.opts.Capacity > 0 && len(s.entries) >= s.opts.Capacity {
		s.evictLRULocked()
	}
	s.entries[key] = e
	s.mu.Unlock()
}

// evictLRULocked must be called with s.mu held for writing. It removes the
// entry with the minimum lastAccessAt across the whole map.
func (s *Store) evictLRULocked() {
	var victim string
	var oldest int64 = 1<<63 - 1
	for k, e := range s.entries {
		t := e.lastAccessAt.Load()
		if t < oldest {
			oldest = t
			victim = k
		}
	}
	if victim != "" {
		delete(s.entries, victim)
		s.evictions.Add(1)
	}
}

// Get returns the value for key, refreshing its lastAccess time and access
// count. An expired entry is deleted and treated as a miss. The boolean
// reports presence.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		s.misses.Add(1)
		return nil, false
	}

	now := s.clock()
	if e.expired(now) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		s.misses.Add(1)
		return nil, false
	}

	e.mu.Lock()
	v := e.value
	e.mu.Unlock()
	e.touch(now)
	s.hits.Add(1)
	return v, true
}

// Has reports whether key is present and not expired, without affecting
// access stats or lastAccess time.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return !e.expired(s.clock())
}

// Delete removes key unconditionally.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// DeletePrefix removes every key with the given prefix atomically with
// respect to readers (held under the structural write lock for the whole
// scan+delete). Limiter.Reset uses it to purge an identity's buckets.
func (s *Store) DeletePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Update atomically replaces the value at key via fn(oldValue) -> (newValue,
// ok). If key is absent, oldValue is nil. If fn returns ok=false, the store
// is left unmodified and Update returns false, the caller's type-mismatch
// signal for update/push against a differently-typed existing value.
func (s *Store) Update(key string, fn func(old any, existed bool) (any, bool)) bool {
	now := s.clock()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{createdAt: now}
		e.touch(now)
		s.entries[key] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	newVal, apply := fn(e.value, ok)
	if !apply {
		return false
	}
	e.value = newVal
	e.touch(now)
	return true
}

// Increment treats the value at key as an int64 counter, creating it at 0 if
// absent, and returns the new value. amount defaults to 1 at the caller.
func (s *Store) Increment(key string, amount int64) int64 {
	var result int64
	s.Update(key, func(old any, existed bool) (any, bool) {
		cur, _ := old.(int64)
		cur += amount
		result = cur
		return cur, true
	})
	return result
}

// Push appends value to the list stored at key (creating it if absent or of
// the wrong type), trimming the oldest elements so the list never exceeds
// maxLen.
func (s *Store) Push(key string, value any, maxLen int) {
	s.Update(key, func(old any, existed bool) (any, bool) {
		list, _ := old.([]any)
		list = append(list, value)
		if maxLen > 0 && len(list) > maxLen {
			list = list[len(list)-maxLen:]
		}
		return list, true
	})
}

// Keys returns all non-expired keys matching a shell-style glob pattern
// (path.Match semantics). An empty pattern matches everything.
func (s *Store) Keys(pattern string) []string {
	now := s.clock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if e.expired(now) {
			continue
		}
		if pattern == "" {
			out = append(out, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
}

// Cleanup sweeps expired entries and returns the count removed. Safe to call
// concurrently with the background sweeper (it just does redundant work).
func (s *Store) Cleanup() int {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// GetStats returns a snapshot of store-wide counters.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	size := int64(len(s.entries))
	s.mu.RUnlock()

	hits := s.hits.Load()
	misses := s.misses.Load()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:      hits,
		Misses:    misses,
		Evictions: s.evictions.Load(),
		Size:      size,
		HitRate:   hitRate,
	}
}
