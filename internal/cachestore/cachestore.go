// Package cachestore implements CacheStore (spec §4.E): a TTL + stale
// window store with stale-while-revalidate background refresh and an
// invalidation API. Grounded on the teacher's internal/edge/cache
// (CacheService + CacheMetadata, which track storedAt/expiresAt and
// serve "fresh vs expired" off a filesystem-backed entry) reworked into
// an in-memory, in-process store with the spec's three-state read
// classification (fresh/stale/expired) instead of the teacher's
// two-state (valid/expired) filesystem cache.
package cachestore

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fetchcore/fetchengine/pkg/types"
)

// EmitFunc lets the store raise lifecycle events the way the pipeline
// does; nil is a valid no-op sink.
type EmitFunc func(types.Event)

// Entry is a single cached value plus its freshness bookkeeping.
type Entry struct {
	Value       any
	StoredAt    time.Time
	TTL         time.Duration
	StaleIn     *time.Duration
	Revalidating bool
}

func (e *Entry) state(now time.Time) types.CacheEntryState {
	age := now.Sub(e.StoredAt)
	if age >= e.TTL {
		return types.CacheStateExpired
	}
	if e.StaleIn != nil && *e.StaleIn < e.TTL && age >= *e.StaleIn {
		return types.CacheStateStale
	}
	return types.CacheStateFresh
}

func (e *Entry) expiresIn(now time.Time) time.Duration {
	d := e.TTL - now.Sub(e.StoredAt)
	if d < 0 {
		return 0
	}
	return d
}

// Store is the read-through, in-memory SWR cache. Single owner per
// engine instance (spec §5).
type Store struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	emit     EmitFunc
	now      func() time.Time
	destroyed bool

	cacheSize     atomic.Int64
	inflightCount atomic.Int64
}

// New creates an empty Store. emit may be nil.
func New(emit EmitFunc) *Store {
	return &Store{
		entries: make(map[string]*Entry),
		emit:    emit,
		now:     time.Now,
	}
}

func (s *Store) fireEmit(evt types.Event) {
	if s.emit != nil {
		s.emit(evt)
	}
}

// GetResult is what a read returns.
type GetResult struct {
	State types.CacheEntryState
	Value any
	Entry *Entry
}

// Get classifies and returns the entry at key. Expired entries are
// removed and reported as a miss (spec §4.E). A stale hit fires
// fetch-cache-stale here; the caller (pipeline) is responsible for
// invoking Revalidate with its producer — CacheStore does not know how
// to refetch on its own.
func (s *Store) Get(key string) GetResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return GetResult{State: types.CacheStateMiss}
	}

	e, ok := s.entries[key]
	if !ok {
		s.fireEmit(types.Event{Type: types.EventFetchCacheMiss, Cache: &types.CacheEventData{Key: key}})
		return GetResult{State: types.CacheStateMiss}
	}

	now := s.now()
	switch e.state(now) {
	case types.CacheStateExpired:
		delete(s.entries, key)
		s.cacheSize.Add(-1)
		s.fireEmit(types.Event{Type: types.EventFetchCacheExpire, Cache: &types.CacheEventData{Key: key}})
		s.fireEmit(types.Event{Type: types.EventFetchCacheMiss, Cache: &types.CacheEventData{Key: key}})
		return GetResult{State: types.CacheStateMiss}
	case types.CacheStateStale:
		s.fireEmit(types.Event{Type: types.EventFetchCacheStale, Cache: &types.CacheEventData{
			Key: key, IsStale: true, ExpiresIn: e.expiresIn(now),
		}})
		return GetResult{State: types.CacheStateStale, Value: e.Value, Entry: e}
	default:
		s.fireEmit(types.Event{Type: types.EventFetchCacheHit, Cache: &types.CacheEventData{
			Key: key, ExpiresIn: e.expiresIn(now),
		}})
		return GetResult{State: types.CacheStateFresh, Value: e.Value, Entry: e}
	}
}

// Set stores value under key with storedAt = now.
func (s *Store) Set(key string, value any, ttl time.Duration, staleIn *time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	_, existed := s.entries[key]
	s.entries[key] = &Entry{Value: value, StoredAt: s.now(), TTL: ttl, StaleIn: staleIn}
	if !existed {
		s.cacheSize.Add(1)
	}
	s.fireEmit(types.Event{Type: types.EventFetchCacheSet, Cache: &types.CacheEventData{Key: key, ExpiresIn: ttl}})
}

// Delete removes key, returning whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.cacheSize.Add(-1)
		return true
	}
	return false
}

// Invalidate removes every entry for which predicate returns true,
// returning the count removed. Completes synchronously with respect to
// other store operations (spec §5: "no partial visibility of a
// multi-key invalidate").
func (s *Store) Invalidate(predicate func(key string, value any) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if predicate(k, e.Value) {
			delete(s.entries, k)
			n++
		}
	}
	s.cacheSize.Add(int64(-n))
	return n
}

// InvalidatePath removes entries whose key matches matcher: a string
// prefix, a *regexp.Regexp, or a func(string) bool predicate.
func (s *Store) InvalidatePath(matcher any) int {
	var test func(string) bool
	switch m := matcher.(type) {
	case string:
		test = func(k string) bool { return strings.HasPrefix(k, m) }
	case *regexp.Regexp:
		test = m.MatchString
	case func(string) bool:
		test = m
	default:
		return 0
	}
	return s.Invalidate(func(key string, _ any) bool { return test(key) })
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
	s.cacheSize.Store(0)
}

// Stats reports current non-negative counters (spec §8).
func (s *Store) Stats() (cacheSize, inflightCount int) {
	return int(s.cacheSize.Load()), int(s.inflightCount.Load())
}

// Destroy clears entries, flags the store so future ops are no-ops with
// consistent zeroed stats, and lets any in-flight revalidation finish
// without touching the (now cleared) map.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	s.entries = make(map[string]*Entry)
	s.cacheSize.Store(0)
	s.inflightCount.Store(0)
}

// Revalidate schedules background refresh for key if no revalidation is
// already in flight for it (spec §4.E: "only one background
// revalidation per key is permitted at a time"). On success the new
// value replaces the entry with fresh timestamps and fires
// fetch-cache-set; on failure the existing value is left intact until
// TTL expiry and fetch-cache-revalidate-error fires. Returns whether a
// revalidation was actually started.
func (s *Store) Revalidate(key string, ttl time.Duration, staleIn *time.Duration, producer func() (any, error)) bool {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false
	}
	e, ok := s.entries[key]
	if !ok || e.Revalidating {
		s.mu.Unlock()
		return false
	}
	e.Revalidating = true
	s.inflightCount.Add(1)
	s.mu.Unlock()

	s.fireEmit(types.Event{Type: types.EventFetchCacheRevalidate, Cache: &types.CacheEventData{Key: key}})

	go func() {
		defer func() {
			s.mu.Lock()
			if !s.destroyed {
				s.inflightCount.Add(-1)
			}
			s.mu.Unlock()
		}()
		value, err := producer()

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.destroyed {
			return
		}
		cur, stillPresent := s.entries[key]
		if err != nil {
			if stillPresent {
				cur.Revalidating = false
			}
			s.mu.Unlock()
			s.fireEmit(types.Event{Type: types.EventFetchCacheRevalidateError, CacheRevalErr: &types.CacheRevalidateErrorData{Key: key, Err: err}})
			s.mu.Lock()
			return
		}

		if !stillPresent {
			s.cacheSize.Add(1)
		}
		s.entries[key] = &Entry{Value: value, StoredAt: s.now(), TTL: ttl, StaleIn: staleIn}
		s.mu.Unlock()
		s.fireEmit(types.Event{Type: types.EventFetchCacheSet, Cache: &types.CacheEventData{Key: key, ExpiresIn: ttl}})
		s.mu.Lock()
	}()

	return true
}
