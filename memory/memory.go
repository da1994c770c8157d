// Package memory implements the in-process tier: a bounded LRU byte store
// with per-entry TTL, passive expiry on access, and an optional background
// sweep. Unlike shared admission caches, every accepted Set is observable
// until evicted or expired, and keys can be enumerated for pattern and
// predicate invalidation.
package memory

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// NoExpiry pins an entry for the life of the store (until evicted).
const NoExpiry time.Duration = -1

// Options tune the store. MaxEntries is required.
type Options struct {
	MaxEntries      int           // hard cap on live entries; LRU evicts beyond it
	DefaultTTL      time.Duration // applied when Set ttl == 0; 0 => entries never expire by default
	CleanupInterval time.Duration // background sweep period; 0 => passive expiry only
}

type entry struct {
	key       string
	val       []byte
	expiresAt time.Time // zero => no expiry
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	items map[string]*list.Element
	lru   *list.List // front = most recently used
	max   int

	defaultTTL time.Duration

	hits        uint64
	misses      uint64
	sets        uint64
	evictions   uint64
	expirations uint64

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Sets        uint64
	Evictions   uint64
	Expirations uint64
	Size        int
	MaxEntries  int
}

func New(opts Options) (*Store, error) {
	if opts.MaxEntries <= 0 {
		return nil, fmt.Errorf("memory: MaxEntries must be > 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("memory: DefaultTTL must be >= 0")
	}
	s := &Store{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		max:        opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
	}
	if opts.CleanupInterval > 0 {
		s.ticker = time.NewTicker(opts.CleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Sweep()
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s, nil
}

// Get returns the value and refreshes its recency. Expired entries are
// removed on access. The returned slice is shared; callers must not modify it.
func (s *Store) Get(key string) ([]byte, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		s.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if expired(e, now) {
		s.removeLocked(el)
		s.expirations++
		s.misses++
		return nil, false
	}
	s.lru.MoveToFront(el)
	s.hits++
	return e.val, true
}

// Peek is Get without recency refresh or hit/miss accounting.
func (s *Store) Peek(key string) ([]byte, bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if expired(e, now) {
		s.removeLocked(el)
		s.expirations++
		return nil, false
	}
	return e.val, true
}

// Set inserts or replaces the entry. ttl == 0 applies the store default;
// NoExpiry disables expiry for this entry. The LRU tail is evicted when the
// cap is exceeded.
func (s *Store) Set(key string, val []byte, ttl time.Duration) {
	expiresAt := s.expiry(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, val, expiresAt)
}

// SetNX inserts only when no live entry exists for key. The check and the
// insert run under one lock acquisition.
func (s *Store) SetNX(key string, val []byte, ttl time.Duration) bool {
	expiresAt := s.expiry(ttl)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		if !expired(el.Value.(*entry), now) {
			return false
		}
		s.removeLocked(el)
		s.expirations++
	}
	s.setLocked(key, val, expiresAt)
	return !s.closed
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	switch {
	case ttl == 0:
		if s.defaultTTL > 0 {
			return time.Now().Add(s.defaultTTL)
		}
	case ttl > 0:
		return time.Now().Add(ttl)
	}
	return time.Time{}
}

func (s *Store) setLocked(key string, val []byte, expiresAt time.Time) {
	if s.closed {
		return
	}
	s.sets++

	if el, ok := s.items[key]; ok {
		e := el.Value.(*entry)
		e.val = val
		e.expiresAt = expiresAt
		s.lru.MoveToFront(el)
		return
	}

	el := s.lru.PushFront(&entry{key: key, val: val, expiresAt: expiresAt})
	s.items[key] = el
	for len(s.items) > s.max {
		tail := s.lru.Back()
		if tail == nil {
			break
		}
		s.removeLocked(tail)
		s.evictions++
	}
}

func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeLocked(el)
	return true
}

// Exists reports liveness without touching recency or hit/miss counters.
func (s *Store) Exists(key string) bool {
	_, ok := s.Peek(key)
	return ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Keys snapshots the live (non-expired) key set.
func (s *Store) Keys() []string {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for k, el := range s.items {
		if expired(el.Value.(*entry), now) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Range calls fn for every live entry until fn returns false. Entries are
// snapshotted under the lock first, so fn may call back into the store.
func (s *Store) Range(fn func(key string, val []byte) bool) {
	now := time.Now()
	s.mu.Lock()
	type pair struct {
		k string
		v []byte
	}
	snap := make([]pair, 0, len(s.items))
	for k, el := range s.items {
		e := el.Value.(*entry)
		if expired(e, now) {
			continue
		}
		snap = append(snap, pair{k: k, v: e.val})
	}
	s.mu.Unlock()

	for _, p := range snap {
		if !fn(p.k, p.v) {
			return
		}
	}
}

// DeleteMatching removes every live entry whose key satisfies match and
// returns the removed keys. Runs under a single lock acquisition.
func (s *Store) DeleteMatching(match func(key string) bool) []string {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for k, el := range s.items {
		e := el.Value.(*entry)
		if expired(e, now) {
			s.removeLocked(el)
			s.expirations++
			continue
		}
		if match(k) {
			s.removeLocked(el)
			removed = append(removed, k)
		}
	}
	return removed
}

// Flush drops every entry and returns the dropped count.
func (s *Store) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	s.items = make(map[string]*list.Element)
	s.lru.Init()
	return n
}

// Sweep removes expired entries. Called by the background loop; exported
// for callers that disabled CleanupInterval and sweep on their own schedule.
func (s *Store) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, el := range s.items {
		if expired(el.Value.(*entry), now) {
			s.removeLocked(el)
			s.expirations++
			n++
		}
	}
	return n
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:        s.hits,
		Misses:      s.misses,
		Sets:        s.sets,
		Evictions:   s.evictions,
		Expirations: s.expirations,
		Size:        len(s.items),
		MaxEntries:  s.max,
	}
}

// Close stops the sweep loop. Safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.stopCh != nil {
		close(s.stopCh)
		s.ticker.Stop()
		s.wg.Wait()
	}
}

func (s *Store) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(s.items, e.key)
	s.lru.Remove(el)
}

func expired(e *entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}
