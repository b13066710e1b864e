// Package mapping tracks which per-venue market identifier corresponds
// to each 15-minute interval, so the coordinator can subscribe the
// right ticker/market on each venue for "now" and "next."
package mapping

import (
	"sync"
	"time"

	"github.com/btcarb/boxarb/internal/interval"
)

// IntervalMapping binds one interval to both venues' market identifiers.
// Either field may be empty until that venue's discovery resolves it.
type IntervalMapping struct {
	Key          interval.Key
	ClobMarketID string
	OnchainMarketID string
	DiscoveredAt time.Time
}

// Store is a map from interval.Key to IntervalMapping. Setters
// are per-venue and merge rather than overwrite: resolving the clob
// market ID for an interval never erases an already-resolved onchain ID.
type Store struct {
	mu      sync.RWMutex
	entries map[interval.Key]IntervalMapping
	maxAge  time.Duration
}

// NewStore builds a Store whose Prune removes entries older than
// maxAge. Entries are removed only when Prune is called.
func NewStore(maxAge time.Duration) *Store {
	return &Store{entries: make(map[interval.Key]IntervalMapping), maxAge: maxAge}
}

// SetClob records the CLOB-style venue's market ID for key.
func (s *Store) SetClob(key interval.Key, marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[key]
	e.Key = key
	e.ClobMarketID = marketID
	if e.DiscoveredAt.IsZero() {
		e.DiscoveredAt = time.Now()
	}
	s.entries[key] = e
}

// SetOnchain records the onchain venue's market ID for key.
func (s *Store) SetOnchain(key interval.Key, marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[key]
	e.Key = key
	e.OnchainMarketID = marketID
	if e.DiscoveredAt.IsZero() {
		e.DiscoveredAt = time.Now()
	}
	s.entries[key] = e
}

// Get returns the mapping for key, if any.
func (s *Store) Get(key interval.Key) (IntervalMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.entries[key]
	return m, ok
}

// IsComplete reports whether both venues have resolved a market ID for key.
func (m IntervalMapping) IsComplete() bool {
	return m.ClobMarketID != "" && m.OnchainMarketID != ""
}

// Prune removes entries older than maxAge, relative to now.
func (s *Store) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if now.Sub(e.Key.Start) > s.maxAge {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked intervals.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
