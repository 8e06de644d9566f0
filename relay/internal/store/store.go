package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Record is the result of delivering one alert to one transport.
type Record struct {
	ID         string    `json:"id"`
	AlertID    string    `json:"alert_id"`
	Transport  string    `json:"transport"`
	Method     string    `json:"method"`
	Host       string    `json:"host"`
	OK         bool      `json:"ok"`
	StatusCode int       `json:"status_code,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
}

// Store is a thread-safe in-memory delivery log keyed by record ID.
// Entries older than the TTL are evicted by Run; when more than max entries
// are held, the oldest is dropped on insert.
type Store struct {
	mu    sync.RWMutex
	data  map[string]*entry
	order []string // insertion order, oldest first
	ttl   time.Duration
	max   int
	now   func() time.Time // injectable for deterministic tests
}

type entry struct {
	rec      Record
	storedAt time.Time
}

// New creates a Store with the given TTL and capacity.
func New(ttl time.Duration, max int) *Store {
	if max <= 0 {
		max = 1
	}
	return &Store{
		data: make(map[string]*entry),
		ttl:  ttl,
		max:  max,
		now:  time.Now,
	}
}

// Put stores rec, replacing any record with the same ID.
func (s *Store) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.data[rec.ID] = &entry{rec: rec, storedAt: s.now()}

	for len(s.order) > s.max {
		delete(s.data, s.order[0])
		s.order = s.order[1:]
	}
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// List returns the records stored within the TTL, newest first.
func (s *Store) List() []Record {
	s.mu.RLock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Record, 0, len(s.data))
	for _, e := range s.data {
		if e.storedAt.After(cutoff) {
			out = append(out, e.rec)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Count returns the number of records held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// TTL returns the configured retention.
func (s *Store) TTL() time.Duration { return s.ttl }

// Evict removes records stored at or before now minus TTL and returns how
// many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if e := s.data[id]; !e.storedAt.After(cutoff) {
			delete(s.data, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale deliveries", "count", n)
			}
		}
	}
}
