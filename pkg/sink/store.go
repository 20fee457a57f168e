package sink

import (
	"sync"
	"time"
)

// Record is one accepted measurement.
type Record struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	AirQuality  int       `json:"airQuality"`
	MeasuredAt  string    `json:"measuredAt"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// Store keeps the most recent records in a fixed size ring.
type Store struct {
	mu    sync.RWMutex
	ring  []Record
	next  int
	count int
	ids   map[string]int
}

// NewStore creates a store holding up to capacity records.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		ring: make([]Record, capacity),
		ids:  make(map[string]int),
	}
}

// Add stores r, evicting the oldest record when full.
func (s *Store) Add(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == len(s.ring) {
		old := s.ring[s.next]
		if s.ids[old.ID]--; s.ids[old.ID] <= 0 {
			delete(s.ids, old.ID)
		}
	} else {
		s.count++
	}

	s.ring[s.next] = r
	s.ids[r.ID]++
	s.next = (s.next + 1) % len(s.ring)
}

// Has reports whether a record with id is held.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids[id] > 0
}

// Latest returns the newest record.
func (s *Store) Latest() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return Record{}, false
	}
	return s.ring[(s.next-1+len(s.ring))%len(s.ring)], true
}

// Recent returns all held records, newest first.
func (s *Store) Recent() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, s.count)
	for i := 1; i <= s.count; i++ {
		out = append(out, s.ring[(s.next-i+len(s.ring))%len(s.ring)])
	}
	return out
}
