// Package state holds the latest sensor readings shared between the samplers
// and the publisher.
package state

import "sync"

// Reading is the latest value of every sensor channel.
type Reading struct {
	Temperature float32 // °C
	Humidity    float32 // % relative humidity
	AirQuality  int     // Dirtiness percent, 0..100
}

// Shared guards one Reading. Temperature and humidity are written together,
// air quality on its own, so a snapshot may combine values from different
// sampler passes.
type Shared struct {
	mu      sync.Mutex
	reading Reading
	seq     uint64 // bumped by every write

	callbacks []func(Reading)
	cbMu      sync.RWMutex

	// Serializes callback delivery; delivered is the seq last handed out
	notifyMu  sync.Mutex
	delivered uint64
}

// New returns a Shared holding a zero Reading.
func New() *Shared {
	return &Shared{
		callbacks: make([]func(Reading), 0),
	}
}

// WriteAirQuality stores a new air quality percent.
func (s *Shared) WriteAirQuality(percent int) {
	s.mu.Lock()
	s.reading.AirQuality = percent
	s.seq++
	r, seq := s.reading, s.seq
	s.mu.Unlock()

	s.notify(r, seq)
}

// WriteClimate stores a temperature/humidity pair from one successful read.
func (s *Shared) WriteClimate(temperature, humidity float32) {
	s.mu.Lock()
	s.reading.Temperature = temperature
	s.reading.Humidity = humidity
	s.seq++
	r, seq := s.reading, s.seq
	s.mu.Unlock()

	s.notify(r, seq)
}

// Snapshot returns all three fields copied under one lock acquisition.
func (s *Shared) Snapshot() Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading
}

// OnUpdate registers a callback invoked with the Reading produced by a write.
// Callbacks run on the writer's goroutine without the state lock held, one
// write at a time and in write order; a Reading older than one already
// delivered is skipped, so the last delivered Reading is always the latest.
// Callbacks may call Snapshot but must not write.
func (s *Shared) OnUpdate(callback func(Reading)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

func (s *Shared) notify(r Reading, seq uint64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if seq <= s.delivered {
		return
	}
	s.delivered = seq

	s.cbMu.RLock()
	callbacks := make([]func(Reading), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(r)
		}
	}
}
