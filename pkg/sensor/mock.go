package sensor

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/itohio/airnode/pkg/config"
)

// Mock simulates the sensor pair for testing and development.
type Mock struct {
	cfg *config.MockConfig

	mu        sync.Mutex
	connected bool
	rng       *rand.Rand

	// Simulation state
	startTime time.Time
	now       func() time.Time
}

// NewMock creates a new mocked sensor pair. seed makes the noise and the
// failure pattern reproducible.
func NewMock(cfg *config.MockConfig, seed uint64) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			BaseTemperature: 22.0,
			BaseHumidity:    45.0,
			BaseAnalog:      1600,
			NoiseLevel:      0.2,
			FailureRate:     0.1,
		}
	}

	return &Mock{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

// Connect simulates connecting to the sensors.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return errors.New("already connected")
	}

	m.connected = true
	m.startTime = m.now()
	return nil
}

// Close stops the mocked sensors.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns whether the mock is connected.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// WaitForData returns at once; simulated readings exist from Connect on.
func (m *Mock) WaitForData(ctx context.Context) error {
	if !m.IsConnected() {
		return errors.New("mock not connected")
	}
	return ctx.Err()
}

// ReadAnalog returns a drifting raw ADC value. A disconnected mock reads the
// floor of the ADC like a floating pin pulled low.
func (m *Mock) ReadAnalog() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0
	}

	// Slow 10 minute swing of ±400 counts around the base value
	phase := m.elapsed() / 600
	value := float32(m.cfg.BaseAnalog) + 400*math32.Sin(2*math32.Pi*phase) + m.noise()*100

	return int(clamp(value, 0, MaxAnalog))
}

// ReadClimate returns a simulated climate reading or fails at the configured rate.
func (m *Mock) ReadClimate() (Climate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return Climate{}, errors.Wrap(ErrReadFailed, "mock not connected")
	}

	if m.rng.Float32() < m.cfg.FailureRate {
		return FromRaw(math32.NaN(), math32.NaN())
	}

	// 30 minute day/night style cycle
	phase := m.elapsed() / 1800
	temperature := m.cfg.BaseTemperature + 3*math32.Sin(2*math32.Pi*phase) + m.noise()
	humidity := m.cfg.BaseHumidity - 10*math32.Sin(2*math32.Pi*phase) + m.noise()

	return FromRaw(clamp(humidity, 0, 100), temperature)
}

// elapsed returns seconds since Connect.
func (m *Mock) elapsed() float32 {
	return float32(m.now().Sub(m.startTime).Seconds())
}

// noise returns a value in [-NoiseLevel, NoiseLevel].
func (m *Mock) noise() float32 {
	return (m.rng.Float32()*2 - 1) * m.cfg.NoiseLevel
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(v, hi))
}
