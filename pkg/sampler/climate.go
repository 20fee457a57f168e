package sampler

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/itohio/airnode/pkg/config"
	"github.com/itohio/airnode/pkg/sensor"
	"github.com/itohio/airnode/pkg/state"
)

// Climate samples the temperature/humidity sensor. Failed reads keep the
// previously stored pair.
type Climate struct {
	sensor sensor.ClimateSensor
	state  *state.Shared
	period time.Duration

	observers []func(err error)
	obsMu     sync.RWMutex
}

// NewClimate creates the climate task.
func NewClimate(cfg *config.Config, s sensor.ClimateSensor, st *state.Shared) *Climate {
	return &Climate{
		sensor: s,
		state:  st,
		period: cfg.Sampling.ClimatePeriod,
	}
}

// OnRead registers a callback receiving the outcome of every read (nil on success).
func (c *Climate) OnRead(fn func(err error)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// Sample performs one read and stores it only if both values are valid.
func (c *Climate) Sample() bool {
	reading, err := c.sensor.ReadClimate()
	c.notify(err)

	if err != nil {
		log.WithError(err).Debug("Climate read failed, keeping previous values")
		return false
	}

	c.state.WriteClimate(reading.Temperature, reading.Humidity)
	log.WithFields(log.Fields{
		"temperature": reading.Temperature,
		"humidity":    reading.Humidity,
	}).Trace("Climate sampled")
	return true
}

// Run samples every period until ctx is done.
func (c *Climate) Run(ctx context.Context) {
	Run(ctx, c.period, func() { c.Sample() })
}

func (c *Climate) notify(err error) {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, fn := range c.observers {
		fn(err)
	}
}
