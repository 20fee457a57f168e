package sampler

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/itohio/airnode/pkg/config"
	"github.com/itohio/airnode/pkg/sensor"
	"github.com/itohio/airnode/pkg/state"
)

// AirQuality samples the analog gas sensor and stores a dirtiness percent.
type AirQuality struct {
	sensor sensor.AnalogSensor
	state  *state.Shared
	clean  int
	dirty  int
	period time.Duration
}

// NewAirQuality creates the air quality task.
func NewAirQuality(cfg *config.Config, s sensor.AnalogSensor, st *state.Shared) *AirQuality {
	return &AirQuality{
		sensor: s,
		state:  st,
		clean:  cfg.Calibration.CleanAir,
		dirty:  cfg.Calibration.DirtyAir,
		period: cfg.Sampling.AirQualityPeriod,
	}
}

// Sample performs one read and always writes the result.
func (a *AirQuality) Sample() int {
	raw := a.sensor.ReadAnalog()
	percent := DirtyPercent(raw, a.clean, a.dirty)
	a.state.WriteAirQuality(percent)

	log.WithFields(log.Fields{"raw": raw, "percent": percent}).Trace("Air quality sampled")
	return percent
}

// Run samples every period until ctx is done.
func (a *AirQuality) Run(ctx context.Context) {
	Run(ctx, a.period, func() { a.Sample() })
}

// DirtyPercent maps a raw reading onto 0..100 between the clean and dirty
// calibration points. Out of range readings saturate; the mapping truncates
// like integer interpolation on the MCU. Requires dirty > clean.
func DirtyPercent(raw, clean, dirty int) int {
	raw = clampInt(raw, clean, dirty)
	percent := (raw - clean) * 100 / (dirty - clean)
	return clampInt(percent, 0, 100)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
