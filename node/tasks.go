package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/itohio/airnode/pkg/sampler"
	"github.com/itohio/airnode/pkg/sensor"
)

// sampleOnce waits for the device to report and samples both sensors. The
// climate read is retried once per period until it succeeds or wait runs out;
// it returns false when the climate pair is still the zero value.
func sampleOnce(ctx context.Context, device sensor.Device, airQuality *sampler.AirQuality, climate *sampler.Climate, period, wait time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := device.WaitForData(ctx); err != nil {
		log.WithError(err).Warn("Sampling without sensor data")
	}
	airQuality.Sample()

	for !climate.Sample() {
		select {
		case <-ctx.Done():
			log.Warn("No climate reading before publishing")
			return false
		case <-time.After(period):
		}
	}
	return true
}

// reconnect reopens the device whenever it reports disconnected, checking
// every interval until ctx is done.
func reconnect(ctx context.Context, device sensor.Device, interval time.Duration) {
	sampler.Run(ctx, interval, func() {
		if device.IsConnected() {
			return
		}
		if err := device.Connect(); err != nil {
			log.WithError(err).Debug("Sensor reconnect failed")
			return
		}
		log.Info("Sensors reconnected")
	})
}
