package sampler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/airnode/pkg/config"
	"github.com/itohio/airnode/pkg/sensor"
	"github.com/itohio/airnode/pkg/state"
)

// TestRun_GracefulShutdown tests that Run steps periodically and returns
// once the context is cancelled.
func TestRun_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var steps atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, 10*time.Millisecond, func() { steps.Add(1) })
	}()

	assert.Eventually(t, func() bool { return steps.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	stopped := steps.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, steps.Load(), "no steps after Run returned")
}

// TestRun_FirstStepImmediate tests that the first step does not wait a period.
func TestRun_FirstStepImmediate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan struct{}, 1)
	go Run(ctx, time.Hour, func() {
		select {
		case first <- struct{}{}:
		default:
		}
	})

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("first step did not run immediately")
	}
}

// TestSamplers_ConcurrentWithState runs both samplers against the mock
// sensors at their own cadences and checks the shared state stays valid.
func TestSamplers_ConcurrentWithState(t *testing.T) {
	cfg := config.Default()
	cfg.Sampling.AirQualityPeriod = 2 * time.Millisecond
	cfg.Sampling.ClimatePeriod = 3 * time.Millisecond
	cfg.Mock.FailureRate = 0.3

	dev := sensor.NewMock(&cfg.Mock, 3)
	assert.NoError(t, dev.Connect())

	st := state.New()
	aq := NewAirQuality(cfg, dev, st)
	cl := NewClimate(cfg, dev, st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { aq.Run(ctx); done <- struct{}{} }()
	go func() { cl.Run(ctx); done <- struct{}{} }()

	deadline := time.After(100 * time.Millisecond)
loop:
	for {
		select {
		case <-deadline:
			break loop
		default:
			r := st.Snapshot()
			assert.GreaterOrEqual(t, r.AirQuality, 0)
			assert.LessOrEqual(t, r.AirQuality, 100)
			assert.GreaterOrEqual(t, r.Humidity, float32(0))
			assert.LessOrEqual(t, r.Humidity, float32(100))
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	for range 2 {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sampler did not stop")
		}
	}
	assert.NotZero(t, st.Snapshot().Temperature, "at least one climate read should have succeeded")
}
