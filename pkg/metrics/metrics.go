// Package metrics exposes the node's readings and task outcomes to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/airnode/pkg/publish"
	"github.com/itohio/airnode/pkg/state"
)

const (
	resultOK     = "ok"
	resultFailed = "failed"
)

// Metrics holds the node's collectors in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	temperature  prometheus.Gauge
	humidity     prometheus.Gauge
	airQuality   prometheus.Gauge
	climateReads *prometheus.CounterVec
	publishes    *prometheus.CounterVec
}

func newGauge(name string, help string) prometheus.Gauge {
	return prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
	)
}

func newCounter(name string, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		[]string{"result"},
	)
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry:     prometheus.NewRegistry(),
		temperature:  newGauge("airnode_temperature_celsius", "Air temperature (units: degrees Celsius)"),
		humidity:     newGauge("airnode_humidity_percent", "Relative humidity (units: %)"),
		airQuality:   newGauge("airnode_air_quality_percent", "Air dirtiness estimated from the MQ135 (units: %, 0 = clean)"),
		climateReads: newCounter("airnode_climate_reads_total", "Climate sensor reads by result"),
		publishes:    newCounter("airnode_publish_total", "Publish cycles by result"),
	}

	m.registry.MustRegister(
		m.temperature,
		m.humidity,
		m.airQuality,
		m.climateReads,
		m.publishes,
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
	)

	// Known labels start at zero instead of appearing on first use
	for _, r := range []string{resultOK, resultFailed} {
		m.climateReads.WithLabelValues(r)
	}
	for _, o := range []publish.Outcome{
		publish.OutcomeOK,
		publish.OutcomeSkipped,
		publish.OutcomeHTTPError,
		publish.OutcomeTransportError,
	} {
		m.publishes.WithLabelValues(string(o))
	}

	return m
}

// ObserveReading updates the reading gauges.
func (m *Metrics) ObserveReading(r state.Reading) {
	m.temperature.Set(float64(r.Temperature))
	m.humidity.Set(float64(r.Humidity))
	m.airQuality.Set(float64(r.AirQuality))
}

// ObserveClimateRead counts one climate read; err is nil on success.
func (m *Metrics) ObserveClimateRead(err error) {
	if err != nil {
		m.climateReads.WithLabelValues(resultFailed).Inc()
		return
	}
	m.climateReads.WithLabelValues(resultOK).Inc()
}

// ObservePublish counts one publish cycle.
func (m *Metrics) ObservePublish(r publish.Result) {
	m.publishes.WithLabelValues(string(r.Outcome)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,
		},
	)
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("address", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
