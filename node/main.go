// Command node samples the MQ135 and DHT11 sensors and uploads the readings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/itohio/airnode/pkg/clock"
	"github.com/itohio/airnode/pkg/config"
	"github.com/itohio/airnode/pkg/metrics"
	"github.com/itohio/airnode/pkg/netstatus"
	"github.com/itohio/airnode/pkg/publish"
	"github.com/itohio/airnode/pkg/sampler"
	"github.com/itohio/airnode/pkg/sensor"
	"github.com/itohio/airnode/pkg/state"
)

func main() {
	var (
		portFlag        = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag      = flag.String("config", "airnode.yaml", "Configuration file path")
		mockFlag        = flag.Bool("mock", false, "Use simulated sensors instead of the serial bridge")
		onceFlag        = flag.Bool("once", false, "Sample once, publish once and exit")
		levelFlag       = flag.String("log-level", "", "Log level override (trace, debug, info, warn, error)")
		listPortsFlag   = flag.Bool("list-ports", false, "List serial ports and exit")
		writeConfigFlag = flag.Bool("write-config", false, "Write the effective configuration to -config and exit")
	)
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if *listPortsFlag {
		listPorts()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *levelFlag != "" {
		cfg.Log.Level = *levelFlag
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(level)

	if *writeConfigFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
		log.Infof("Configuration written to %s", *configFlag)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device := openDevice(cfg, *mockFlag)
	defer device.Close()

	network := newNetworkStatus(cfg, *mockFlag)

	shared := state.New()
	airQuality := sampler.NewAirQuality(cfg, device, shared)
	climate := sampler.NewClimate(cfg, device, shared)

	m := metrics.New()
	shared.OnUpdate(m.ObserveReading)
	climate.OnRead(m.ObserveClimateRead)

	if *onceFlag {
		sampleOnce(ctx, device, airQuality, climate, cfg.Sampling.ClimatePeriod, 3*cfg.Sampling.ClimatePeriod)
		publisher, closeMirror := newPublisher(cfg, shared, newClock(ctx, cfg), network, m)
		defer closeMirror()
		res := publisher.PublishOnce(ctx)
		if res.Outcome != publish.OutcomeOK {
			log.Fatalf("Publish failed: %s %v", res.Outcome, res.Err)
		}
		return
	}

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.WithField("task", name).Debug("Task started")
			fn(ctx)
			log.WithField("task", name).Debug("Task stopped")
		}()
	}

	if addr := cfg.Metrics.ListenAddress; addr != "" {
		start("metrics", func(ctx context.Context) {
			if err := m.Serve(ctx, addr); err != nil {
				log.WithError(err).Error("Metrics listener failed")
			}
		})
	}

	// Sampling does not depend on time, only the publisher waits for it
	start("air-quality", airQuality.Run)
	start("climate", climate.Run)
	start("reconnect", func(ctx context.Context) { reconnect(ctx, device, sensor.DefaultStaleAfter) })

	clk := newClock(ctx, cfg)
	if ntp, ok := clk.(*clock.NTP); ok {
		start("resync", func(ctx context.Context) { ntp.Resync(ctx, cfg.Clock.ResyncInterval) })
	}
	publisher, closeMirror := newPublisher(cfg, shared, clk, network, m)
	defer closeMirror()
	start("publisher", publisher.Run)

	log.WithFields(log.Fields{
		"url":    cfg.Publish.URL,
		"period": cfg.Publish.Period,
	}).Info("Node running")

	<-ctx.Done()
	log.Info("Shutting down")
	wg.Wait()
}

// newPublisher creates the publisher with its metrics and optional MQTT
// mirror. The returned func disconnects the mirror.
func newPublisher(cfg *config.Config, shared *state.Shared, clk clock.Source, network netstatus.Status, m *metrics.Metrics) (*publish.Publisher, func()) {
	publisher := publish.New(cfg, shared, clk, network, nil)
	publisher.OnPublish(m.ObservePublish)

	if cfg.MQTT.Broker == "" {
		return publisher, func() {}
	}
	mirror := publish.NewMQTTMirror(cfg.MQTT)
	publisher.SetMirror(mirror)
	return publisher, mirror.Close
}

func listPorts() {
	ports, err := sensor.Ports()
	if err != nil {
		log.Fatalf("Failed to list serial ports: %v", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p.Description)
	}
}

// openDevice connects the sensor pair. Failing to open the bridge is fatal.
func openDevice(cfg *config.Config, mock bool) sensor.Device {
	var device sensor.Device
	if mock {
		device = sensor.NewMock(&cfg.Mock, uint64(time.Now().UnixNano()))
	} else {
		device = sensor.New(cfg.Serial.Port, cfg.Serial.BaudRate, sensor.DefaultStaleAfter)
	}

	if err := device.Connect(); err != nil {
		log.Fatalf("Failed to connect to sensors on %s: %v", cfg.Serial.Port, err)
	}
	return device
}

func newNetworkStatus(cfg *config.Config, mock bool) netstatus.Status {
	if mock {
		return netstatus.NewStatic(true)
	}
	return netstatus.NewInterfaces(cfg.Network.Interface)
}

// newClock returns the wall-clock source, waiting a bounded time for the
// first NTP sync.
func newClock(ctx context.Context, cfg *config.Config) clock.Source {
	if cfg.Clock.UseSystem {
		return clock.System{}
	}

	ntp := clock.NewNTP(cfg.Clock.Servers)
	if ntp.WaitForSync(ctx, cfg.Clock.SyncAttempts, cfg.Clock.SyncInterval) {
		now, _ := ntp.LocalTime()
		log.WithField("time", now.Format(time.RFC3339)).Info("Time synced")
	}
	return ntp
}
