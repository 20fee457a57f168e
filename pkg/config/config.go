package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config represents the node configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Publish     PublishConfig     `yaml:"publish"`
	Clock       ClockConfig       `yaml:"clock"`
	Network     NetworkConfig     `yaml:"network"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains the UART settings of the sensor bridge.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// CalibrationConfig contains the MQ135 clean/dirty air ADC thresholds.
type CalibrationConfig struct {
	CleanAir int `yaml:"clean_air"` // Raw ADC value mapped to 0%
	DirtyAir int `yaml:"dirty_air"` // Raw ADC value mapped to 100%
}

// SamplingConfig contains sampler periods.
type SamplingConfig struct {
	AirQualityPeriod time.Duration `yaml:"air_quality_period"`
	ClimatePeriod    time.Duration `yaml:"climate_period"`
}

// PublishConfig contains the upload settings.
type PublishConfig struct {
	URL           string        `yaml:"url"`
	DeviceID      string        `yaml:"device_id"`
	MeasurementID string        `yaml:"measurement_id"`
	FreshIDs      bool          `yaml:"fresh_ids"` // Generate a new measurement id per upload
	Period        time.Duration `yaml:"period"`
	StartupDelay  time.Duration `yaml:"startup_delay"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ClockConfig contains NTP settings.
type ClockConfig struct {
	Servers        []string      `yaml:"servers"`
	SyncAttempts   int           `yaml:"sync_attempts"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
	UseSystem      bool          `yaml:"use_system"` // Trust the host clock instead of querying NTP
}

// NetworkConfig contains connectivity detection settings.
type NetworkConfig struct {
	Interface string `yaml:"interface"` // Empty means any non-loopback interface
}

// MQTTConfig contains the optional MQTT mirror settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // Empty disables the mirror
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// MetricsConfig contains the Prometheus listener settings.
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"` // Empty disables the listener
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MockConfig contains simulated sensor settings.
type MockConfig struct {
	BaseTemperature float32 `yaml:"base_temperature"` // °C
	BaseHumidity    float32 `yaml:"base_humidity"`    // %
	BaseAnalog      int     `yaml:"base_analog"`      // Raw ADC
	NoiseLevel      float32 `yaml:"noise_level"`
	FailureRate     float32 `yaml:"failure_rate"` // Fraction of climate reads that fail
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyUSB0",
			BaudRate: 115200,
		},
		Calibration: CalibrationConfig{
			CleanAir: 1100,
			DirtyAir: 3000,
		},
		Sampling: SamplingConfig{
			AirQualityPeriod: 1000 * time.Millisecond,
			ClimatePeriod:    2000 * time.Millisecond,
		},
		Publish: PublishConfig{
			URL:           "https://tempestas-16da.onrender.com/api/measurements",
			DeviceID:      "21c22fce-d945-48cc-a5cd-4a0b4897d160",
			MeasurementID: "11fbb7f2-ecfd-46cc-88ca-58b19d1b048d",
			Period:        30000 * time.Millisecond,
			StartupDelay:  5000 * time.Millisecond,
			Timeout:       15 * time.Second,
		},
		Clock: ClockConfig{
			Servers:        []string{"time.google.com", "time.cloudflare.com", "pool.ntp.org"},
			SyncAttempts:   20,
			SyncInterval:   500 * time.Millisecond,
			ResyncInterval: time.Hour,
		},
		MQTT: MQTTConfig{
			Topic:    "airnode/measurements",
			ClientID: "airnode",
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			BaseTemperature: 22.0,
			BaseHumidity:    45.0,
			BaseAnalog:      1600,
			NoiseLevel:      0.2,
			FailureRate:     0.1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports the first setting the node cannot run with.
func (c *Config) Validate() error {
	if c.Calibration.DirtyAir <= c.Calibration.CleanAir {
		return fmt.Errorf("invalid calibration: dirty_air (%d) must be above clean_air (%d)",
			c.Calibration.DirtyAir, c.Calibration.CleanAir)
	}

	u, err := url.Parse(c.Publish.URL)
	if err != nil {
		return fmt.Errorf("invalid publish url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid publish url %q: scheme must be http or https", c.Publish.URL)
	}

	if _, err := uuid.Parse(c.Publish.DeviceID); err != nil {
		return fmt.Errorf("invalid device_id: %w", err)
	}
	if _, err := uuid.Parse(c.Publish.MeasurementID); err != nil {
		return fmt.Errorf("invalid measurement_id: %w", err)
	}

	if c.Sampling.AirQualityPeriod <= 0 || c.Sampling.ClimatePeriod <= 0 || c.Publish.Period <= 0 {
		return fmt.Errorf("invalid periods: all task periods must be positive")
	}

	if c.Mock.FailureRate < 0 || c.Mock.FailureRate > 1 {
		return fmt.Errorf("invalid mock failure_rate %v: must be within [0,1]", c.Mock.FailureRate)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Calibration.CleanAir == 0 && c.Calibration.DirtyAir == 0 {
		c.Calibration = def.Calibration
	}

	if c.Sampling.AirQualityPeriod == 0 {
		c.Sampling.AirQualityPeriod = def.Sampling.AirQualityPeriod
	}
	if c.Sampling.ClimatePeriod == 0 {
		c.Sampling.ClimatePeriod = def.Sampling.ClimatePeriod
	}

	if c.Publish.URL == "" {
		c.Publish.URL = def.Publish.URL
	}
	if c.Publish.DeviceID == "" {
		c.Publish.DeviceID = def.Publish.DeviceID
	}
	if c.Publish.MeasurementID == "" {
		c.Publish.MeasurementID = def.Publish.MeasurementID
	}
	if c.Publish.Period == 0 {
		c.Publish.Period = def.Publish.Period
	}
	if c.Publish.Timeout == 0 {
		c.Publish.Timeout = def.Publish.Timeout
	}

	if len(c.Clock.Servers) == 0 {
		c.Clock.Servers = def.Clock.Servers
	}
	if c.Clock.SyncAttempts == 0 {
		c.Clock.SyncAttempts = def.Clock.SyncAttempts
	}
	if c.Clock.SyncInterval == 0 {
		c.Clock.SyncInterval = def.Clock.SyncInterval
	}
	if c.Clock.ResyncInterval == 0 {
		c.Clock.ResyncInterval = def.Clock.ResyncInterval
	}

	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
