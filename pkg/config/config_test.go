package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 1100, cfg.Calibration.CleanAir)
	assert.Equal(t, 3000, cfg.Calibration.DirtyAir)
	assert.Equal(t, time.Second, cfg.Sampling.AirQualityPeriod)
	assert.Equal(t, 2*time.Second, cfg.Sampling.ClimatePeriod)
	assert.Equal(t, 30*time.Second, cfg.Publish.Period)
	assert.Equal(t, 5*time.Second, cfg.Publish.StartupDelay)
	assert.Equal(t, "21c22fce-d945-48cc-a5cd-4a0b4897d160", cfg.Publish.DeviceID)
	assert.Equal(t, []string{"time.google.com", "time.cloudflare.com", "pool.ntp.org"}, cfg.Clock.Servers)
	assert.Equal(t, 20, cfg.Clock.SyncAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Clock.SyncInterval)
	assert.False(t, cfg.Publish.FreshIDs)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Empty(t, cfg.Metrics.ListenAddress)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM0"

calibration:
  clean_air: 900
  dirty_air: 2800

sampling:
  air_quality_period: 500ms
  climate_period: 3s

publish:
  url: "http://localhost:8080/api/measurements"
  fresh_ids: true
  period: 10s
  startup_delay: 1s

clock:
  servers: ["ntp.example.org"]
  use_system: true

mqtt:
  broker: "tcp://localhost:1883"

metrics:
  listen_address: ":9100"

log:
  level: debug
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate) // default
	assert.Equal(t, 900, cfg.Calibration.CleanAir)
	assert.Equal(t, 2800, cfg.Calibration.DirtyAir)
	assert.Equal(t, 500*time.Millisecond, cfg.Sampling.AirQualityPeriod)
	assert.Equal(t, 3*time.Second, cfg.Sampling.ClimatePeriod)
	assert.Equal(t, "http://localhost:8080/api/measurements", cfg.Publish.URL)
	assert.True(t, cfg.Publish.FreshIDs)
	assert.Equal(t, 10*time.Second, cfg.Publish.Period)
	assert.Equal(t, time.Second, cfg.Publish.StartupDelay)
	assert.Equal(t, []string{"ntp.example.org"}, cfg.Clock.Servers)
	assert.True(t, cfg.Clock.UseSystem)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "airnode/measurements", cfg.MQTT.Topic) // default
	assert.Equal(t, ":9100", cfg.Metrics.ListenAddress)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "inverted calibration",
			yaml: "calibration:\n  clean_air: 3000\n  dirty_air: 1100\n",
		},
		{
			name: "bad device id",
			yaml: "publish:\n  device_id: not-a-uuid\n",
		},
		{
			name: "bad url scheme",
			yaml: "publish:\n  url: ftp://example.org/upload\n",
		},
		{
			name: "failure rate out of range",
			yaml: "mock:\n  failure_rate: 1.5\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
			require.NoError(t, err)
			defer os.Remove(tmpfile.Name())

			_, err = tmpfile.WriteString(tt.yaml)
			require.NoError(t, err)
			require.NoError(t, tmpfile.Close())

			cfg, err := Load(tmpfile.Name())
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoad_ZeroValuesFallBackToDefaults(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
sampling:
  air_quality_period: 0s
publish:
  period: 0s
  url: ""
`
	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Sampling.AirQualityPeriod)
	assert.Equal(t, 30*time.Second, cfg.Publish.Period)
	assert.Equal(t, Default().Publish.URL, cfg.Publish.URL)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB1"
	cfg.Publish.Period = 15 * time.Second

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", loaded.Serial.Port)
	assert.Equal(t, 15*time.Second, loaded.Publish.Period)
}
