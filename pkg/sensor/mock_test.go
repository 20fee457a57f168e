package sensor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/airnode/pkg/config"
)

func TestMock_Lifecycle(t *testing.T) {
	m := NewMock(nil, 1)
	assert.False(t, m.IsConnected())

	require.NoError(t, m.Connect())
	assert.True(t, m.IsConnected())
	assert.Error(t, m.Connect(), "second connect should fail")

	require.NoError(t, m.Close())
	assert.False(t, m.IsConnected())
	assert.NoError(t, m.Close())
}

func TestMock_Disconnected(t *testing.T) {
	m := NewMock(nil, 1)

	assert.Equal(t, 0, m.ReadAnalog())
	_, err := m.ReadClimate()
	assert.ErrorIs(t, err, ErrReadFailed)
}

func TestMock_ValuesInRange(t *testing.T) {
	cfg := &config.MockConfig{
		BaseTemperature: 22,
		BaseHumidity:    45,
		BaseAnalog:      1600,
		NoiseLevel:      0.5,
		FailureRate:     0,
	}
	m := NewMock(cfg, 42)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	m.now = func() time.Time { return now }
	require.NoError(t, m.Connect())

	for i := range 200 {
		now = start.Add(time.Duration(i) * 17 * time.Second)

		raw := m.ReadAnalog()
		assert.GreaterOrEqual(t, raw, 0)
		assert.LessOrEqual(t, raw, MaxAnalog)
		assert.InDelta(t, 1600, raw, 451)

		c, err := m.ReadClimate()
		require.NoError(t, err)
		assert.InDelta(t, 22, c.Temperature, 3.6)
		assert.GreaterOrEqual(t, c.Humidity, float32(0))
		assert.LessOrEqual(t, c.Humidity, float32(100))
	}
}

func TestMock_FailureRate(t *testing.T) {
	tests := []struct {
		name     string
		rate     float32
		wantFail func(t *testing.T, failures, total int)
	}{
		{
			name: "never fails",
			rate: 0,
			wantFail: func(t *testing.T, failures, total int) {
				assert.Zero(t, failures)
			},
		},
		{
			name: "always fails",
			rate: 1,
			wantFail: func(t *testing.T, failures, total int) {
				assert.Equal(t, total, failures)
			},
		},
		{
			name: "sometimes fails",
			rate: 0.5,
			wantFail: func(t *testing.T, failures, total int) {
				assert.Greater(t, failures, total/4)
				assert.Less(t, failures, total*3/4)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.MockConfig{BaseTemperature: 22, BaseHumidity: 45, FailureRate: tt.rate}
			m := NewMock(cfg, 7)
			require.NoError(t, m.Connect())

			const total = 400
			failures := 0
			for range total {
				if _, err := m.ReadClimate(); err != nil {
					assert.ErrorIs(t, err, ErrReadFailed)
					failures++
				}
			}
			tt.wantFail(t, failures, total)
		})
	}
}

func TestMock_WaitForData(t *testing.T) {
	m := NewMock(nil, 1)
	assert.Error(t, m.WaitForData(context.Background()))

	require.NoError(t, m.Connect())
	assert.NoError(t, m.WaitForData(context.Background()))
}
