package publish

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/itohio/airnode/pkg/state"
)

// TimestampLayout is the UTC layout of measuredAt.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Measurement is the upload payload. Field order is the wire order.
type Measurement struct {
	ID          string      `json:"id"`
	DeviceID    string      `json:"device_id"`
	Temperature json.Number `json:"temperature"`
	Humidity    json.Number `json:"humidity"`
	AirQuality  int         `json:"airQuality"`
	MeasuredAt  string      `json:"measuredAt"` // Empty when no time is known
}

// NewMeasurement builds a payload from a snapshot. Temperature and humidity
// are rounded to one decimal and emitted as bare numbers.
func NewMeasurement(id, deviceID string, r state.Reading, measuredAt string) Measurement {
	return Measurement{
		ID:          id,
		DeviceID:    deviceID,
		Temperature: oneDecimal(r.Temperature),
		Humidity:    oneDecimal(r.Humidity),
		AirQuality:  r.AirQuality,
		MeasuredAt:  measuredAt,
	}
}

// FormatTimestamp formats t in UTC with second precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func oneDecimal(v float32) json.Number {
	return json.Number(strconv.FormatFloat(float64(v), 'f', 1, 32))
}
