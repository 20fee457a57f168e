package sensor

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ErrReadFailed is returned when a climate read did not produce both values
// (checksum mismatch, bus timeout or no data from the bridge).
var ErrReadFailed = errors.New("climate read failed")

// Climate is the result of one successful temperature/humidity read.
type Climate struct {
	Temperature float32 // °C
	Humidity    float32 // % relative humidity
}

// FromRaw converts a sensor library style read, where a failed transaction is
// signalled with NaN, into a Climate. Either value being NaN or infinite fails
// the whole read.
func FromRaw(humidity, temperature float32) (Climate, error) {
	if !finite(humidity) || !finite(temperature) {
		return Climate{}, ErrReadFailed
	}
	return Climate{Temperature: temperature, Humidity: humidity}, nil
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
