package sensor

import "context"

// AnalogSensor reads the raw ADC value of the air quality sensor.
type AnalogSensor interface {
	ReadAnalog() int
}

// ClimateSensor performs a combined temperature/humidity read.
type ClimateSensor interface {
	ReadClimate() (Climate, error)
}

// Device is a connected pair of sensors (real or mocked).
type Device interface {
	AnalogSensor
	ClimateSensor
	Connect() error
	Close() error
	IsConnected() bool
	// WaitForData blocks until the first reading after Connect is available.
	WaitForData(ctx context.Context) error
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
