//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 10   // MQ135 ADC read interval in milliseconds
	NUM_SAMPLES        = 32   // Number of ADC samples averaged per output line
	OUTPUT_INTERVAL_MS = 500  // Line output interval in milliseconds
	DHT_INTERVAL_MS    = 2000 // DHT11 needs at least 1s between reads; 2s matches the climate sampler

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Sensor pins
	PIN_MQ135 = machine.A1
	PIN_DHT   = machine.D2

	// Serial configuration
	// Format "millis,adc,humidity,temperature\n"
	// Example: "4294967295,4095,100.0,-40.0\n" = ~28 bytes max per line
	// 2 outputs/sec * 28 bytes/line = 56 bytes/sec, far below 115200 baud
	UART_BAUD_RATE = 115200
)
