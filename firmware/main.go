//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/dht"
)

var (
	adcMQ135 machine.ADC
	climate  dht.Device
	uart     = machine.UART0

	// ADC averaging - running sum over a sliding window
	window    [NUM_SAMPLES]uint16
	windowSum uint32
	windowPos int
	windowLen int

	// Latest DHT11 result in tenths
	humidityTenths    uint16
	temperatureTenths int16
	climateOK         bool

	// Timing
	start      time.Time
	lastADC    time.Time
	lastDHT    time.Time
	lastOutput time.Time
)

func main() {
	PIN_MQ135.Configure(machine.PinConfig{Mode: machine.PinInput})
	adcMQ135 = machine.ADC{Pin: PIN_MQ135}
	adcMQ135.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	climate = dht.New(PIN_DHT, dht.DHT11)

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	start = time.Now()
	lastADC = start
	lastOutput = start
	// First DHT read after one interval, the sensor needs time to settle
	lastDHT = start

	for {
		now := time.Now()

		if now.Sub(lastADC) >= SAMPLE_INTERVAL_MS*time.Millisecond {
			readMQ135()
			lastADC = now
		}

		if now.Sub(lastDHT) >= DHT_INTERVAL_MS*time.Millisecond {
			readDHT()
			lastDHT = now
		}

		if now.Sub(lastOutput) >= OUTPUT_INTERVAL_MS*time.Millisecond {
			outputLine(now)
			lastOutput = now
		}

		time.Sleep(time.Millisecond)
	}
}

func readMQ135() {
	// Get returns a left aligned 16-bit value
	value := adcMQ135.Get() >> 4

	windowSum -= uint32(window[windowPos])
	window[windowPos] = value
	windowSum += uint32(value)
	windowPos = (windowPos + 1) % NUM_SAMPLES
	if windowLen < NUM_SAMPLES {
		windowLen++
	}
}

func readDHT() {
	if err := climate.ReadMeasurements(); err != nil {
		climateOK = false
		return
	}

	t, h, err := climate.Measurements()
	if err != nil {
		climateOK = false
		return
	}

	temperatureTenths = t
	humidityTenths = h
	climateOK = true
}

func outputLine(now time.Time) {
	n := windowLen
	if n == 0 {
		n = 1
	}
	adcAvg := uint16(windowSum / uint32(n))
	millis := uint32(now.Sub(start).Milliseconds())

	// Output format: "millis,adc,humidity,temperature\n"
	// Example: "123456,1834,61.0,23.4\n" or "123456,1834,nan,nan\n"
	print(millis)
	print(",")
	print(adcAvg)
	print(",")
	if climateOK {
		printTenths(int32(humidityTenths))
		print(",")
		printTenths(int32(temperatureTenths))
	} else {
		print("nan,nan")
	}
	print("\n")
}

// printTenths prints v/10 with exactly one decimal.
func printTenths(v int32) {
	if v < 0 {
		print("-")
		v = -v
	}
	print(v / 10)
	print(".")
	print(v % 10)
}
