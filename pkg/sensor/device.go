package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaudRate is the baud rate the bridge firmware prints at.
	DefaultBaudRate = 115200
	// DefaultStaleAfter is how long a bridge line stays valid. The bridge
	// prints twice a second and reads the DHT every 2 s, so a few missed
	// lines mean the bridge or the sensor is gone.
	DefaultStaleAfter = 5 * time.Second
	// MaxAnalog is the largest 12-bit ADC value.
	MaxAnalog = 4095
)

// RawSample is one line reported by the bridge firmware.
type RawSample struct {
	Uptime      time.Duration // Time since the MCU booted
	Analog      uint16        // 12-bit ADC reading (0-4095)
	Humidity    float32       // NaN when the DHT read failed
	Temperature float32       // NaN when the DHT read failed
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads both sensors through the bridge MCU over a UART.
type Serial struct {
	port       string
	baudRate   int
	staleAfter time.Duration

	conn      serial.Port
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{}

	// Latest values reported by the bridge
	analog     int
	climate    Climate
	climateErr error
	lastLine   time.Time
	ready      chan struct{} // closed by the first line after Connect
	now        func() time.Time
}

// New creates a new Serial bridge for the given port. Zero values select defaults.
func New(port string, baudRate int, staleAfter time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:       port,
		baudRate:   baudRate,
		staleAfter: staleAfter,
		ctx:        ctx,
		cancel:     cancel,
		climateErr: errors.Wrap(ErrReadFailed, "no climate reading received yet"),
		ready:      make(chan struct{}),
		now:        time.Now,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}

	result := make([]Port, 0, len(details))
	for _, d := range details {
		desc := d.Name
		if d.IsUSB {
			desc = fmt.Sprintf("%s [%s:%s] %s", d.Name, d.VID, d.PID, d.Product)
		}
		result = append(result, Port{
			Name:        d.Name,
			Description: strings.TrimSpace(desc),
		})
	}

	return result, nil
}

// Connect opens the serial port and starts reading lines from the bridge.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return errors.New("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return errors.Wrapf(err, "failed to open serial port %s", d.port)
	}

	d.conn = port
	d.connected = true
	d.done = make(chan struct{})
	// A previous Close cancelled the old context
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.ready = make(chan struct{})

	go func() {
		defer close(d.done)
		d.consume(port)
	}()

	return nil
}

// Close closes the port and stops the reader.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}

	d.cancel()

	var err error
	if d.conn != nil {
		err = d.conn.Close()
		d.conn = nil
	}
	d.connected = false
	done := d.done
	d.mu.Unlock()

	// The reader takes the lock for every line, so wait outside of it.
	<-done

	if err != nil {
		return errors.Wrap(err, "failed to close serial port")
	}
	return nil
}

// IsConnected returns whether the port is open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// ReadAnalog returns the most recent ADC value reported by the bridge. Once
// the bridge has been silent for the stale window it reads 0, the floor of the
// ADC, like a floating input pulled low.
func (d *Serial) ReadAnalog() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.lastLine.IsZero() || d.now().Sub(d.lastLine) > d.staleAfter {
		return 0
	}
	return d.analog
}

// WaitForData blocks until the bridge has reported its first line since
// Connect or ctx is done.
func (d *Serial) WaitForData(ctx context.Context) error {
	d.mu.RLock()
	ready := d.ready
	d.mu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "no data from the bridge")
	}
}

// ReadClimate returns the most recent climate read. It fails when the last
// line carried NaN values or when no line arrived within the stale window.
func (d *Serial) ReadClimate() (Climate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.climateErr != nil {
		return Climate{}, d.climateErr
	}
	if age := d.now().Sub(d.lastLine); age > d.staleAfter {
		return Climate{}, errors.Wrapf(ErrReadFailed, "last climate reading is %s old", age.Truncate(time.Millisecond))
	}
	return d.climate, nil
}

// consume reads lines until the reader fails or the bridge is closed.
func (d *Serial) consume(r io.Reader) {
	d.mu.RLock()
	ctx := d.ctx
	d.mu.RUnlock()

	defer d.readerStopped(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Panic in serial reader: %v", rec)
		}
	}()

	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && ctx.Err() == nil {
				log.Errorf("Error reading from serial port: %v", err)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line)
		if err != nil {
			log.Debugf("Failed to parse line '%s': %v", line, err)
			continue
		}

		d.store(sample)
	}
}

// readerStopped marks the bridge disconnected when the reader ends on its
// own (unplugged adapter, EOF, read error). The stored values then go stale.
// A reader whose ctx was cancelled belongs to a closed session and leaves the
// current one alone.
func (d *Serial) readerStopped(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected || ctx.Err() != nil {
		return
	}

	log.WithField("port", d.port).Warn("Serial bridge stopped reporting")
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.WithError(err).Debug("Failed to close serial port")
		}
		d.conn = nil
	}
	d.connected = false
	d.cancel()
}

// store records a parsed line as the latest sensor state.
func (d *Serial) store(sample RawSample) {
	climate, err := FromRaw(sample.Humidity, sample.Temperature)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.analog = int(sample.Analog)
	d.lastLine = d.now()
	select {
	case <-d.ready:
	default:
		close(d.ready)
	}
	if err != nil {
		d.climateErr = errors.Wrapf(err, "bridge reported a failed read at uptime %s", sample.Uptime)
		return
	}
	d.climate = climate
	d.climateErr = nil
}

// parseLine parses a line from the bridge into a RawSample.
// Format: uptime_millis,adc,humidity,temperature
// Example: 123456,1834,61.0,23.4 or 123456,1834,nan,nan
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return RawSample{}, fmt.Errorf("invalid line format: expected 4 comma-separated values, got %d", len(parts))
	}

	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid uptime: %w", err)
	}

	analog, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid adc reading: %w", err)
	}
	if analog > MaxAnalog {
		return RawSample{}, fmt.Errorf("adc reading out of range: %d (max %d)", analog, MaxAnalog)
	}

	humidity, err := strconv.ParseFloat(parts[2], 32)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid humidity: %w", err)
	}

	temperature, err := strconv.ParseFloat(parts[3], 32)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid temperature: %w", err)
	}

	return RawSample{
		Uptime:      time.Duration(millis) * time.Millisecond,
		Analog:      uint16(analog),
		Humidity:    float32(humidity),
		Temperature: float32(temperature),
	}, nil
}
