// Package publish uploads snapshots of the shared state to the measurements API.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/airnode/pkg/clock"
	"github.com/itohio/airnode/pkg/config"
	"github.com/itohio/airnode/pkg/netstatus"
	"github.com/itohio/airnode/pkg/state"
)

const maxRedirects = 10

// Outcome classifies one publish cycle.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeHTTPError      Outcome = "http_error"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeEncodeError    Outcome = "encode_error"
)

// Result describes what a publish cycle did.
type Result struct {
	Outcome    Outcome
	StatusCode int    // 0 unless a response was received
	Location   string // Location header of a final 301/302/307 response
	Payload    []byte // nil when skipped
	Err        error
}

// Snapshotter provides a consistent copy of the latest readings.
type Snapshotter interface {
	Snapshot() state.Reading
}

// Publisher periodically uploads the latest readings. Failed uploads are
// dropped; the next cycle sends fresh data.
type Publisher struct {
	url           string
	deviceID      string
	measurementID string
	freshIDs      bool
	period        time.Duration
	startupDelay  time.Duration

	state   Snapshotter
	clock   clock.Source
	network netstatus.Status
	client  *http.Client
	mirror  Mirror
	newID   func() string

	observers []func(Result)
	obsMu     sync.RWMutex
}

// New creates a Publisher. A nil client selects a client with the configured
// timeout that follows redirects and logs every hop.
func New(cfg *config.Config, st Snapshotter, clk clock.Source, network netstatus.Status, client *http.Client) *Publisher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Publish.Timeout}
	}
	c := *client
	if c.CheckRedirect == nil {
		c.CheckRedirect = logRedirect
	}

	return &Publisher{
		url:           cfg.Publish.URL,
		deviceID:      cfg.Publish.DeviceID,
		measurementID: cfg.Publish.MeasurementID,
		freshIDs:      cfg.Publish.FreshIDs,
		period:        cfg.Publish.Period,
		startupDelay:  cfg.Publish.StartupDelay,
		state:         st,
		clock:         clk,
		network:       network,
		client:        &c,
		newID:         func() string { return uuid.NewString() },
	}
}

// SetMirror attaches a mirror that receives every payload after the upload.
func (p *Publisher) SetMirror(m Mirror) {
	p.mirror = m
}

// OnPublish registers a callback receiving the result of every cycle.
func (p *Publisher) OnPublish(fn func(Result)) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.observers = append(p.observers, fn)
}

// Run waits for the startup delay and then publishes once per period until
// ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(p.startupDelay):
	}

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		p.PublishOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PublishOnce runs a single publish cycle.
func (p *Publisher) PublishOnce(ctx context.Context) Result {
	if !p.network.IsConnected() {
		log.Debug("Network disconnected, skipping publish")
		return p.finish(Result{Outcome: OutcomeSkipped})
	}

	reading := p.state.Snapshot()

	measuredAt := ""
	if now, err := p.clock.LocalTime(); err != nil {
		log.WithError(err).Warn("No wall-clock time, sending empty timestamp")
	} else {
		measuredAt = FormatTimestamp(now)
	}

	m := NewMeasurement(p.nextID(), p.deviceID, reading, measuredAt)
	payload, err := json.Marshal(m)
	if err != nil {
		log.WithError(err).Error("Failed to encode measurement")
		return p.finish(Result{Outcome: OutcomeEncodeError, Err: err})
	}

	log.Infof("Sending payload: %s", payload)
	result := p.post(ctx, payload)

	if p.mirror != nil {
		if err := p.mirror.Publish(payload); err != nil {
			log.WithError(err).Warn("Mirror publish failed")
		}
	}

	return p.finish(result)
}

func (p *Publisher) nextID() string {
	if p.freshIDs {
		return p.newID()
	}
	return p.measurementID
}

// post sends the payload and reports the status code. The response body is
// discarded.
func (p *Publisher) post(ctx context.Context, payload []byte) Result {
	result := Result{Payload: payload}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		result.Outcome = OutcomeTransportError
		result.Err = fmt.Errorf("failed to create request: %w", err)
		log.WithError(result.Err).Error("Upload failed")
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		result.Outcome = OutcomeTransportError
		result.Err = err
		log.WithError(err).Warn("Upload failed")
		return result
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result.StatusCode = resp.StatusCode
	log.WithField("status", resp.StatusCode).Info("Upload finished")

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect:
		result.Location = resp.Header.Get("Location")
		log.WithField("location", result.Location).Info("Redirected")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Outcome = OutcomeOK
	} else {
		result.Outcome = OutcomeHTTPError
		result.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return result
}

func (p *Publisher) finish(r Result) Result {
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	for _, fn := range p.observers {
		fn(r)
	}
	return r
}

// logRedirect follows up to maxRedirects hops, logging each one.
func logRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}

	status := 0
	if req.Response != nil {
		status = req.Response.StatusCode
	}
	log.WithFields(log.Fields{
		"status":   status,
		"location": req.URL.String(),
	}).Info("Following redirect")
	return nil
}
