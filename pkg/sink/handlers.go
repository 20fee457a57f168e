// Package sink is a bench stand-in for the measurements API. It validates
// uploads the way the real service expects them and keeps the latest ones in
// memory.
package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/relvacode/iso8601"
	log "github.com/sirupsen/logrus"
)

const maxBody = 16 << 10

// upload mirrors the node's payload; pointers detect missing fields.
type upload struct {
	ID          string   `json:"id"`
	DeviceID    string   `json:"device_id"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	AirQuality  *int     `json:"airQuality"`
	MeasuredAt  string   `json:"measuredAt"`
}

// Options tune validation.
type Options struct {
	// KnownDevices, when not empty, restricts accepted device ids.
	KnownDevices []string
	// UniqueIDs rejects a measurement id that is already held.
	UniqueIDs bool
}

// Server handles the measurements API.
type Server struct {
	store   *Store
	devices map[string]struct{}
	unique  bool
	now     func() time.Time
}

// NewServer creates a server backed by store.
func NewServer(store *Store, opts Options) *Server {
	devices := make(map[string]struct{}, len(opts.KnownDevices))
	for _, d := range opts.KnownDevices {
		devices[d] = struct{}{}
	}
	return &Server{
		store:   store,
		devices: devices,
		unique:  opts.UniqueIDs,
		now:     time.Now,
	}
}

// NewRouter returns the API routes.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/api/measurements", s.createMeasurement).Methods("POST")
	r.HandleFunc("/api/measurements", s.listMeasurements).Methods("GET")
	r.HandleFunc("/api/measurements/latest", s.latestMeasurement).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createMeasurement(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	rec, err := s.decode(body)
	if err != nil {
		log.WithError(err).Warn("Rejected measurement")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.unique && s.store.Has(rec.ID) {
		log.WithField("id", rec.ID).Warn("Rejected duplicate measurement")
		writeError(w, http.StatusConflict, fmt.Sprintf("measurement %s already exists", rec.ID))
		return
	}

	s.store.Add(rec)
	log.WithFields(log.Fields{
		"device":      rec.DeviceID,
		"temperature": rec.Temperature,
		"humidity":    rec.Humidity,
		"airQuality":  rec.AirQuality,
		"measuredAt":  rec.MeasuredAt,
	}).Info("Measurement accepted")

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) listMeasurements(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Recent())
}

func (s *Server) latestMeasurement(w http.ResponseWriter, _ *http.Request) {
	rec, ok := s.store.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no measurements yet")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) decode(body []byte) (Record, error) {
	var u upload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		return Record{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if _, err := uuid.Parse(u.ID); err != nil {
		return Record{}, fmt.Errorf("invalid id %q: %w", u.ID, err)
	}
	if _, err := uuid.Parse(u.DeviceID); err != nil {
		return Record{}, fmt.Errorf("invalid device_id %q: %w", u.DeviceID, err)
	}
	if len(s.devices) > 0 {
		if _, ok := s.devices[u.DeviceID]; !ok {
			return Record{}, fmt.Errorf("unknown device %s", u.DeviceID)
		}
	}

	switch {
	case u.Temperature == nil:
		return Record{}, errors.New("temperature is required")
	case u.Humidity == nil:
		return Record{}, errors.New("humidity is required")
	case u.AirQuality == nil:
		return Record{}, errors.New("airQuality is required")
	}
	if *u.Humidity < 0 || *u.Humidity > 100 {
		return Record{}, fmt.Errorf("humidity %v out of range", *u.Humidity)
	}
	if *u.AirQuality < 0 || *u.AirQuality > 100 {
		return Record{}, fmt.Errorf("airQuality %d out of range", *u.AirQuality)
	}

	// Devices without a time fix send an empty timestamp
	if u.MeasuredAt != "" {
		if _, err := iso8601.ParseString(u.MeasuredAt); err != nil {
			return Record{}, fmt.Errorf("invalid measuredAt %q: %w", u.MeasuredAt, err)
		}
	}

	return Record{
		ID:          u.ID,
		DeviceID:    u.DeviceID,
		Temperature: *u.Temperature,
		Humidity:    *u.Humidity,
		AirQuality:  *u.AirQuality,
		MeasuredAt:  u.MeasuredAt,
		ReceivedAt:  s.now().UTC(),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
