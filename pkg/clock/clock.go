// Package clock provides the wall-clock time used to stamp measurements.
package clock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
	log "github.com/sirupsen/logrus"
)

// ErrNotSynced is returned by LocalTime before the first successful sync.
var ErrNotSynced = errors.New("clock not synchronized")

// Source provides calendar time. It may fail when no trusted time is known yet.
type Source interface {
	LocalTime() (time.Time, error)
}

// System trusts the host clock.
type System struct{}

// LocalTime returns the host time in UTC.
func (System) LocalTime() (time.Time, error) {
	return time.Now().UTC(), nil
}

// DefaultQueryTimeout bounds a single NTP query outside the startup wait.
const DefaultQueryTimeout = 5 * time.Second

// QueryFunc returns the offset between the local clock and an NTP server. It
// must give up after timeout.
type QueryFunc func(server string, timeout time.Duration) (time.Duration, error)

// NTP corrects the host clock with an offset obtained from NTP servers.
type NTP struct {
	servers []string
	query   QueryFunc
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

// NewNTP creates an unsynchronized NTP clock for the given servers, tried in order.
func NewNTP(servers []string) *NTP {
	return &NTP{
		servers: servers,
		query:   queryOffset,
		timeout: DefaultQueryTimeout,
		now:     time.Now,
	}
}

func queryOffset(server string, timeout time.Duration) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("invalid response: %w", err)
	}
	return resp.ClockOffset, nil
}

// Sync queries the servers in order and stores the first valid offset.
func (c *NTP) Sync() error {
	return c.syncBefore(time.Time{})
}

// syncBefore is Sync where no query runs past deadline. A zero deadline
// leaves only the per-query timeout.
func (c *NTP) syncBefore(deadline time.Time) error {
	if len(c.servers) == 0 {
		return errors.New("no ntp servers configured")
	}

	var errs []error
	for _, server := range c.servers {
		timeout := c.timeout
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				errs = append(errs, fmt.Errorf("%s: not tried, attempt budget spent", server))
				break
			}
			timeout = min(timeout, remaining)
		}

		offset, err := c.query(server, timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}

		c.mu.Lock()
		c.offset = offset
		c.synced = true
		c.mu.Unlock()

		log.WithFields(log.Fields{"server": server, "offset": offset}).Debug("Clock synchronized")
		return nil
	}

	return fmt.Errorf("ntp sync failed: %w", errors.Join(errs...))
}

// Synced reports whether an offset is known.
func (c *NTP) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// LocalTime returns the corrected time in UTC, or ErrNotSynced.
func (c *NTP) LocalTime() (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.synced {
		return time.Time{}, ErrNotSynced
	}
	return c.now().Add(c.offset).UTC(), nil
}

// WaitForSync makes up to attempts sync attempts, each one given interval in
// total for its queries and the pause after them, so the whole wait lasts at
// most attempts*interval. It returns false when every attempt failed; the
// caller carries on without time.
func (c *NTP) WaitForSync(ctx context.Context, attempts int, interval time.Duration) bool {
	for i := range attempts {
		start := time.Now()
		err := c.syncBefore(start.Add(interval))
		if err == nil {
			return true
		}
		log.WithError(err).WithField("attempt", i+1).Info("Waiting for time sync...")

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval - time.Since(start)):
		}
	}

	log.Warn("Time sync failed, continuing anyway")
	return false
}

// Resync refreshes the offset every interval until ctx is done. Failures keep
// the previous offset.
func (c *NTP) Resync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Sync(); err != nil {
				log.WithError(err).Warn("Clock resync failed")
			}
		}
	}
}
