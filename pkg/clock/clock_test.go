package clock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("unreachable")

func newTestNTP(servers []string, query QueryFunc) *NTP {
	c := NewNTP(servers)
	c.query = query
	c.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestNTP_NotSynced(t *testing.T) {
	c := newTestNTP([]string{"a"}, nil)

	assert.False(t, c.Synced())
	_, err := c.LocalTime()
	assert.ErrorIs(t, err, ErrNotSynced)
}

func TestNTP_SyncAppliesOffset(t *testing.T) {
	c := newTestNTP([]string{"a"}, func(string, time.Duration) (time.Duration, error) {
		return 90 * time.Second, nil
	})

	require.NoError(t, c.Sync())
	assert.True(t, c.Synced())

	now, err := c.LocalTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 1, 30, 0, time.UTC), now)
	assert.Equal(t, time.UTC, now.Location())
}

func TestNTP_SyncFallsBackToNextServer(t *testing.T) {
	var tried []string
	c := newTestNTP([]string{"a", "b", "c"}, func(server string, _ time.Duration) (time.Duration, error) {
		tried = append(tried, server)
		if server == "b" {
			return time.Second, nil
		}
		return 0, errUnreachable
	})

	require.NoError(t, c.Sync())
	assert.Equal(t, []string{"a", "b"}, tried)
}

func TestNTP_SyncAllFail(t *testing.T) {
	c := newTestNTP([]string{"a", "b"}, func(string, time.Duration) (time.Duration, error) {
		return 0, errUnreachable
	})

	err := c.Sync()
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnreachable)
	assert.False(t, c.Synced())
}

func TestNTP_SyncNoServers(t *testing.T) {
	c := newTestNTP(nil, nil)
	assert.Error(t, c.Sync())
}

func TestNTP_FailedResyncKeepsOffset(t *testing.T) {
	fail := false
	c := newTestNTP([]string{"a"}, func(string, time.Duration) (time.Duration, error) {
		if fail {
			return 0, errUnreachable
		}
		return time.Minute, nil
	})

	require.NoError(t, c.Sync())
	fail = true
	assert.Error(t, c.Sync())

	now, err := c.LocalTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), now)
}

func TestNTP_WaitForSync(t *testing.T) {
	tests := []struct {
		name        string
		succeedOn   int // attempt number that succeeds, 0 = never
		attempts    int
		wantSynced  bool
		wantQueries int
	}{
		{name: "first attempt", succeedOn: 1, attempts: 20, wantSynced: true, wantQueries: 1},
		{name: "third attempt", succeedOn: 3, attempts: 20, wantSynced: true, wantQueries: 3},
		{name: "never", succeedOn: 0, attempts: 5, wantSynced: false, wantQueries: 5},
		{name: "after budget", succeedOn: 6, attempts: 5, wantSynced: false, wantQueries: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queries := 0
			c := newTestNTP([]string{"a"}, func(string, time.Duration) (time.Duration, error) {
				queries++
				if queries == tt.succeedOn {
					return 0, nil
				}
				return 0, errUnreachable
			})

			got := c.WaitForSync(context.Background(), tt.attempts, time.Millisecond)
			assert.Equal(t, tt.wantSynced, got)
			assert.Equal(t, tt.wantSynced, c.Synced())
			assert.Equal(t, tt.wantQueries, queries)
		})
	}
}

func TestNTP_WaitForSyncBoundedByAttemptBudget(t *testing.T) {
	const (
		attempts = 20
		interval = 5 * time.Millisecond
	)

	var mu sync.Mutex
	var timeouts []time.Duration
	// Every server times out, like a host without network
	c := newTestNTP([]string{"a", "b", "c"}, func(_ string, timeout time.Duration) (time.Duration, error) {
		mu.Lock()
		timeouts = append(timeouts, timeout)
		mu.Unlock()
		time.Sleep(timeout)
		return 0, errUnreachable
	})

	start := time.Now()
	assert.False(t, c.WaitForSync(context.Background(), attempts, interval))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*attempts*interval, "wait must stay near attempts*interval")
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, timeouts)
	for _, timeout := range timeouts {
		assert.LessOrEqual(t, timeout, interval)
	}
}

func TestNTP_SyncUsesQueryTimeout(t *testing.T) {
	var got time.Duration
	c := newTestNTP([]string{"a"}, func(_ string, timeout time.Duration) (time.Duration, error) {
		got = timeout
		return 0, nil
	})

	require.NoError(t, c.Sync())
	assert.Equal(t, DefaultQueryTimeout, got)
}

func TestNTP_WaitForSyncCancelled(t *testing.T) {
	c := newTestNTP([]string{"a"}, func(string, time.Duration) (time.Duration, error) {
		return 0, errUnreachable
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.False(t, c.WaitForSync(ctx, 100, time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSystem(t *testing.T) {
	now, err := System{}.LocalTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), now, time.Second)
	assert.Equal(t, time.UTC, now.Location())
}

func TestNTP_Resync(t *testing.T) {
	calls := make(chan struct{}, 16)
	c := newTestNTP([]string{"a"}, func(string, time.Duration) (time.Duration, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return time.Second, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Resync(ctx, 5*time.Millisecond)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("resync did not query")
	}
	assert.True(t, c.Synced())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Resync did not return after cancel")
	}
}
