// Package sampler runs the periodic sensor tasks that feed the shared state.
package sampler

import (
	"context"
	"time"
)

// Run calls step immediately and then once per period until ctx is done.
func Run(ctx context.Context, period time.Duration, step func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		step()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
