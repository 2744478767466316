package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Janitor drives the periodic cleanup sweep on its own schedule so request
// handlers never pay for whole-map maintenance.
type Janitor struct {
	limiter  *Limiter
	interval time.Duration
	logger   *slog.Logger
}

func NewJanitor(limiter *Limiter, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{limiter: limiter, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			before := j.limiter.TrackedIdentities()
			j.limiter.CleanupExpired(now)
			j.logger.DebugContext(ctx, "rate limiter sweep",
				"identities_before", before,
				"identities_after", j.limiter.TrackedIdentities(),
			)
		}
	}
}
