package room

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically deletes rooms that have gone quiet. Inactivity is
// measured from the last processed batch, so an idle but connected lobby is
// reaped like an abandoned one; clients are expected to poll state.
type Reaper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func NewReaper(registry *Registry, interval, timeout time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run sweeps on a fixed ticker until ctx is cancelled.
func (rp *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.sweep()
		}
	}
}

func (rp *Reaper) sweep() {
	now := time.Now()
	for _, r := range rp.registry.List() {
		idle := now.Sub(r.LastActive())
		if idle > rp.timeout {
			rp.logger.Info("reaping stale room",
				zap.String("lobby", r.Code),
				zap.Duration("idle", idle))
			rp.registry.Remove(r.Code)
		}
	}
}
