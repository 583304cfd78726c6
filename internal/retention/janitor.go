// Package retention prunes old agent runs in the background. Runs are
// best-effort telemetry, so the janitor logs failures and never escalates
// them; a missed cycle just leaves data for the next one.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/and27/supportops/internal/store"
)

// DefaultInterval is how often a sweep runs when none is configured.
const DefaultInterval = time.Hour

// Janitor periodically deletes agent runs older than the configured TTL.
type Janitor struct {
	store    store.RunStore
	ttl      time.Duration
	interval time.Duration
}

// NewJanitor creates a retention janitor. A zero ttl disables it; Start
// then returns immediately.
func NewJanitor(s store.RunStore, ttl, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{store: s, ttl: ttl, interval: interval}
}

// Start runs the janitor until ctx is canceled. The first sweep happens
// immediately on startup.
func (j *Janitor) Start(ctx context.Context) {
	if j.ttl <= 0 {
		log.Info().Msg("Retention janitor disabled")
		return
	}

	log.Info().
		Dur("ttl", j.ttl).
		Dur("interval", j.interval).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

// runCycle performs one pruning sweep.
func (j *Janitor) runCycle(ctx context.Context) {
	start := time.Now()
	cutoff := start.Add(-j.ttl)

	pruned, err := j.store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Retention cycle failed")
		return
	}
	if pruned > 0 {
		log.Info().
			Int64("pruned_runs", pruned).
			Time("cutoff", cutoff).
			Dur("elapsed", time.Since(start)).
			Msg("Retention cycle complete")
	}
}
