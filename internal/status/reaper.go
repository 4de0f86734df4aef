package status

import (
	"context"
	"time"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/metrics"
)

// Reaper periodically removes expired campaign records.
type Reaper struct {
	repo     Repository
	interval time.Duration
	log      *logging.Logger
}

func NewReaper(repo Repository, interval time.Duration, log *logging.Logger) *Reaper {
	return &Reaper{repo: repo, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled. A failed sweep is logged and
// retried on the next tick.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := r.repo.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				r.log.ErrorContext(ctx, "expiry sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				metrics.RecordsExpired.Add(float64(removed))
				r.log.InfoContext(ctx, "removed expired campaign records", "count", removed)
			}
		}
	}
}
