package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
)

// ResetTokenSweeper periodically deletes expired password reset tokens. It
// never runs on the request path.
type ResetTokenSweeper struct {
	store    *ResetTokenStore
	interval time.Duration
	metrics  *metrics.Metrics
	log      logging.Logger
}

func NewResetTokenSweeper(store *ResetTokenStore, interval time.Duration, m *metrics.Metrics, log logging.Logger) *ResetTokenSweeper {
	return &ResetTokenSweeper{store: store, interval: interval, metrics: m, log: log.With("module", "sweeper")}
}

// Run sweeps every interval until ctx is done.
func (w *ResetTokenSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info(ctx, "reset token sweeper started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			w.log.Info(ctx, "reset token sweeper stopped")
			return
		case <-ticker.C:
			_, _ = w.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes the tokens expired by now and returns how many.
func (w *ResetTokenSweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := w.store.DeleteExpired(ctx)
	if err != nil {
		w.log.Error(ctx, "reset token sweep failed", logging.ErrorAttrs(err)...)
		return 0, err
	}
	w.metrics.RecordResetTokensSwept(n)
	if n > 0 {
		w.log.Info(ctx, "expired reset tokens deleted", "count", n)
	}
	return n, nil
}
