package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconciler is the slice of the reconciliation service this worker drives.
type Reconciler interface {
	ReconcileStale(ctx context.Context, staleAfter, maxAge time.Duration) (int, error)
	RecoverOrphanPayments(ctx context.Context, olderThan time.Duration) (int, error)
}

// ReconciliationWorker re-checks bookings that never heard back from the
// gateway and turns captured payments without a booking into recovery rows.
type ReconciliationWorker struct {
	reconciler Reconciler
	interval   time.Duration
	staleAfter time.Duration // how long a pending booking waits before polling the gateway
	maxAge     time.Duration // older pending bookings are left alone
}

// NewReconciliationWorker constructs a ReconciliationWorker.
func NewReconciliationWorker(reconciler Reconciler, interval, staleAfter, maxAge time.Duration) *ReconciliationWorker {
	return &ReconciliationWorker{
		reconciler: reconciler,
		interval:   interval,
		staleAfter: staleAfter,
		maxAge:     maxAge,
	}
}

// Start begins the periodic reconciliation loop until context is canceled.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	log.Info().
		Dur("interval", w.interval).
		Dur("stale_after", w.staleAfter).
		Dur("max_age", w.maxAge).
		Msg("Starting reconciliation worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Reconciliation worker stopped")
			return
		}
	}
}

func (w *ReconciliationWorker) run(ctx context.Context) {
	changed, err := w.reconciler.ReconcileStale(ctx, w.staleAfter, w.maxAge)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reconcile stale bookings")
	} else if changed > 0 {
		log.Info().Int("count", changed).Msg("Reconciled stale bookings")
	}

	if ctx.Err() != nil {
		return
	}

	recovered, err := w.reconciler.RecoverOrphanPayments(ctx, w.staleAfter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to recover orphan payments")
		return
	}
	if recovered > 0 {
		log.Warn().Int("count", recovered).Msg("Recovered captured payments without a booking")
	}
}
