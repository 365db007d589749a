package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const emailRetryBatch = 50

// ConfirmationResender resends confirmation emails that failed earlier.
type ConfirmationResender interface {
	RetryUnsentEmails(ctx context.Context, limit int) (int, error)
}

// EmailRetryWorker periodically resends confirmations for confirmed
// bookings whose email never went out.
type EmailRetryWorker struct {
	resender ConfirmationResender
	interval time.Duration
}

// NewEmailRetryWorker constructs an EmailRetryWorker.
func NewEmailRetryWorker(resender ConfirmationResender, interval time.Duration) *EmailRetryWorker {
	return &EmailRetryWorker{resender: resender, interval: interval}
}

// Start begins the periodic retry loop until context is canceled.
func (w *EmailRetryWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("Starting email retry worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Email retry worker stopped")
			return
		}
	}
}

func (w *EmailRetryWorker) run(ctx context.Context) {
	sent, err := w.resender.RetryUnsentEmails(ctx, emailRetryBatch)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retry confirmation emails")
		return
	}
	if sent > 0 {
		log.Info().Int("count", sent).Msg("Resent confirmation emails")
	}
}
