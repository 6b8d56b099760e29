package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hskprep/hsk-backend/internal/service"
)

// sweepBatchSize bounds how many overrun sessions one sweep pass finalizes.
const sweepBatchSize = 200

// ExpiryWorker periodically finalizes in-progress sessions whose time window
// has elapsed. This is a cleanup optimization: the request paths check expiry
// lazily and stay correct even if the worker never runs, but the sweep keeps
// abandoned sessions from lingering as in_progress and blocking re-attempts
// until the learner happens to come back.
type ExpiryWorker struct {
	sessionService *service.ExamSessionService
	interval       time.Duration
	log            zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(sessionService *service.ExamSessionService, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		sessionService: sessionService,
		interval:       interval,
		log:            log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine; returns when ctx is done.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	expired, err := w.sessionService.ExpireStale(ctx, sweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("Sweep failed")
		return
	}
	if expired > 0 {
		w.log.Info().Int("expired", expired).Msg("Swept overrun sessions")
	}
}
