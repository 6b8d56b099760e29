package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hskprep/hsk-backend/internal/repository"
)

// RetentionWorker purges terminal sessions older than the retention window.
// Runs once at startup and then once a day.
type RetentionWorker struct {
	sessionRepo   *repository.ExamSessionRepository
	retentionDays int
	log           zerolog.Logger
}

// NewRetentionWorker creates a new RetentionWorker.
func NewRetentionWorker(sessionRepo *repository.ExamSessionRepository, retentionDays int, log zerolog.Logger) *RetentionWorker {
	return &RetentionWorker{
		sessionRepo:   sessionRepo,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "retention_worker").Logger(),
	}
}

// Start begins the purge loop. Call in a goroutine; returns when ctx is done.
func (w *RetentionWorker) Start(ctx context.Context) {
	w.log.Info().Int("retention_days", w.retentionDays).Msg("Worker started")

	w.purge(ctx)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *RetentionWorker) purge(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)
	deleted, err := w.sessionRepo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("Purge failed")
		return
	}
	if deleted > 0 {
		w.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Purged old sessions")
	}
}
