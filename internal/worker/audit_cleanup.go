package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/therapy-scheduler/pkg/metrics"
)

// Cleaner removes audit rows older than the retention period.
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

type AuditCleanupWorker struct {
	cleaner         Cleaner
	retention       time.Duration
	cleanupInterval time.Duration
	metrics         *metrics.Metrics
}

func NewAuditCleanupWorker(cleaner Cleaner, retentionDays int, cleanupInterval time.Duration, m *metrics.Metrics) *AuditCleanupWorker {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	return &AuditCleanupWorker{
		cleaner:         cleaner,
		retention:       time.Duration(retentionDays) * 24 * time.Hour,
		cleanupInterval: cleanupInterval,
		metrics:         m,
	}
}

// Start runs a cleanup immediately and then on every tick until ctx is done.
func (w *AuditCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.cleanupInterval).Dur("retention", w.retention).Msg("AuditCleanup_Started")
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("AuditCleanup_Stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *AuditCleanupWorker) runOnce(ctx context.Context) {
	if _, err := w.cleanup(ctx); err != nil {
		log.Error().Err(err).Msg("AuditCleanup_Error")
	}
}

func (w *AuditCleanupWorker) cleanup(ctx context.Context) (int64, error) {
	start := time.Now()
	rows, err := w.cleaner.Cleanup(ctx, w.retention)
	w.metrics.ObserveDatabase("audit_cleanup", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	if w.metrics != nil {
		w.metrics.AuditLogsPurged.Add(float64(rows))
	}
	log.Info().Int64("rows", rows).Msg("AuditCleanup_Complete")
	return rows, nil
}
