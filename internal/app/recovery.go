package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
	"github.com/pulsenotify/orchestrator/internal/port"
)

// Recovery sweeps for rows the pipeline lost: pending rows whose detached
// task never ran to completion (crash between insert and enrichment), and
// failed rows with retries left. Both are re-driven through enrichment.
type Recovery struct {
	repo         port.NotificationRepository
	events       port.EventRepository
	orchestrator *OrchestratorService
	logger       *zap.Logger
	interval     time.Duration
	staleAfter   time.Duration
	batchSize    int
}

func NewRecovery(
	repo port.NotificationRepository,
	events port.EventRepository,
	orchestrator *OrchestratorService,
	logger *zap.Logger,
) *Recovery {
	return &Recovery{
		repo:         repo,
		events:       events,
		orchestrator: orchestrator,
		logger:       logger,
		interval:     30 * time.Second,
		staleAfter:   2 * time.Minute,
		batchSize:    50,
	}
}

func (r *Recovery) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.redriveStalePending(ctx)
			r.retryFailed(ctx)
		}
	}
}

func (r *Recovery) redriveStalePending(ctx context.Context) {
	stale, err := r.repo.ListPendingOlderThan(ctx, r.staleAfter, r.batchSize)
	if err != nil {
		r.logger.Error("list stale pending failed", zap.Error(err))
		return
	}

	for _, n := range stale {
		if err := r.repo.UpdateStatus(ctx, n.ID, domain.StatusEnriching); err != nil {
			r.logger.Error("mark stale row enriching failed",
				zap.String("id", n.ID.String()),
				zap.Error(err),
			)
			continue
		}
		n.Status = domain.StatusEnriching
		r.orchestrator.Reprocess(ctx, n)
	}

	if len(stale) > 0 {
		r.logger.Warn("re-drove stale pending notifications", zap.Int("count", len(stale)))
	}
}

func (r *Recovery) retryFailed(ctx context.Context) {
	claimed, err := r.repo.ClaimFailedForRetry(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("claim failed rows failed", zap.Error(err))
		return
	}

	for _, n := range claimed {
		event := domain.NewEvent(n, domain.EventRetried, domain.JSONMap{
			"retry_count": n.RetryCount,
		})
		if err := r.events.CreateEvent(ctx, event); err != nil {
			r.logger.Error("append retry event failed",
				zap.String("id", n.ID.String()),
				zap.Error(err),
			)
		}
		r.orchestrator.Reprocess(ctx, n)
	}

	if len(claimed) > 0 {
		r.logger.Info("retried failed notifications", zap.Int("count", len(claimed)))
	}
}
