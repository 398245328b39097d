package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
	"github.com/pulsenotify/orchestrator/internal/port"
)

// QueryService serves the read side: status lookups, audit trails, user
// history and per-channel statistics.
type QueryService struct {
	repo        port.NotificationRepository
	events      port.EventRepository
	statusStore port.StatusStore
	logger      *zap.Logger
}

func NewQueryService(
	repo port.NotificationRepository,
	events port.EventRepository,
	statusStore port.StatusStore,
	logger *zap.Logger,
) *QueryService {
	return &QueryService{
		repo:        repo,
		events:      events,
		statusStore: statusStore,
		logger:      logger,
	}
}

// GetStatus answers from the snapshot cache when possible and falls back to
// the datastore for older or evicted entries.
func (s *QueryService) GetStatus(ctx context.Context, correlationID string) (*port.StatusSnapshot, error) {
	snapshot, err := s.statusStore.GetStatus(ctx, correlationID)
	if err != nil {
		s.logger.Warn("status snapshot read failed", zap.Error(err))
	}
	if snapshot != nil {
		return snapshot, nil
	}

	n, err := s.repo.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	snapshot = &port.StatusSnapshot{
		Status:    string(n.Status),
		UpdatedAt: n.UpdatedAt.Unix(),
	}
	if n.ErrorCode != nil {
		snapshot.Error = *n.ErrorCode
	}
	return snapshot, nil
}

func (s *QueryService) GetNotification(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *QueryService) GetEvents(ctx context.Context, correlationID string) ([]domain.NotificationEvent, error) {
	return s.events.ListByCorrelationID(ctx, correlationID)
}

func (s *QueryService) ListUserHistory(ctx context.Context, userID string, limit int, cursor *time.Time) ([]*domain.Notification, *time.Time, error) {
	return s.repo.ListByUser(ctx, userID, limit, cursor)
}

func (s *QueryService) ChannelStats(ctx context.Context) ([]domain.ChannelStats, error) {
	return s.repo.GetChannelStats(ctx)
}

func (s *QueryService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id)
}
