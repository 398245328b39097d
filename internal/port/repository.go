package port

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pulsenotify/orchestrator/internal/domain"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	// CreateWithEvent inserts the row and its created event in one transaction.
	CreateWithEvent(ctx context.Context, n *domain.Notification, e *domain.NotificationEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Notification, error)
	// GetByIdempotencyKey returns (nil, nil) when no live row exists inside
	// the 24h window.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Notification, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error
	UpdateEnrichedPayload(ctx context.Context, id uuid.UUID, payload domain.JSONMap) error
	UpdateFailure(ctx context.Context, id uuid.UUID, code domain.ErrorCode, message string) error
	UpdateProviderResult(ctx context.Context, id uuid.UUID, provider, providerMessageID string) error
	ClaimFailedForRetry(ctx context.Context, limit int) ([]*domain.Notification, error)
	ListPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]*domain.Notification, error)
	ListByUser(ctx context.Context, userID string, limit int, cursor *time.Time) ([]*domain.Notification, *time.Time, error)
	GetChannelStats(ctx context.Context) ([]domain.ChannelStats, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type EventRepository interface {
	CreateEvent(ctx context.Context, event *domain.NotificationEvent) error
	ListByNotificationID(ctx context.Context, notificationID uuid.UUID) ([]domain.NotificationEvent, error)
	ListByCorrelationID(ctx context.Context, correlationID string) ([]domain.NotificationEvent, error)
}
