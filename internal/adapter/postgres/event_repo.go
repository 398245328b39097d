package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

const eventColumns = `
	id, notification_id, correlation_id, event_type, channel,
	event_data, provider, provider_message_id, user_agent, ip_address, event_at`

const insertEvent = `
	INSERT INTO notification_events (
		id, notification_id, correlation_id, event_type, channel,
		event_data, provider, provider_message_id, user_agent, ip_address, event_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

// EventRepo appends to and reads from the notification_events audit log.
// Events are never updated or deleted.
type EventRepo struct {
	db *sqlx.DB
}

func NewEventRepo(db *sqlx.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) CreateEvent(ctx context.Context, e *domain.NotificationEvent) error {
	_, err := r.db.ExecContext(ctx, insertEvent,
		e.ID, e.NotificationID, e.CorrelationID, e.EventType, e.Channel,
		e.EventData, e.Provider, e.ProviderMessageID, e.UserAgent, e.IPAddress, e.EventAt,
	)
	return err
}

func (r *EventRepo) ListByNotificationID(ctx context.Context, notificationID uuid.UUID) ([]domain.NotificationEvent, error) {
	var rows []domain.NotificationEvent
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+eventColumns+` FROM notification_events
		WHERE notification_id = $1
		ORDER BY event_at ASC`, notificationID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EventRepo) ListByCorrelationID(ctx context.Context, correlationID string) ([]domain.NotificationEvent, error) {
	var rows []domain.NotificationEvent
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+eventColumns+` FROM notification_events
		WHERE correlation_id = $1
		ORDER BY event_at ASC`, correlationID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
