package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

const notificationColumns = `
	id, user_id, template_code, correlation_id, idempotency_key,
	channel, status, priority, variables, metadata, enriched_payload,
	enriched_at, queued_at, sent_at, delivered_at, failed_at,
	error_code, error_message, retry_count, max_retries,
	provider, provider_message_id, created_at, updated_at, deleted_at`

func wrapIdempotencyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "idempotency_key") {
		return domain.ErrDuplicateIdempotencyKey
	}
	return err
}

// phaseColumn maps a status to the timestamp column set on first entry.
// enriched_at is absent on purpose: it is stamped by UpdateEnrichedPayload,
// only once enrichment has actually produced a payload.
func phaseColumn(status domain.Status) string {
	switch status {
	case domain.StatusQueued:
		return "queued_at"
	case domain.StatusSent:
		return "sent_at"
	case domain.StatusDelivered:
		return "delivered_at"
	case domain.StatusFailed:
		return "failed_at"
	default:
		return ""
	}
}

type NotificationRepo struct {
	db *sqlx.DB
}

func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

const insertNotification = `
	INSERT INTO notifications (
		id, user_id, template_code, correlation_id, idempotency_key,
		channel, status, priority, variables, metadata,
		retry_count, max_retries, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.db.ExecContext(ctx, insertNotification,
		n.ID, n.UserID, n.TemplateCode, n.CorrelationID, n.IdempotencyKey,
		n.Channel, n.Status, n.Priority, n.Variables, n.Metadata,
		n.RetryCount, n.MaxRetries, n.CreatedAt, n.UpdatedAt,
	)
	return wrapIdempotencyError(err)
}

// CreateWithEvent inserts the row and its created event atomically. This is
// the only multi-statement transaction on the write path.
func (r *NotificationRepo) CreateWithEvent(ctx context.Context, n *domain.Notification, e *domain.NotificationEvent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, insertNotification,
		n.ID, n.UserID, n.TemplateCode, n.CorrelationID, n.IdempotencyKey,
		n.Channel, n.Status, n.Priority, n.Variables, n.Metadata,
		n.RetryCount, n.MaxRetries, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return wrapIdempotencyError(err)
	}

	_, err = tx.ExecContext(ctx, insertEvent,
		e.ID, e.NotificationID, e.CorrelationID, e.EventType, e.Channel,
		e.EventData, e.Provider, e.ProviderMessageID, e.UserAgent, e.IPAddress, e.EventAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.GetContext(ctx, &n,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepo) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.GetContext(ctx, &n,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE correlation_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, correlationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetByIdempotencyKey returns (nil, nil) when no live row exists within the
// 24h deduplication window.
func (r *NotificationRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.GetContext(ctx, &n,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE idempotency_key = $1
		  AND created_at > NOW() - INTERVAL '24 hours'
		  AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateStatus sets the status and stamps the matching phase column exactly
// once; COALESCE keeps first-write-wins on replays.
func (r *NotificationRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	query := `UPDATE notifications SET status = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`
	if col := phaseColumn(status); col != "" {
		query = `UPDATE notifications SET status = $1, ` + col + ` = COALESCE(` + col + `, NOW()), updated_at = NOW()
			WHERE id = $2 AND deleted_at IS NULL`
	}

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepo) UpdateEnrichedPayload(ctx context.Context, id uuid.UUID, payload domain.JSONMap) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications
		SET enriched_payload = $1,
		    enriched_at = COALESCE(enriched_at, NOW()),
		    updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL`, payload, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepo) UpdateFailure(ctx context.Context, id uuid.UUID, code domain.ErrorCode, message string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications
		SET status = 'failed',
		    error_code = $1,
		    error_message = $2,
		    retry_count = retry_count + 1,
		    failed_at = COALESCE(failed_at, NOW()),
		    updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL`, code, message, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepo) UpdateProviderResult(ctx context.Context, id uuid.UUID, provider, providerMessageID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET provider = $1, provider_message_id = $2, updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL`, provider, providerMessageID, id)
	return err
}

// ClaimFailedForRetry selects retryable failed rows with SKIP LOCKED and
// moves them back to enriching inside one transaction, so concurrent
// sweepers never claim the same row.
func (r *NotificationRepo) ClaimFailedForRetry(ctx context.Context, limit int) ([]*domain.Notification, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var rows []domain.Notification
	err = tx.SelectContext(ctx, &rows,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'failed'
		  AND retry_count < max_retries
		  AND failed_at > NOW() - INTERVAL '24 hours'
		  AND deleted_at IS NULL
		ORDER BY CASE priority
			WHEN 'urgent' THEN 4
			WHEN 'high' THEN 3
			WHEN 'normal' THEN 2
			ELSE 1
		END DESC, created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}

	claimed := make([]*domain.Notification, 0, len(rows))
	for i := range rows {
		n := rows[i]
		_, err = tx.ExecContext(ctx,
			`UPDATE notifications SET status = 'enriching', updated_at = NOW() WHERE id = $1 AND created_at = $2`,
			n.ID, n.CreatedAt)
		if err != nil {
			return nil, err
		}
		n.Status = domain.StatusEnriching
		claimed = append(claimed, &n)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *NotificationRepo) ListPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]*domain.Notification, error) {
	var rows []domain.Notification
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'pending'
		  AND created_at < NOW() - $1::interval
		  AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2`, age.String(), limit)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Notification, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

// ListByUser pages through a user's notifications with a keyset cursor on
// created_at; a nil next cursor means the last page.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int, cursor *time.Time) ([]*domain.Notification, *time.Time, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2`
	args := []any{userID, limit}
	if cursor != nil {
		query = `SELECT ` + notificationColumns + ` FROM notifications
			WHERE user_id = $1 AND created_at < $2 AND deleted_at IS NULL
			ORDER BY created_at DESC LIMIT $3`
		args = []any{userID, *cursor, limit}
	}

	var rows []domain.Notification
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, nil, err
	}

	result := make([]*domain.Notification, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}

	var next *time.Time
	if len(rows) == limit {
		next = &rows[len(rows)-1].CreatedAt
	}
	return result, next, nil
}

func (r *NotificationRepo) GetChannelStats(ctx context.Context) ([]domain.ChannelStats, error) {
	var stats []domain.ChannelStats
	err := r.db.SelectContext(ctx, &stats,
		`SELECT channel,
			COUNT(*) FILTER (WHERE status IN ('queued','processing','sent','delivered')) AS queued,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COALESCE(AVG(EXTRACT(EPOCH FROM (queued_at - created_at)) * 1000) FILTER (WHERE queued_at IS NOT NULL), 0) AS avg_queue_time_ms
		FROM notifications
		WHERE deleted_at IS NULL
		GROUP BY channel`)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *NotificationRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}
