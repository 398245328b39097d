package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PriorityFromLevel maps the numeric priority carried on ingest requests
// (1..4) to its named form. Unknown levels fall back to normal.
func PriorityFromLevel(level int) Priority {
	switch level {
	case 1:
		return PriorityLow
	case 2:
		return PriorityNormal
	case 3:
		return PriorityHigh
	case 4:
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusEnriching  Status = "enriching"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

type EventType string

const (
	EventCreated      EventType = "created"
	EventEnriched     EventType = "enriched"
	EventQueued       EventType = "queued"
	EventSent         EventType = "sent"
	EventDelivered    EventType = "delivered"
	EventFailed       EventType = "failed"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventBounced      EventType = "bounced"
	EventUnsubscribed EventType = "unsubscribed"
	EventCancelled    EventType = "cancelled"
	EventRetried      EventType = "retried"
)

// EventForStatus returns the audit event recording entry into the given
// status, or "" for statuses that carry no event of their own.
func EventForStatus(s Status) EventType {
	switch s {
	case StatusQueued:
		return EventQueued
	case StatusSent:
		return EventSent
	case StatusDelivered:
		return EventDelivered
	case StatusFailed:
		return EventFailed
	case StatusCancelled:
		return EventCancelled
	case StatusProcessing:
		return ""
	default:
		return ""
	}
}

var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusEnriching, StatusFailed, StatusCancelled},
	StatusEnriching:  {StatusQueued, StatusFailed, StatusCancelled},
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusSent, StatusFailed, StatusCancelled},
	StatusSent:       {StatusDelivered, StatusFailed},
	StatusFailed:     {StatusEnriching},
}

// CanTransition reports whether moving between two statuses is legal.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusCancelled
}

// JSONMap is an opaque JSON document persisted as jsonb.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
	return json.Unmarshal(b, m)
}

// Notification is the root record, one per accepted non-duplicate request.
type Notification struct {
	ID              uuid.UUID `db:"id"`
	UserID          string    `db:"user_id"`
	TemplateCode    string    `db:"template_code"`
	CorrelationID   string    `db:"correlation_id"`
	IdempotencyKey  string    `db:"idempotency_key"`
	Channel         Channel   `db:"channel"`
	Status          Status    `db:"status"`
	Priority        Priority  `db:"priority"`
	Variables       JSONMap   `db:"variables"`
	Metadata        JSONMap   `db:"metadata"`
	EnrichedPayload JSONMap   `db:"enriched_payload"`

	EnrichedAt  *time.Time `db:"enriched_at"`
	QueuedAt    *time.Time `db:"queued_at"`
	SentAt      *time.Time `db:"sent_at"`
	DeliveredAt *time.Time `db:"delivered_at"`
	FailedAt    *time.Time `db:"failed_at"`

	ErrorCode    *string `db:"error_code"`
	ErrorMessage *string `db:"error_message"`

	RetryCount int `db:"retry_count"`
	MaxRetries int `db:"max_retries"`

	Provider          *string `db:"provider"`
	ProviderMessageID *string `db:"provider_message_id"`

	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

const defaultMaxRetries = 3

func NewNotification(userID, templateCode, correlationID, idempotencyKey string, channel Channel, priority Priority, variables, metadata JSONMap) (*Notification, error) {
	if err := ValidateChannel(channel); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if templateCode == "" {
		return nil, ErrEmptyTemplateCode
	}
	if idempotencyKey == "" {
		return nil, ErrEmptyIdempotencyKey
	}

	now := time.Now().UTC()
	return &Notification{
		ID:             uuid.Must(uuid.NewV7()),
		UserID:         userID,
		TemplateCode:   templateCode,
		CorrelationID:  correlationID,
		IdempotencyKey: idempotencyKey,
		Channel:        channel,
		Status:         StatusPending,
		Priority:       priority,
		Variables:      variables,
		Metadata:       metadata,
		MaxRetries:     defaultMaxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (n *Notification) Transition(to Status) error {
	if !CanTransition(n.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, n.Status, to)
	}
	n.Status = to
	n.UpdatedAt = time.Now().UTC()
	return nil
}

func (n *Notification) HasRetriesLeft() bool {
	return n.RetryCount < n.MaxRetries
}

func ValidateChannel(ch Channel) error {
	switch ch {
	case ChannelEmail, ChannelPush:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidChannel, ch)
	}
}

// NotificationEvent is one append-only audit record. Immutable once written.
type NotificationEvent struct {
	ID                uuid.UUID `db:"id"`
	NotificationID    uuid.UUID `db:"notification_id"`
	CorrelationID     string    `db:"correlation_id"`
	EventType         EventType `db:"event_type"`
	Channel           Channel   `db:"channel"`
	EventData         JSONMap   `db:"event_data"`
	Provider          *string   `db:"provider"`
	ProviderMessageID *string   `db:"provider_message_id"`
	UserAgent         *string   `db:"user_agent"`
	IPAddress         *string   `db:"ip_address"`
	EventAt           time.Time `db:"event_at"`
}

type ChannelStats struct {
	Channel        string  `db:"channel"`
	Queued         int64   `db:"queued"`
	Failed         int64   `db:"failed"`
	AvgQueueTimeMs float64 `db:"avg_queue_time_ms"`
}

func NewEvent(n *Notification, eventType EventType, data JSONMap) *NotificationEvent {
	return &NotificationEvent{
		ID:             uuid.Must(uuid.NewV7()),
		NotificationID: n.ID,
		CorrelationID:  n.CorrelationID,
		EventType:      eventType,
		Channel:        n.Channel,
		EventData:      data,
		EventAt:        time.Now().UTC(),
	}
}
