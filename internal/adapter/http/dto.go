package http

import (
	"time"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

// Envelope is the uniform response body for every JSON endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Data    any             `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message"`
	Meta    *PaginationMeta `json:"meta,omitempty"`
}

type PaginationMeta struct {
	Limit      int     `json:"limit"`
	Count      int     `json:"count"`
	NextCursor *string `json:"next_cursor,omitempty"`
}

func ok(data any, message string) Envelope {
	return Envelope{Success: true, Data: data, Message: message}
}

func fail(errMsg, message string) Envelope {
	return Envelope{Success: false, Error: errMsg, Message: message}
}

// CreateNotificationRequest is the ingest body; notification_type names the
// delivery channel on the wire.
type CreateNotificationRequest struct {
	NotificationType string         `json:"notification_type" binding:"required"`
	UserID           string         `json:"user_id" binding:"required"`
	TemplateCode     string         `json:"template_code" binding:"required"`
	RequestID        string         `json:"request_id" binding:"required"`
	Priority         int            `json:"priority"`
	Variables        map[string]any `json:"variables"`
	Metadata         map[string]any `json:"metadata"`
}

type IngestResponse struct {
	CorrelationID  string `json:"correlation_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
}

type StatusResponse struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	UpdatedAt     int64  `json:"updated_at"`
}

type StatusCallbackRequest struct {
	Status            string `json:"status" binding:"required"`
	Provider          string `json:"provider"`
	ProviderMessageID string `json:"provider_message_id"`
	ErrorCode         string `json:"error_code"`
	ErrorMessage      string `json:"error_message"`
}

type NotificationResponse struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	TemplateCode    string         `json:"template_code"`
	CorrelationID   string         `json:"correlation_id"`
	Channel         string         `json:"channel"`
	Status          string         `json:"status"`
	Priority        string         `json:"priority"`
	Variables       map[string]any `json:"variables,omitempty"`
	EnrichedPayload map[string]any `json:"enriched_payload,omitempty"`
	ErrorCode       *string        `json:"error_code,omitempty"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	RetryCount      int            `json:"retry_count"`
	Provider        *string        `json:"provider,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:              n.ID.String(),
		UserID:          n.UserID,
		TemplateCode:    n.TemplateCode,
		CorrelationID:   n.CorrelationID,
		Channel:         string(n.Channel),
		Status:          string(n.Status),
		Priority:        string(n.Priority),
		Variables:       n.Variables,
		EnrichedPayload: n.EnrichedPayload,
		ErrorCode:       n.ErrorCode,
		ErrorMessage:    n.ErrorMessage,
		RetryCount:      n.RetryCount,
		Provider:        n.Provider,
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
	}
}

type EventResponse struct {
	ID                string         `json:"id"`
	NotificationID    string         `json:"notification_id"`
	EventType         string         `json:"event_type"`
	Channel           string         `json:"channel"`
	EventData         map[string]any `json:"event_data,omitempty"`
	Provider          *string        `json:"provider,omitempty"`
	ProviderMessageID *string        `json:"provider_message_id,omitempty"`
	EventAt           time.Time      `json:"event_at"`
}

func NewEventResponse(e domain.NotificationEvent) EventResponse {
	return EventResponse{
		ID:                e.ID.String(),
		NotificationID:    e.NotificationID.String(),
		EventType:         string(e.EventType),
		Channel:           string(e.Channel),
		EventData:         e.EventData,
		Provider:          e.Provider,
		ProviderMessageID: e.ProviderMessageID,
		EventAt:           e.EventAt,
	}
}

type ChannelStatsResponse struct {
	Channel        string  `json:"channel"`
	Queued         int64   `json:"queued"`
	Failed         int64   `json:"failed"`
	AvgQueueTimeMs float64 `json:"avg_queue_time_ms"`
}
