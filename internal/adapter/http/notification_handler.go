package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulsenotify/orchestrator/internal/app"
	"github.com/pulsenotify/orchestrator/internal/domain"
)

const idempotencyKeyHeader = "X-Idempotency-Key"

type NotificationHandler struct {
	orchestrator *app.OrchestratorService
	callbacks    *app.CallbackService
	queries      *app.QueryService
}

func NewNotificationHandler(
	orchestrator *app.OrchestratorService,
	callbacks *app.CallbackService,
	queries *app.QueryService,
) *NotificationHandler {
	return &NotificationHandler{
		orchestrator: orchestrator,
		callbacks:    callbacks,
		queries:      queries,
	}
}

// Create accepts a notification request. New requests come back 202 with the
// pipeline still running; duplicates come back 200 with the original
// correlation id.
func (h *NotificationHandler) Create(c *gin.Context) {
	idempotencyKey := c.GetHeader(idempotencyKeyHeader)
	if idempotencyKey == "" {
		c.JSON(http.StatusBadRequest, fail("missing "+idempotencyKeyHeader+" header", "idempotency key is required"))
		return
	}

	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(err.Error(), "invalid request body"))
		return
	}

	metadata := domain.JSONMap(req.Metadata)
	if metadata == nil {
		metadata = domain.JSONMap{}
	}
	metadata["request_id"] = req.RequestID

	result, err := h.orchestrator.Ingest(c.Request.Context(), app.IngestInput{
		UserID:         req.UserID,
		TemplateCode:   req.TemplateCode,
		Channel:        domain.Channel(req.NotificationType),
		PriorityLevel:  req.Priority,
		Variables:      domain.JSONMap(req.Variables),
		Metadata:       metadata,
		IdempotencyKey: idempotencyKey,
		CorrelationID:  c.GetString("correlation_id"),
	})
	if err != nil {
		handleDomainError(c, err)
		return
	}

	resp := IngestResponse{
		CorrelationID:  result.CorrelationID,
		IdempotencyKey: result.IdempotencyKey,
		Status:         "processing",
	}
	if result.Duplicate {
		c.JSON(http.StatusOK, ok(resp, "duplicate request, original accepted earlier"))
		return
	}
	c.JSON(http.StatusAccepted, ok(resp, "notification accepted"))
}

func (h *NotificationHandler) GetStatus(c *gin.Context) {
	correlationID := c.Param("correlation_id")

	snapshot, err := h.queries.GetStatus(c.Request.Context(), correlationID)
	if err != nil {
		handleDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, ok(StatusResponse{
		CorrelationID: correlationID,
		Status:        snapshot.Status,
		Error:         snapshot.Error,
		UpdatedAt:     snapshot.UpdatedAt,
	}, "status fetched"))
}

func (h *NotificationHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, fail("invalid notification id", "id must be a uuid"))
		return
	}

	n, err := h.queries.GetNotification(c.Request.Context(), id)
	if err != nil {
		handleDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, ok(NewNotificationResponse(n), "notification fetched"))
}

func (h *NotificationHandler) GetEvents(c *gin.Context) {
	correlationID := c.Param("correlation_id")

	events, err := h.queries.GetEvents(c.Request.Context(), correlationID)
	if err != nil {
		handleDomainError(c, err)
		return
	}

	resp := make([]EventResponse, len(events))
	for i, e := range events {
		resp[i] = NewEventResponse(e)
	}
	c.JSON(http.StatusOK, ok(resp, "events fetched"))
}

func (h *NotificationHandler) ListUserHistory(c *gin.Context) {
	userID := c.Param("user_id")

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, fail("invalid limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	var cursor *time.Time
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, fail("invalid cursor", "cursor must be an RFC3339 timestamp"))
			return
		}
		cursor = &parsed
	}

	notifications, next, err := h.queries.ListUserHistory(c.Request.Context(), userID, limit, cursor)
	if err != nil {
		handleDomainError(c, err)
		return
	}

	resp := make([]NotificationResponse, len(notifications))
	for i, n := range notifications {
		resp[i] = NewNotificationResponse(n)
	}

	meta := &PaginationMeta{Limit: limit, Count: len(resp)}
	if next != nil {
		cursorStr := next.Format(time.RFC3339Nano)
		meta.NextCursor = &cursorStr
	}

	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    resp,
		Message: "history fetched",
		Meta:    meta,
	})
}

// StatusCallback applies a delivery report from a channel worker.
func (h *NotificationHandler) StatusCallback(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, fail("invalid notification id", "id must be a uuid"))
		return
	}

	var req StatusCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(err.Error(), "invalid request body"))
		return
	}

	status := domain.Status(req.Status)
	switch status {
	case domain.StatusProcessing, domain.StatusSent, domain.StatusDelivered, domain.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, fail("unknown status "+req.Status, "status must be processing, sent, delivered or failed"))
		return
	}
	if status == domain.StatusFailed && req.ErrorCode == "" {
		c.JSON(http.StatusBadRequest, fail("missing error_code", "error_code is required when status is failed"))
		return
	}

	n, err := h.callbacks.ApplyStatusReport(c.Request.Context(), id, app.StatusReport{
		Status:            status,
		Provider:          req.Provider,
		ProviderMessageID: req.ProviderMessageID,
		ErrorCode:         domain.ErrorCode(req.ErrorCode),
		ErrorMessage:      req.ErrorMessage,
	})
	if err != nil {
		handleDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, ok(NewNotificationResponse(n), "status applied"))
}

func (h *NotificationHandler) ChannelStats(c *gin.Context) {
	stats, err := h.queries.ChannelStats(c.Request.Context())
	if err != nil {
		handleDomainError(c, err)
		return
	}

	resp := make([]ChannelStatsResponse, len(stats))
	for i, s := range stats {
		resp[i] = ChannelStatsResponse(s)
	}
	c.JSON(http.StatusOK, ok(resp, "stats fetched"))
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, fail("invalid notification id", "id must be a uuid"))
		return
	}

	if err := h.queries.Delete(c.Request.Context(), id); err != nil {
		handleDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, ok(nil, "notification deleted"))
}

func handleDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, fail(err.Error(), "not found"))
	case errors.Is(err, domain.ErrInvalidChannel),
		errors.Is(err, domain.ErrEmptyUserID),
		errors.Is(err, domain.ErrEmptyTemplateCode),
		errors.Is(err, domain.ErrEmptyIdempotencyKey):
		c.JSON(http.StatusBadRequest, fail(err.Error(), "validation failed"))
	case errors.Is(err, domain.ErrInvalidStatusTransition),
		errors.Is(err, domain.ErrDuplicateIdempotencyKey):
		c.JSON(http.StatusConflict, fail(err.Error(), "conflict"))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, fail("internal server error", "something went wrong"))
	}
}
