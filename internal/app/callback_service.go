package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
	"github.com/pulsenotify/orchestrator/internal/port"
	"github.com/pulsenotify/orchestrator/pkg/tracing"
)

// CallbackService applies status reports from downstream channel workers.
// Workers report processing, sent, delivered and failed; every accepted
// report appends an audit event and refreshes the status snapshot.
type CallbackService struct {
	repo        port.NotificationRepository
	events      port.EventRepository
	statusStore port.StatusStore
	broadcaster port.StatusBroadcaster
	logger      *zap.Logger
}

func NewCallbackService(
	repo port.NotificationRepository,
	events port.EventRepository,
	statusStore port.StatusStore,
	broadcaster port.StatusBroadcaster,
	logger *zap.Logger,
) *CallbackService {
	return &CallbackService{
		repo:        repo,
		events:      events,
		statusStore: statusStore,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

type StatusReport struct {
	Status            domain.Status
	Provider          string
	ProviderMessageID string
	ErrorCode         domain.ErrorCode
	ErrorMessage      string
}

func (s *CallbackService) ApplyStatusReport(ctx context.Context, id uuid.UUID, report StatusReport) (*domain.Notification, error) {
	ctx, span := tracing.Tracer().Start(ctx, "notification.status_callback")
	defer span.End()

	span.SetAttributes(
		attribute.String("notification.id", id.String()),
		attribute.String("callback.status", string(report.Status)),
	)

	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	if n.Status == report.Status {
		// worker redelivery, nothing to change
		span.SetAttributes(attribute.Bool("callback.duplicate", true))
		return n, nil
	}

	if !domain.CanTransition(n.Status, report.Status) {
		err := fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, n.Status, report.Status)
		tracing.RecordError(span, err)
		return nil, err
	}

	if report.Status == domain.StatusFailed {
		if err := s.repo.UpdateFailure(ctx, id, report.ErrorCode, report.ErrorMessage); err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
	} else {
		if err := s.repo.UpdateStatus(ctx, id, report.Status); err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
	}

	if report.Provider != "" {
		if err := s.repo.UpdateProviderResult(ctx, id, report.Provider, report.ProviderMessageID); err != nil {
			s.logger.Warn("persist provider result failed", zap.Error(err))
		}
	}

	n.Status = report.Status

	if evt := domain.EventForStatus(report.Status); evt != "" {
		event := domain.NewEvent(n, evt, eventData(report))
		if report.Provider != "" {
			event.Provider = &report.Provider
		}
		if report.ProviderMessageID != "" {
			event.ProviderMessageID = &report.ProviderMessageID
		}
		if err := s.events.CreateEvent(ctx, event); err != nil {
			s.logger.Error("append audit event failed",
				zap.String("notification_id", id.String()),
				zap.Error(err),
			)
		}
	}

	snapshot := port.StatusSnapshot{
		Status:    string(report.Status),
		UpdatedAt: time.Now().Unix(),
	}
	if report.Status == domain.StatusFailed {
		snapshot.Error = string(report.ErrorCode)
	}
	if err := s.statusStore.SetStatus(ctx, n.CorrelationID, snapshot); err != nil {
		s.logger.Warn("status snapshot write failed", zap.Error(err))
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(n.CorrelationID, string(report.Status), snapshot.Error)
	}

	s.logger.Info("worker status applied",
		zap.String("notification_id", id.String()),
		zap.String("status", string(report.Status)),
		zap.String("provider", report.Provider),
		zap.String("trace_id", tracing.TraceIDFromContext(ctx)),
	)

	return n, nil
}

func eventData(report StatusReport) domain.JSONMap {
	if report.Status != domain.StatusFailed {
		return nil
	}
	return domain.JSONMap{
		"error_code":    string(report.ErrorCode),
		"error_message": report.ErrorMessage,
	}
}
