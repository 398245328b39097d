package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
	"github.com/pulsenotify/orchestrator/internal/port"
	"github.com/pulsenotify/orchestrator/pkg/tracing"
)

const enrichmentTimeout = 30 * time.Second

// OrchestratorService owns the ingest-to-queued pipeline: persist the
// notification, fetch user preferences and the template concurrently,
// validate, publish to the broker, and keep the status snapshot current.
type OrchestratorService struct {
	repo        port.NotificationRepository
	events      port.EventRepository
	idempotent  port.IdempotencyStore
	statusStore port.StatusStore
	broker      port.BrokerPublisher
	users       port.UserClient
	templates   port.TemplateClient
	broadcaster port.StatusBroadcaster
	logger      *zap.Logger
}

func NewOrchestratorService(
	repo port.NotificationRepository,
	events port.EventRepository,
	idempotent port.IdempotencyStore,
	statusStore port.StatusStore,
	broker port.BrokerPublisher,
	users port.UserClient,
	templates port.TemplateClient,
	broadcaster port.StatusBroadcaster,
	logger *zap.Logger,
) *OrchestratorService {
	return &OrchestratorService{
		repo:        repo,
		events:      events,
		idempotent:  idempotent,
		statusStore: statusStore,
		broker:      broker,
		users:       users,
		templates:   templates,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

type IngestInput struct {
	UserID         string
	TemplateCode   string
	Channel        domain.Channel
	PriorityLevel  int
	Variables      domain.JSONMap
	Metadata       domain.JSONMap
	IdempotencyKey string
	CorrelationID  string
}

type IngestResult struct {
	CorrelationID  string
	IdempotencyKey string
	Duplicate      bool
}

// Ingest runs the synchronous part of POST /notification: deduplicate, then
// hand the request to the async pipeline. On a duplicate it echoes the
// correlation id of the original request.
func (s *OrchestratorService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "notification.ingest")
	defer span.End()

	span.SetAttributes(
		attribute.String("notification.channel", string(input.Channel)),
		attribute.String("notification.idempotency_key", input.IdempotencyKey),
	)

	if err := domain.ValidateChannel(input.Channel); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	storedCorrID, hit, err := s.idempotent.Get(ctx, input.IdempotencyKey)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("idempotency cache lookup: %w", err)
	}
	if hit {
		span.SetAttributes(attribute.Bool("notification.idempotent_hit", true))
		return &IngestResult{
			CorrelationID:  storedCorrID,
			IdempotencyKey: input.IdempotencyKey,
			Duplicate:      true,
		}, nil
	}

	won, err := s.idempotent.SetNX(ctx, input.IdempotencyKey, input.CorrelationID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("idempotency cache reserve: %w", err)
	}
	if !won {
		// lost the race to a concurrent request with the same key
		storedCorrID, _, lookupErr := s.idempotent.Get(ctx, input.IdempotencyKey)
		if lookupErr == nil && storedCorrID != "" {
			span.SetAttributes(attribute.Bool("notification.idempotent_hit", true))
			return &IngestResult{
				CorrelationID:  storedCorrID,
				IdempotencyKey: input.IdempotencyKey,
				Duplicate:      true,
			}, nil
		}
	}

	go s.EnrichAndPublish(context.WithoutCancel(ctx), input)

	return &IngestResult{
		CorrelationID:  input.CorrelationID,
		IdempotencyKey: input.IdempotencyKey,
	}, nil
}

// fetchJoin collects the results of the two concurrent remote calls.
type fetchJoin struct {
	prefs   domain.UserPreferences
	tmpl    domain.Template
	userErr error
	tmplErr error
}

// EnrichAndPublish is the async pipeline behind an accepted request. It runs
// under its own deadline, detached from the HTTP request.
func (s *OrchestratorService) EnrichAndPublish(ctx context.Context, input IngestInput) {
	ctx, cancel := context.WithTimeout(ctx, enrichmentTimeout)
	defer cancel()

	ctx, span := tracing.Tracer().Start(ctx, "notification.enrich_and_publish")
	defer span.End()

	log := s.logger.With(zap.String("correlation_id", input.CorrelationID))

	n, err := domain.NewNotification(
		input.UserID, input.TemplateCode, input.CorrelationID, input.IdempotencyKey,
		input.Channel, domain.PriorityFromLevel(input.PriorityLevel),
		input.Variables, input.Metadata,
	)
	if err != nil {
		log.Error("invalid notification request", zap.Error(err))
		s.snapshot(ctx, input.CorrelationID, string(domain.StatusFailed), string(domain.ErrCodeValidation))
		return
	}

	span.SetAttributes(tracing.NotificationAttrs(n.ID.String(), string(n.Channel), string(n.Priority))...)

	created := domain.NewEvent(n, domain.EventCreated, domain.JSONMap{
		"template_code": n.TemplateCode,
		"priority":      string(n.Priority),
	})
	if err := s.repo.CreateWithEvent(ctx, n, created); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			// cache missed but the constraint held: the original row is
			// canonical, nothing more to do
			log.Info("duplicate caught by unique constraint")
			return
		}
		tracing.RecordError(span, err)
		log.Error("persist notification failed", zap.Error(err))
		s.snapshot(ctx, input.CorrelationID, string(domain.StatusFailed), string(domain.ErrCodeQueue))
		return
	}

	s.transition(ctx, n, domain.StatusEnriching)
	s.process(ctx, n)
}

// Reprocess re-drives an existing notification through enrichment and
// publish. The recovery loop calls it for claimed retries and stale rows;
// the row must already be in the enriching state.
func (s *OrchestratorService) Reprocess(ctx context.Context, n *domain.Notification) {
	ctx, cancel := context.WithTimeout(ctx, enrichmentTimeout)
	defer cancel()

	ctx, span := tracing.Tracer().Start(ctx, "notification.reprocess")
	defer span.End()
	span.SetAttributes(tracing.NotificationAttrs(n.ID.String(), string(n.Channel), string(n.Priority))...)

	s.process(ctx, n)
}

func (s *OrchestratorService) process(ctx context.Context, n *domain.Notification) {
	log := s.logger.With(zap.String("correlation_id", n.CorrelationID))

	join := s.fetchConcurrently(ctx, n.UserID, n.TemplateCode)
	if join.userErr != nil {
		s.fail(ctx, n, fetchErrorCode(join.userErr, domain.ErrCodeUserFetch), join.userErr)
		return
	}
	if join.tmplErr != nil {
		s.fail(ctx, n, fetchErrorCode(join.tmplErr, domain.ErrCodeTemplateFetch), join.tmplErr)
		return
	}

	if !join.prefs.Allows(n.Channel) {
		s.fail(ctx, n, domain.ErrCodeUserFetch, domain.ErrChannelOptedOut)
		return
	}
	if _, err := join.tmpl.VersionFor(n.Channel); err != nil {
		s.fail(ctx, n, domain.ErrCodeTemplateFetch, err)
		return
	}

	payload := domain.EnrichedPayload(join.prefs, join.tmpl, n.Variables)
	if err := s.repo.UpdateEnrichedPayload(ctx, n.ID, payload); err != nil {
		s.fail(ctx, n, domain.ErrCodeQueue, err)
		return
	}
	s.recordEvent(ctx, n, domain.EventEnriched, domain.JSONMap{"template_id": join.tmpl.ID})

	msg := domain.NewEnrichedMessage(n, join.prefs, join.tmpl)
	if err := s.broker.Publish(ctx, msg); err != nil {
		s.fail(ctx, n, domain.ErrCodeQueue, err)
		return
	}

	s.transition(ctx, n, domain.StatusQueued)

	log.Info("notification queued",
		zap.String("notification_id", n.ID.String()),
		zap.String("channel", string(n.Channel)),
		zap.String("trace_id", tracing.TraceIDFromContext(ctx)),
	)
}

// fetchErrorCode distinguishes a remote that answered with a non-conforming
// payload from one that was unreachable or said no.
func fetchErrorCode(err error, fallback domain.ErrorCode) domain.ErrorCode {
	if errors.Is(err, domain.ErrRemoteMalformed) {
		return domain.ErrCodeParse
	}
	return fallback
}

func (s *OrchestratorService) fetchConcurrently(ctx context.Context, userID, templateCode string) fetchJoin {
	var join fetchJoin
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		join.prefs, join.userErr = s.users.FetchUserPreferences(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		join.tmpl, join.tmplErr = s.templates.FetchTemplate(ctx, templateCode)
	}()

	wg.Wait()
	return join
}

// fail marks the notification failed, records the audit event and pushes the
// failure to snapshot and stream subscribers. A pipeline that overran its
// deadline is reported as a timeout regardless of which step tripped.
func (s *OrchestratorService) fail(ctx context.Context, n *domain.Notification, code domain.ErrorCode, cause error) {
	if ctx.Err() != nil {
		code = domain.ErrCodeTimeout
	}

	s.logger.Error("notification pipeline failed",
		zap.String("notification_id", n.ID.String()),
		zap.String("correlation_id", n.CorrelationID),
		zap.String("error_code", string(code)),
		zap.Error(cause),
	)

	// detached context: the failure must be durable even after the deadline
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.UpdateFailure(writeCtx, n.ID, code, cause.Error()); err != nil {
		s.logger.Error("persist failure state failed", zap.Error(err))
	}
	n.Status = domain.StatusFailed

	s.recordEvent(writeCtx, n, domain.EventFailed, domain.JSONMap{
		"error_code":    string(code),
		"error_message": cause.Error(),
	})
	s.snapshot(writeCtx, n.CorrelationID, string(domain.StatusFailed), string(code))
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(n.CorrelationID, string(domain.StatusFailed), string(code))
	}
}

func (s *OrchestratorService) transition(ctx context.Context, n *domain.Notification, to domain.Status) {
	if err := n.Transition(to); err != nil {
		s.logger.Error("illegal transition", zap.Error(err))
		return
	}
	if err := s.repo.UpdateStatus(ctx, n.ID, to); err != nil {
		s.logger.Error("persist status failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("status", string(to)),
			zap.Error(err),
		)
		return
	}

	if evt := domain.EventForStatus(to); evt != "" {
		s.recordEvent(ctx, n, evt, nil)
	}
	s.snapshot(ctx, n.CorrelationID, string(to), "")
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(n.CorrelationID, string(to), "")
	}
}

func (s *OrchestratorService) recordEvent(ctx context.Context, n *domain.Notification, eventType domain.EventType, data domain.JSONMap) {
	if err := s.events.CreateEvent(ctx, domain.NewEvent(n, eventType, data)); err != nil {
		s.logger.Error("append audit event failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}

func (s *OrchestratorService) snapshot(ctx context.Context, correlationID, status, errCode string) {
	err := s.statusStore.SetStatus(ctx, correlationID, port.StatusSnapshot{
		Status:    status,
		Error:     errCode,
		UpdatedAt: time.Now().Unix(),
	})
	if err != nil {
		s.logger.Warn("status snapshot write failed", zap.Error(err))
	}
}
