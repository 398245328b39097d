package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsenotify/orchestrator/internal/domain"
	"github.com/pulsenotify/orchestrator/internal/port"
)

type mockNotificationRepo struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*domain.Notification
	events        []*domain.NotificationEvent
	createErr     error
	updateErr     error
	stalePending  []*domain.Notification
	failedClaims  []*domain.Notification
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{
		notifications: make(map[uuid.UUID]*domain.Notification),
	}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = n
	return nil
}

func (m *mockNotificationRepo) CreateWithEvent(ctx context.Context, n *domain.Notification, e *domain.NotificationEvent) error {
	if err := m.Create(ctx, n); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockNotificationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}
	return n, nil
}

func (m *mockNotificationRepo) GetByCorrelationID(_ context.Context, correlationID string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.CorrelationID == correlationID {
			return n, nil
		}
	}
	return nil, domain.ErrNotificationNotFound
}

func (m *mockNotificationRepo) GetByIdempotencyKey(_ context.Context, key string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.IdempotencyKey == key {
			return n, nil
		}
	}
	return nil, nil
}

func (m *mockNotificationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	n.Status = status
	return nil
}

func (m *mockNotificationRepo) UpdateEnrichedPayload(_ context.Context, id uuid.UUID, payload domain.JSONMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	n.EnrichedPayload = payload
	return nil
}

func (m *mockNotificationRepo) UpdateFailure(_ context.Context, id uuid.UUID, code domain.ErrorCode, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	codeStr := string(code)
	n.Status = domain.StatusFailed
	n.ErrorCode = &codeStr
	n.ErrorMessage = &message
	n.RetryCount++
	return nil
}

func (m *mockNotificationRepo) UpdateProviderResult(_ context.Context, id uuid.UUID, provider, providerMessageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	n.Provider = &provider
	n.ProviderMessageID = &providerMessageID
	return nil
}

func (m *mockNotificationRepo) ClaimFailedForRetry(_ context.Context, _ int) ([]*domain.Notification, error) {
	claims := m.failedClaims
	m.failedClaims = nil
	for _, n := range claims {
		n.Status = domain.StatusEnriching
	}
	return claims, nil
}

func (m *mockNotificationRepo) ListPendingOlderThan(_ context.Context, _ time.Duration, _ int) ([]*domain.Notification, error) {
	stale := m.stalePending
	m.stalePending = nil
	return stale, nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, _ int, _ *time.Time) ([]*domain.Notification, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	return result, nil, nil
}

func (m *mockNotificationRepo) GetChannelStats(_ context.Context) ([]domain.ChannelStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	channels := map[string]*domain.ChannelStats{}
	for _, n := range m.notifications {
		ch := string(n.Channel)
		if _, ok := channels[ch]; !ok {
			channels[ch] = &domain.ChannelStats{Channel: ch}
		}
		switch n.Status {
		case domain.StatusQueued, domain.StatusProcessing, domain.StatusSent, domain.StatusDelivered:
			channels[ch].Queued++
		case domain.StatusFailed:
			channels[ch].Failed++
		}
	}
	result := make([]domain.ChannelStats, 0, len(channels))
	for _, s := range channels {
		result = append(result, *s)
	}
	return result, nil
}

func (m *mockNotificationRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	now := time.Now().UTC()
	n.DeletedAt = &now
	return nil
}

type mockEventRepo struct {
	mu        sync.Mutex
	events    []*domain.NotificationEvent
	createErr error
}

func (m *mockEventRepo) CreateEvent(_ context.Context, e *domain.NotificationEvent) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockEventRepo) ListByNotificationID(_ context.Context, id uuid.UUID) ([]domain.NotificationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.NotificationEvent
	for _, e := range m.events {
		if e.NotificationID == id {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (m *mockEventRepo) ListByCorrelationID(_ context.Context, correlationID string) ([]domain.NotificationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.NotificationEvent
	for _, e := range m.events {
		if e.CorrelationID == correlationID {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (m *mockEventRepo) types() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.EventType, 0, len(m.events))
	for _, e := range m.events {
		result = append(result, e.EventType)
	}
	return result
}

type mockIdempotencyStore struct {
	mu     sync.Mutex
	keys   map[string]string
	getErr error
	setErr error
}

func newMockIdempotencyStore() *mockIdempotencyStore {
	return &mockIdempotencyStore{keys: make(map[string]string)}
}

func (m *mockIdempotencyStore) Get(_ context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.keys[key]
	return val, ok, nil
}

func (m *mockIdempotencyStore) SetNX(_ context.Context, key, correlationID string) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keys[key]; exists {
		return false, nil
	}
	m.keys[key] = correlationID
	return true, nil
}

type mockStatusStore struct {
	mu        sync.Mutex
	snapshots map[string]port.StatusSnapshot
}

func newMockStatusStore() *mockStatusStore {
	return &mockStatusStore{snapshots: make(map[string]port.StatusSnapshot)}
}

func (m *mockStatusStore) SetStatus(_ context.Context, correlationID string, snapshot port.StatusSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[correlationID] = snapshot
	return nil
}

func (m *mockStatusStore) GetStatus(_ context.Context, correlationID string) (*port.StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[correlationID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

type mockBroker struct {
	mu         sync.Mutex
	published  []domain.EnrichedMessage
	publishErr error
}

func (m *mockBroker) Publish(_ context.Context, msg domain.EnrichedMessage) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, msg)
	return nil
}

func (m *mockBroker) Close() error { return nil }

type mockUserClient struct {
	prefs domain.UserPreferences
	err   error
	delay time.Duration
}

func (m *mockUserClient) FetchUserPreferences(ctx context.Context, _ string) (domain.UserPreferences, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.UserPreferences{}, ctx.Err()
		}
	}
	return m.prefs, m.err
}

type mockTemplateClient struct {
	tmpl  domain.Template
	err   error
	delay time.Duration
}

func (m *mockTemplateClient) FetchTemplate(ctx context.Context, _ string) (domain.Template, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return domain.Template{}, ctx.Err()
		}
	}
	return m.tmpl, m.err
}

type mockBroadcaster struct {
	mu         sync.Mutex
	broadcasts []broadcastEvent
}

type broadcastEvent struct {
	CorrelationID string
	Status        string
	Error         string
}

func (m *mockBroadcaster) Broadcast(correlationID, status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, broadcastEvent{
		CorrelationID: correlationID,
		Status:        status,
		Error:         errMsg,
	})
}
