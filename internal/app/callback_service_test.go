package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

type callbackFixture struct {
	service     *CallbackService
	repo        *mockNotificationRepo
	events      *mockEventRepo
	statusStore *mockStatusStore
	broadcaster *mockBroadcaster
}

func newCallbackFixture() *callbackFixture {
	f := &callbackFixture{
		repo:        newMockNotificationRepo(),
		events:      &mockEventRepo{},
		statusStore: newMockStatusStore(),
		broadcaster: &mockBroadcaster{},
	}
	f.service = NewCallbackService(f.repo, f.events, f.statusStore, f.broadcaster, zap.NewNop())
	return f
}

func (f *callbackFixture) seed(t *testing.T, status domain.Status) *domain.Notification {
	t.Helper()
	n, err := domain.NewNotification("user-42", "welcome_email", "corr-1", "idem-1",
		domain.ChannelEmail, domain.PriorityNormal, nil, nil)
	require.NoError(t, err)
	n.Status = status
	require.NoError(t, f.repo.Create(context.Background(), n))
	return n
}

func TestApplyStatusReport_QueuedToProcessing(t *testing.T) {
	f := newCallbackFixture()
	n := f.seed(t, domain.StatusQueued)

	updated, err := f.service.ApplyStatusReport(context.Background(), n.ID, StatusReport{
		Status: domain.StatusProcessing,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, updated.Status)

	snapshot, _ := f.statusStore.GetStatus(context.Background(), "corr-1")
	require.NotNil(t, snapshot)
	assert.Equal(t, "processing", snapshot.Status)
}

func TestApplyStatusReport_SentWithProvider(t *testing.T) {
	f := newCallbackFixture()
	n := f.seed(t, domain.StatusProcessing)

	_, err := f.service.ApplyStatusReport(context.Background(), n.ID, StatusReport{
		Status:            domain.StatusSent,
		Provider:          "sendgrid",
		ProviderMessageID: "sg-123",
	})
	require.NoError(t, err)

	stored, err := f.repo.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)
	require.NotNil(t, stored.Provider)
	assert.Equal(t, "sendgrid", *stored.Provider)
	require.NotNil(t, stored.ProviderMessageID)
	assert.Equal(t, "sg-123", *stored.ProviderMessageID)

	assert.Equal(t, []domain.EventType{domain.EventSent}, f.events.types())
}

func TestApplyStatusReport_FailedRecordsErrorCode(t *testing.T) {
	f := newCallbackFixture()
	n := f.seed(t, domain.StatusProcessing)

	_, err := f.service.ApplyStatusReport(context.Background(), n.ID, StatusReport{
		Status:       domain.StatusFailed,
		ErrorCode:    domain.ErrCodeQueue,
		ErrorMessage: "smtp connect refused",
	})
	require.NoError(t, err)

	stored, err := f.repo.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorCode)
	assert.Equal(t, "QUEUE_ERROR", *stored.ErrorCode)
	assert.Equal(t, 1, stored.RetryCount)

	snapshot, _ := f.statusStore.GetStatus(context.Background(), "corr-1")
	require.NotNil(t, snapshot)
	assert.Equal(t, "QUEUE_ERROR", snapshot.Error)
}

func TestApplyStatusReport_RejectsIllegalTransition(t *testing.T) {
	f := newCallbackFixture()
	n := f.seed(t, domain.StatusDelivered)

	_, err := f.service.ApplyStatusReport(context.Background(), n.ID, StatusReport{
		Status: domain.StatusProcessing,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
}

func TestApplyStatusReport_DuplicateReportIsNoop(t *testing.T) {
	f := newCallbackFixture()
	n := f.seed(t, domain.StatusSent)

	updated, err := f.service.ApplyStatusReport(context.Background(), n.ID, StatusReport{
		Status: domain.StatusSent,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, updated.Status)
	assert.Empty(t, f.events.types())
}

func TestApplyStatusReport_UnknownNotification(t *testing.T) {
	f := newCallbackFixture()

	_, err := f.service.ApplyStatusReport(context.Background(), uuid.Must(uuid.NewV7()), StatusReport{
		Status: domain.StatusSent,
	})
	assert.ErrorIs(t, err, domain.ErrNotificationNotFound)
}
