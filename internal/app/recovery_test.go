package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

func TestRecovery_RedrivesStalePending(t *testing.T) {
	f := newServiceFixture()
	recovery := NewRecovery(f.repo, f.events, f.service, zap.NewNop())

	n, err := domain.NewNotification("user-42", "welcome_email", "corr-stale", "idem-stale",
		domain.ChannelEmail, domain.PriorityNormal, nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(context.Background(), n))
	f.repo.stalePending = []*domain.Notification{n}

	recovery.redriveStalePending(context.Background())

	stored, err := f.repo.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, stored.Status)
	require.Len(t, f.broker.published, 1)
}

func TestRecovery_RetriesClaimedFailures(t *testing.T) {
	f := newServiceFixture()
	recovery := NewRecovery(f.repo, f.events, f.service, zap.NewNop())

	n, err := domain.NewNotification("user-42", "welcome_email", "corr-retry", "idem-retry",
		domain.ChannelPush, domain.PriorityHigh, nil, nil)
	require.NoError(t, err)
	n.Status = domain.StatusFailed
	n.RetryCount = 1
	require.NoError(t, f.repo.Create(context.Background(), n))
	f.repo.failedClaims = []*domain.Notification{n}

	recovery.retryFailed(context.Background())

	stored, err := f.repo.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, stored.Status)

	types := f.events.types()
	assert.Contains(t, types, domain.EventRetried)
	assert.Contains(t, types, domain.EventQueued)
}

func TestRecovery_NoWorkIsQuiet(t *testing.T) {
	f := newServiceFixture()
	recovery := NewRecovery(f.repo, f.events, f.service, zap.NewNop())

	recovery.redriveStalePending(context.Background())
	recovery.retryFailed(context.Background())

	assert.Empty(t, f.broker.published)
	assert.Empty(t, f.events.types())
}
