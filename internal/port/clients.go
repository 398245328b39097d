package port

import (
	"context"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

type UserClient interface {
	FetchUserPreferences(ctx context.Context, userID string) (domain.UserPreferences, error)
}

type TemplateClient interface {
	FetchTemplate(ctx context.Context, templateCode string) (domain.Template, error)
}
