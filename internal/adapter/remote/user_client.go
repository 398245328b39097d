package remote

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

// UserClient fetches recipient preferences from the user service.
type UserClient struct {
	base    *baseClient
	address string
}

func NewUserClient(address string, logger *zap.Logger) *UserClient {
	return &UserClient{
		base:    newBaseClient("user-service", logger),
		address: address,
	}
}

func (c *UserClient) FetchUserPreferences(ctx context.Context, userID string) (domain.UserPreferences, error) {
	url := fmt.Sprintf("%s/users/preference/%s", c.address, userID)

	var prefs domain.UserPreferences
	if err := c.base.getWithRetry(ctx, url, &prefs); err != nil {
		return domain.UserPreferences{}, fmt.Errorf("fetch preferences for user %s: %w", userID, err)
	}
	return prefs, nil
}
