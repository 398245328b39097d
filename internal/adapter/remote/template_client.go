package remote

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
)

// TemplateClient fetches message templates from the template service.
type TemplateClient struct {
	base    *baseClient
	address string
}

func NewTemplateClient(address string, logger *zap.Logger) *TemplateClient {
	return &TemplateClient{
		base:    newBaseClient("template-service", logger),
		address: address,
	}
}

func (c *TemplateClient) FetchTemplate(ctx context.Context, templateCode string) (domain.Template, error) {
	url := fmt.Sprintf("%s/template/%s", c.address, templateCode)

	var tmpl domain.Template
	if err := c.base.getWithRetry(ctx, url, &tmpl); err != nil {
		return domain.Template{}, fmt.Errorf("fetch template %s: %w", templateCode, err)
	}
	return tmpl, nil
}
