package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
	"github.com/pulsenotify/orchestrator/pkg/circuitbreaker"
)

// envelope is the wire format shared by the user and template services.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message"`
}

// baseClient retries GETs with exponential backoff behind a per-service
// circuit breaker. 4xx responses are permanent: the request will never
// succeed, so retrying only burns the enrichment deadline.
type baseClient struct {
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *zap.Logger
}

func newBaseClient(serviceName string, logger *zap.Logger) *baseClient {
	return &baseClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: otelhttp.NewTransport(&http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			}),
		},
		breaker: circuitbreaker.New(serviceName, 5),
		logger:  logger,
	}
}

func (b *baseClient) getWithRetry(ctx context.Context, url string, out any) error {
	operation := func() error {
		_, err := b.breaker.Execute(func() (any, error) {
			return nil, b.get(ctx, url, out)
		})
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.Multiplier = 2
	policy.RandomizationFactor = 1 // full jitter
	policy.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func (b *baseClient) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return backoff.Permanent(fmt.Errorf("%w: status %d: %s", domain.ErrRemoteRejected, resp.StatusCode, env.Error))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: decode response from %s: %v", domain.ErrRemoteMalformed, url, err))
	}
	if !env.Success {
		return backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrRemoteRejected, env.Error))
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: decode payload from %s: %v", domain.ErrRemoteMalformed, url, err))
	}
	return nil
}
