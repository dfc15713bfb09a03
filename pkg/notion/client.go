// Package notion mirrors accepted intake leads into a Notion database.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/foundationrisk/soilrisk/internal/resilience"
)

// Client is the part of the Notion API the lead mirror uses.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the 3 req/s Notion allows per integration. Zero
// disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		c.limiter = newLimiter(rps)
	}
}

// WithRetry retries requests that fail on the network.
func WithRetry(rc resilience.RetryConfig) ClientOption {
	return func(c *notionClient) {
		if rc.OnRetry == nil {
			rc.OnRetry = resilience.RetryLogger("notion")
		}
		c.retry = rc
	}
}

type notionClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a Notion client for the integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: newLimiter(3),
		retry:   resilience.NoRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
}

// call throttles and retries one API request.
func call[T any](ctx context.Context, c *notionClient, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := resilience.Do(ctx, c.retry, func(ctx context.Context) (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, eris.Wrap(err, "rate limit")
		}
		return fn(ctx)
	})
	if err != nil {
		return v, eris.Wrapf(err, "notion: %s", op)
	}
	return v, nil
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return call(ctx, c, "query database "+dbID, func(ctx context.Context) (*notionapi.DatabaseQueryResponse, error) {
		return c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return call(ctx, c, "create page", func(ctx context.Context) (*notionapi.Page, error) {
		return c.api.Page.Create(ctx, req)
	})
}
