// Package overpass discovers named neighbourhoods around a point using the
// OpenStreetMap Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/foundationrisk/soilrisk/internal/resilience"
)

const (
	defaultBaseURL   = "https://overpass-api.de/api/interpreter"
	defaultRadiusM   = 6000
	defaultLimit     = 8
	defaultUserAgent = "FoundationRiskApp/1.0"
)

// Place is a named place node or way returned by Overpass.
type Place struct {
	Name string
	Kind string // value of the place tag
	Lat  float64
	Lon  float64
}

// Client finds neighbourhood names near a coordinate.
type Client interface {
	// Neighborhoods returns up to the configured limit of named places around
	// (lat, lon), in the order Overpass returned them. Remote failures yield
	// an empty list; only context cancellation is returned as an error.
	Neighborhoods(ctx context.Context, lat, lon float64) ([]Place, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the interpreter endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRadius sets the search radius in meters.
func WithRadius(m int) Option {
	return func(c *client) {
		if m > 0 {
			c.radiusM = m
		}
	}
}

// WithLimit sets the maximum number of places returned.
func WithLimit(n int) Option {
	return func(c *client) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit sets requests per second. Zero or less disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithRetry retries transient failures. Overpass throttles with 429 under load.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(c *client) {
		if rc.OnRetry == nil {
			rc.OnRetry = resilience.RetryLogger("overpass")
		}
		c.retry = rc
	}
}

// WithBreaker skips discovery while Overpass is down.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *client) {
		c.breaker = cb
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	radiusM    int
	limit      int
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// NewClient creates an Overpass client. Requests are throttled to one every
// two seconds by default.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		radiusM:    defaultRadiusM,
		limit:      defaultLimit,
		limiter:    rate.NewLimiter(0.5, 1),
		retry:      resilience.NoRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildQuery returns the Overpass QL for named places within radiusM of a point.
func BuildQuery(lat, lon float64, radiusM int) string {
	return fmt.Sprintf(
		`[out:json][timeout:10];(node["place"~"neighbourhood|suburb|quarter"](around:%d,%f,%f);way["place"~"neighbourhood|suburb|quarter"](around:%d,%f,%f););out tags center;`,
		radiusM, lat, lon, radiusM, lat, lon,
	)
}

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type   string            `json:"type"`
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Center *center           `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Neighborhoods implements Client.
func (c *client) Neighborhoods(ctx context.Context, lat, lon float64) ([]Place, error) {
	places, err := resilience.Do(ctx, c.retry, func(ctx context.Context) ([]Place, error) {
		return resilience.Execute(ctx, c.breaker, func(ctx context.Context) ([]Place, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "overpass: rate limit")
			}
			return c.fetch(ctx, lat, lon)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "overpass: fetch")
		}
		zap.L().Warn("overpass: neighborhood lookup failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return nil, nil
	}
	return places, nil
}

func (c *client) fetch(ctx context.Context, lat, lon float64) ([]Place, error) {
	form := url.Values{"data": {BuildQuery(lat, lon, c.radiusM)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.NewStatusError("overpass", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read body")
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, eris.Wrap(err, "overpass: parse response")
	}

	seen := make(map[string]bool, len(r.Elements))
	places := make([]Place, 0, c.limit)
	for _, el := range r.Elements {
		name := strings.TrimSpace(el.Tags["name"])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		p := Place{Name: name, Kind: el.Tags["place"], Lat: el.Lat, Lon: el.Lon}
		if el.Center != nil {
			p.Lat, p.Lon = el.Center.Lat, el.Center.Lon
		}
		places = append(places, p)
		if len(places) == c.limit {
			break
		}
	}
	return places, nil
}
