// Package geocode resolves postal codes and free-text addresses to coordinates
// via the Nominatim search API.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/foundationrisk/soilrisk/internal/resilience"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org/search"
	defaultUserAgent = "FoundationRiskApp/1.0"
	defaultCountry   = "us"
)

// Client geocodes a single address or postal code.
type Client interface {
	// Geocode returns the best-guess coordinate for addr. A lookup that finds
	// nothing, or whose remote call fails, returns Result{Matched: false} and a
	// nil error. Only context cancellation is returned as an error.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// AddressInput represents an address to geocode. When only ZipCode is set the
// lookup is a structured postal-code search; otherwise the non-empty parts are
// joined into a one-line query.
type AddressInput struct {
	Street  string
	City    string
	State   string
	ZipCode string
}

// PostalCode builds an AddressInput for a postal-code-only lookup.
func PostalCode(zip string) AddressInput {
	return AddressInput{ZipCode: zip}
}

// FreeText builds an AddressInput for a free-text address lookup.
func FreeText(q string) AddressInput {
	return AddressInput{Street: q}
}

// IsPostalCodeOnly reports whether only the postal code is set.
func (a AddressInput) IsPostalCodeOnly() bool {
	return strings.TrimSpace(a.ZipCode) != "" &&
		strings.TrimSpace(a.Street) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.State) == ""
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	Source      string // "nominatim"
	Matched     bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL overrides the Nominatim search endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// WithUserAgent sets the User-Agent header. Nominatim rejects anonymous clients.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithCountry restricts postal-code searches to a country code.
func WithCountry(cc string) Option {
	return func(g *geocoder) {
		if cc != "" {
			g.country = cc
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit. Zero or negative disables limiting.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

// WithRetry retries transient failures. Each attempt waits on the rate limiter.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(g *geocoder) {
		if rc.OnRetry == nil {
			rc.OnRetry = resilience.RetryLogger(sourceNominatim)
		}
		g.retry = rc
	}
}

// WithBreaker fails lookups fast while Nominatim is down or throttling.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(g *geocoder) {
		g.breaker = cb
	}
}

type geocoder struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	country    string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		country:    defaultCountry,
		limiter:    rate.NewLimiter(1, 1), // Nominatim usage policy: 1 req/s
		retry:      resilience.NoRetry,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// formatOneLine formats an address as a single line for free-text search.
func formatOneLine(addr AddressInput) string {
	parts := []string{addr.Street, addr.City, addr.State, addr.ZipCode}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
