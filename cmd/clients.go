package main

import (
	"net/http"
	"time"

	"github.com/foundationrisk/soilrisk/internal/lead"
	"github.com/foundationrisk/soilrisk/internal/lookup"
	"github.com/foundationrisk/soilrisk/internal/metrics"
	"github.com/foundationrisk/soilrisk/internal/resilience"
	"github.com/foundationrisk/soilrisk/internal/store"
	"github.com/foundationrisk/soilrisk/pkg/geocode"
	"github.com/foundationrisk/soilrisk/pkg/notion"
	"github.com/foundationrisk/soilrisk/pkg/overpass"
	"github.com/foundationrisk/soilrisk/pkg/sda"
)

func timeout(secs, def int) time.Duration {
	if secs <= 0 {
		secs = def
	}
	return time.Duration(secs) * time.Second
}

func upstreamRetry() resilience.RetryConfig {
	return resilience.FromConfig(cfg.Upstream.MaxAttempts, cfg.Upstream.InitialBackoffMS, cfg.Upstream.MaxBackoffMS)
}

func newGeocoder(b *resilience.Breakers) geocode.Client {
	return geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithCountry(cfg.Geocode.Country),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithHTTPClient(&http.Client{Timeout: timeout(cfg.Geocode.TimeoutSecs, 10)}),
		geocode.WithRetry(upstreamRetry()),
		geocode.WithBreaker(b.Get("nominatim")),
	)
}

func newSoilClient(b *resilience.Breakers) sda.Client {
	return sda.NewClient(
		sda.WithBaseURL(cfg.Soil.BaseURL),
		sda.WithMaxDepthCM(cfg.Soil.MaxDepthCM),
		sda.WithHTTPClient(&http.Client{Timeout: timeout(cfg.Soil.TimeoutSecs, 30)}),
		sda.WithRetry(upstreamRetry()),
		sda.WithBreaker(b.Get("sda")),
	)
}

// newNeighborhoods returns nil when discovery is disabled.
func newNeighborhoods(b *resilience.Breakers) overpass.Client {
	if cfg.Overpass.BaseURL == "" {
		return nil
	}
	return overpass.NewClient(
		overpass.WithBaseURL(cfg.Overpass.BaseURL),
		overpass.WithRadius(cfg.Overpass.RadiusM),
		overpass.WithLimit(cfg.Overpass.MaxResults),
		overpass.WithRateLimit(cfg.Overpass.RateLimit),
		overpass.WithUserAgent(cfg.Geocode.UserAgent),
		overpass.WithHTTPClient(&http.Client{Timeout: timeout(cfg.Overpass.TimeoutSecs, 20)}),
		overpass.WithRetry(upstreamRetry()),
		overpass.WithBreaker(b.Get("overpass")),
	)
}

// adapters holds one instance of each outbound client so their rate
// limiters and circuit breakers are shared by every service in the process.
type adapters struct {
	geocoder geocode.Client
	soil     sda.Client
	hoods    overpass.Client
	breakers *resilience.Breakers
}

func newAdapters() adapters {
	b := resilience.NewBreakers(resilience.CircuitFromConfig(cfg.Upstream.FailureThreshold, cfg.Upstream.ResetTimeoutSecs))
	return adapters{
		geocoder: newGeocoder(b),
		soil:     newSoilClient(b),
		hoods:    newNeighborhoods(b),
		breakers: b,
	}
}

func (a adapters) lookupService(st store.Store, m *metrics.Metrics) *lookup.Service {
	return lookup.NewService(a.geocoder, a.soil, st, m)
}

func (a adapters) ingestor(st store.Store, m *metrics.Metrics) *lookup.Ingestor {
	opts := []lookup.IngestOption{
		lookup.WithConcurrency(cfg.Ingest.Concurrency),
		lookup.WithDelay(time.Duration(cfg.Ingest.DelayMS) * time.Millisecond),
		lookup.WithIngestMetrics(m),
	}
	if a.hoods != nil {
		opts = append(opts, lookup.WithNeighborhoods(a.hoods))
	}
	return lookup.NewIngestor(a.geocoder, a.soil, st, opts...)
}

func newLeadService(st store.Store, m *metrics.Metrics) *lead.Service {
	opts := []lead.Option{lead.WithMetrics(m)}
	if cfg.Notion.Enabled() {
		mirror := notion.NewLeadMirror(notion.NewClient(cfg.Notion.Token, notion.WithRetry(upstreamRetry())), cfg.Notion.LeadDB)
		opts = append(opts, lead.WithMirror(mirror))
	}
	return lead.NewService(st, opts...)
}
