package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foundationrisk/soilrisk/internal/lead"
	"github.com/foundationrisk/soilrisk/internal/lookup"
	"github.com/foundationrisk/soilrisk/internal/metrics"
	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/internal/store"
	"github.com/foundationrisk/soilrisk/pkg/geocode"
)

// Assessor answers address, point and page lookups.
type Assessor interface {
	Assess(ctx context.Context, addr geocode.AddressInput) (*lookup.Assessment, error)
	SoilAt(ctx context.Context, lat, lon float64) (*model.SoilRecord, error)
	LocationPage(ctx context.Context, slug string) (*lookup.Page, error)
}

// Ingester refreshes stored locations.
type Ingester interface {
	IngestAll(ctx context.Context, targets []lookup.Target) ([]lookup.Result, error)
}

// LeadSubmitter records intake submissions.
type LeadSubmitter interface {
	Submit(ctx context.Context, p lead.Payload) lead.Response
}

// Catalog lists stored locations and reports store health.
type Catalog interface {
	ListLocations(ctx context.Context, filter store.LocationFilter) ([]model.Location, error)
	Ping(ctx context.Context) error
}

// UpstreamStates reports each outbound service's circuit state.
type UpstreamStates interface {
	States() map[string]string
}

// Deps are the services behind the routes. Ingest may be nil, and the admin
// route is not mounted without both Ingest and AdminSecret.
type Deps struct {
	Lookup  Assessor
	Ingest  Ingester
	Leads   LeadSubmitter
	Catalog Catalog

	Upstreams UpstreamStates
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	AllowedOrigins []string
	AdminSecret    string
}

type handler struct {
	Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"*"}
	}
	h := &handler{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(instrument(d.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/soil", h.soil)
		r.Get("/risk", h.risk)
		r.Get("/locations", h.listLocations)
		r.Get("/locations/{slug}", h.locationPage)
		r.Post("/leads", h.submitLead)
		r.Get("/quiz", h.quizQuestions)
		r.Post("/quiz", h.scoreQuiz)
		if d.Ingest != nil && d.AdminSecret != "" {
			r.Post("/admin/ingest", h.adminIngest)
		}
	})

	return r
}
