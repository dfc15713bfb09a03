package lookup

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/foundationrisk/soilrisk/internal/content"
	"github.com/foundationrisk/soilrisk/internal/metrics"
	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/internal/store"
	"github.com/foundationrisk/soilrisk/pkg/geocode"
	"github.com/foundationrisk/soilrisk/pkg/overpass"
	"github.com/foundationrisk/soilrisk/pkg/sda"
)

// Ingestion result statuses.
const (
	StatusSuccess        = "Success"
	StatusFailedGeocode  = "Failed: Geocode"
	StatusFailedDBLoc    = "Failed: DB Loc"
	StatusFailedNoSoil   = "Failed: No Soil Data"
	StatusFailedDBSoil   = "Failed: DB Soil"
	discoveredHoodNote   = "Mapped neighborhood."
	defaultIngestWorkers = 2
)

// Target is one location to ingest.
type Target struct {
	Zip   string `json:"zip" yaml:"zip"`
	City  string `json:"city" yaml:"city"`
	State string `json:"state" yaml:"state"`
}

// Result reports how one target's ingestion ended.
type Result struct {
	Zip        string          `json:"zip"`
	City       string          `json:"city"`
	Status     string          `json:"status"`
	LocationID string          `json:"location_id,omitempty"`
	Slug       string          `json:"slug,omitempty"`
	Risk       model.RiskLevel `json:"risk,omitempty"`
}

// OK reports whether the target was fully ingested.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// IngestStore is the persistence used by ingestion.
type IngestStore interface {
	UpsertLocation(ctx context.Context, loc *model.Location) error
	GetLocationBySlug(ctx context.Context, slug string) (*model.Location, error)
	UpsertSoilRecord(ctx context.Context, rec *model.SoilRecord) error
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithNeighborhoods discovers neighborhood names with c. Without it every
// location gets the fallback neighborhoods.
func WithNeighborhoods(c overpass.Client) IngestOption {
	return func(in *Ingestor) { in.hoods = c }
}

// WithConcurrency sets how many targets IngestAll processes at once.
func WithConcurrency(n int) IngestOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.concurrency = n
		}
	}
}

// WithDelay pauses each worker between targets.
func WithDelay(d time.Duration) IngestOption {
	return func(in *Ingestor) { in.delay = d }
}

// WithIngestMetrics records ingestion outcomes.
func WithIngestMetrics(m *metrics.Metrics) IngestOption {
	return func(in *Ingestor) { in.metrics = m }
}

// Ingestor creates or refreshes stored locations and their soil records.
type Ingestor struct {
	geocoder    geocode.Client
	soil        sda.Client
	hoods       overpass.Client
	store       IngestStore
	metrics     *metrics.Metrics
	concurrency int
	delay       time.Duration
}

// NewIngestor wires an Ingestor.
func NewIngestor(g geocode.Client, soil sda.Client, st IngestStore, opts ...IngestOption) *Ingestor {
	in := &Ingestor{
		geocoder:    g,
		soil:        soil,
		store:       st,
		concurrency: defaultIngestWorkers,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest geocodes the target's postal code, stores the location with its
// neighborhoods, then looks up and stores its soil record. The location is
// kept even when the soil survey has no data for it.
func (in *Ingestor) Ingest(ctx context.Context, t Target) Result {
	t = t.normalized()
	r := in.ingest(ctx, t)
	in.metrics.ObserveIngest(r.Status)

	log := zap.L().With(zap.String("zip", t.Zip), zap.String("city", t.City))
	if r.OK() {
		log.Info("ingest: location stored", zap.String("slug", r.Slug), zap.String("risk", string(r.Risk)))
	} else {
		log.Warn("ingest: location failed", zap.String("status", r.Status))
	}
	return r
}

func (in *Ingestor) ingest(ctx context.Context, t Target) Result {
	r := Result{Zip: t.Zip, City: t.City}

	pt, err := in.geocoder.Geocode(ctx, geocode.PostalCode(t.Zip))
	if err != nil || pt == nil || !pt.Matched {
		r.Status = StatusFailedGeocode
		return r
	}

	loc := &model.Location{
		City:       t.City,
		State:      t.State,
		PostalCode: t.Zip,
		Slug:       model.PageSlug(t.City, t.State, t.Zip),
	}
	loc.SetCoordinates(pt.Latitude, pt.Longitude)
	in.warnSlugCollision(ctx, loc)

	raw, err := in.soil.Lookup(ctx, pt.Latitude, pt.Longitude)
	if err != nil {
		raw = nil
	}
	rec := SoilRecordFrom(raw, "")
	tier := model.RiskUnknown
	if rec != nil {
		tier = rec.RiskLevel
	}

	loc.Neighborhoods = in.neighborhoods(ctx, t.City, pt.Latitude, pt.Longitude, tier)

	if err := in.store.UpsertLocation(ctx, loc); err != nil {
		r.Status = StatusFailedDBLoc + " - " + rootMessage(err)
		return r
	}
	r.LocationID, r.Slug = loc.ID, loc.Slug

	if rec == nil {
		r.Status = StatusFailedNoSoil
		return r
	}

	rec.LocationID = loc.ID
	if err := in.store.UpsertSoilRecord(ctx, rec); err != nil {
		r.Status = StatusFailedDBSoil + " - " + rootMessage(err)
		return r
	}

	r.Status = StatusSuccess
	r.Risk = rec.RiskLevel
	return r
}

// neighborhoods names the areas around a point. Discovered neighborhoods
// carry the location's own risk tier; with none discovered the canned
// fallback set is used.
func (in *Ingestor) neighborhoods(ctx context.Context, city string, lat, lon float64, tier model.RiskLevel) []model.Neighborhood {
	if in.hoods == nil {
		return content.FallbackNeighborhoods(city)
	}
	places, err := in.hoods.Neighborhoods(ctx, lat, lon)
	if err != nil || len(places) == 0 {
		return content.FallbackNeighborhoods(city)
	}
	out := make([]model.Neighborhood, 0, len(places))
	for _, p := range places {
		out = append(out, model.Neighborhood{Name: p.Name, Risk: string(tier), Note: discoveredHoodNote})
	}
	return out
}

func (in *Ingestor) warnSlugCollision(ctx context.Context, loc *model.Location) {
	existing, err := in.store.GetLocationBySlug(ctx, loc.Slug)
	if err != nil || existing == nil {
		return
	}
	if existing.PostalCode != loc.PostalCode {
		zap.L().Warn("ingest: slug already used by another postal code",
			zap.String("slug", loc.Slug),
			zap.String("existing_zip", existing.PostalCode),
			zap.String("zip", loc.PostalCode),
		)
	}
}

// IngestAll ingests targets with bounded concurrency. Results are returned in
// target order. It returns an error only when ctx ends before all targets
// are processed.
func (in *Ingestor) IngestAll(ctx context.Context, targets []Target) ([]Result, error) {
	results := make([]Result, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)

	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = in.Ingest(gctx, t)
			if in.delay > 0 {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-time.After(in.delay):
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "ingest: interrupted")
	}
	return results, nil
}

// LocationLister lists stored locations.
type LocationLister interface {
	ListLocations(ctx context.Context, filter store.LocationFilter) ([]model.Location, error)
}

// BackfillTargets returns a target for every stored location that still has
// no coordinates, so a later run can geocode it and fetch its soil.
func BackfillTargets(ctx context.Context, st LocationLister) ([]Target, error) {
	locs, err := st.ListLocations(ctx, store.LocationFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: list locations")
	}
	var targets []Target
	for _, l := range locs {
		if _, _, ok := l.Coordinates(); ok {
			continue
		}
		targets = append(targets, Target{Zip: l.PostalCode, City: l.City, State: l.State}.normalized())
	}
	return targets, nil
}

// Registrar bulk-writes catalog entries.
type Registrar interface {
	LocationLister
	UpsertLocations(ctx context.Context, locs []model.Location) (int64, error)
}

// RegisterTargets adds targets to the catalog in one bulk write without
// geocoding them. Postal codes already stored are left untouched and counted
// as skipped. New rows carry no coordinates, so BackfillTargets picks them up.
func RegisterTargets(ctx context.Context, st Registrar, targets []Target) (added int64, skipped int, err error) {
	stored, err := st.ListLocations(ctx, store.LocationFilter{})
	if err != nil {
		return 0, 0, eris.Wrap(err, "ingest: list locations")
	}
	known := make(map[string]bool, len(stored))
	for _, l := range stored {
		known[l.PostalCode] = true
	}

	// A zip repeated in the list keeps its last entry.
	pos := make(map[string]int, len(targets))
	var locs []model.Location
	for _, t := range targets {
		t = t.normalized()
		if t.Zip == "" {
			continue
		}
		if known[t.Zip] {
			skipped++
			continue
		}
		loc := model.Location{
			City:       t.City,
			State:      t.State,
			PostalCode: t.Zip,
			Slug:       model.PageSlug(t.City, t.State, t.Zip),
		}
		if i, ok := pos[t.Zip]; ok {
			locs[i] = loc
			continue
		}
		pos[t.Zip] = len(locs)
		locs = append(locs, loc)
	}
	if len(locs) == 0 {
		return 0, skipped, nil
	}

	added, err = st.UpsertLocations(ctx, locs)
	if err != nil {
		return 0, skipped, eris.Wrap(err, "ingest: register locations")
	}
	zap.L().Info("ingest: registered locations",
		zap.Int64("added", added),
		zap.Int("skipped", skipped),
	)
	return added, skipped, nil
}

// LoadTargets reads a YAML list of {zip, city, state} targets.
func LoadTargets(path string) ([]Target, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read targets %s", path)
	}
	return ParseTargets(b)
}

// ParseTargets decodes a YAML target list, dropping entries without a zip.
func ParseTargets(b []byte) ([]Target, error) {
	var raw []Target
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, eris.Wrap(err, "ingest: parse targets")
	}
	targets := make([]Target, 0, len(raw))
	for _, t := range raw {
		t = t.normalized()
		if t.Zip == "" {
			continue
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (t Target) normalized() Target {
	return Target{
		Zip:   strings.TrimSpace(t.Zip),
		City:  strings.TrimSpace(t.City),
		State: strings.ToUpper(strings.TrimSpace(t.State)),
	}
}

// rootMessage returns the innermost error message, without wrap context.
func rootMessage(err error) string {
	if cause := eris.Cause(err); cause != nil {
		return cause.Error()
	}
	return err.Error()
}
