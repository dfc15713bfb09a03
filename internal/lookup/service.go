// Package lookup runs the geocode, soil and classify pipeline and assembles
// location pages and ingestion results from it.
package lookup

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/foundationrisk/soilrisk/internal/content"
	"github.com/foundationrisk/soilrisk/internal/geo"
	"github.com/foundationrisk/soilrisk/internal/metrics"
	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/internal/store"
	"github.com/foundationrisk/soilrisk/pkg/geocode"
	"github.com/foundationrisk/soilrisk/pkg/sda"
)

// Store is the persistence the pipeline reads and writes.
type Store interface {
	UpsertLocation(ctx context.Context, loc *model.Location) error
	GetLocationBySlug(ctx context.Context, slug string) (*model.Location, error)
	ListLocations(ctx context.Context, filter store.LocationFilter) ([]model.Location, error)
	UpsertSoilRecord(ctx context.Context, rec *model.SoilRecord) error
	GetSoilRecord(ctx context.Context, locationID string) (*model.SoilRecord, error)
}

// Assessment is the outcome of a single address lookup. Soil is nil when the
// soil survey has no data for the point; Risk is then RiskUnknown.
type Assessment struct {
	Found       bool              `json:"found"`
	Latitude    float64           `json:"latitude,omitempty"`
	Longitude   float64           `json:"longitude,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	Soil        *model.SoilRecord `json:"soil"`
	Risk        model.RiskLevel   `json:"risk,omitempty"`
}

// Page is everything a location page renders.
type Page struct {
	Location      model.Location       `json:"location"`
	Soil          *model.SoilRecord    `json:"soil"`
	Risk          model.RiskLevel      `json:"risk"`
	Narrative     string               `json:"narrative"`
	Neighborhoods []model.Neighborhood `json:"neighborhoods"`
	Related       []geo.Ranked         `json:"related"`
}

// Service answers lookups. The two remote calls of one lookup run in sequence.
type Service struct {
	geocoder geocode.Client
	soil     sda.Client
	store    Store
	metrics  *metrics.Metrics
}

// NewService wires a Service. st may be nil when only Assess and SoilAt are used.
func NewService(g geocode.Client, soil sda.Client, st Store, m *metrics.Metrics) *Service {
	return &Service{geocoder: g, soil: soil, store: st, metrics: m}
}

// Assess geocodes addr, looks up the soil at the point and classifies it.
// A geocode miss returns Assessment{Found: false}.
func (s *Service) Assess(ctx context.Context, addr geocode.AddressInput) (*Assessment, error) {
	res, err := s.geocode(ctx, addr)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &Assessment{Found: false}, nil
	}

	a := &Assessment{
		Found:       true,
		Latitude:    res.Latitude,
		Longitude:   res.Longitude,
		DisplayName: res.DisplayName,
	}

	rec, err := s.SoilAt(ctx, res.Latitude, res.Longitude)
	if err != nil {
		return nil, err
	}
	a.Soil = rec
	a.Risk = geo.RiskOf(rec)
	s.metrics.ObserveRisk(string(a.Risk))
	return a, nil
}

// SoilAt looks up and classifies the soil at a point. It returns nil when the
// survey has no data there.
func (s *Service) SoilAt(ctx context.Context, lat, lon float64) (*model.SoilRecord, error) {
	raw, err := s.soil.Lookup(ctx, lat, lon)
	if err != nil {
		s.metrics.ObserveSoil(metrics.OutcomeError)
		return nil, eris.Wrap(err, "lookup: soil")
	}
	if raw == nil {
		s.metrics.ObserveSoil(metrics.OutcomeNotFound)
		return nil, nil
	}
	s.metrics.ObserveSoil(metrics.OutcomeMatched)
	return SoilRecordFrom(raw, ""), nil
}

func (s *Service) geocode(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	res, err := s.geocoder.Geocode(ctx, addr)
	if err != nil {
		s.metrics.ObserveGeocode(metrics.OutcomeError)
		return nil, eris.Wrap(err, "lookup: geocode")
	}
	if res == nil || !res.Matched {
		s.metrics.ObserveGeocode(metrics.OutcomeNotFound)
		return nil, nil
	}
	s.metrics.ObserveGeocode(metrics.OutcomeMatched)
	return res, nil
}

// SoilRecordFrom converts a survey row into a SoilRecord owned by locationID.
// Missing numeric values become zero; the risk tier is derived from the
// plasticity index.
func SoilRecordFrom(raw *sda.Record, locationID string) *model.SoilRecord {
	if raw == nil {
		return nil
	}
	rec := &model.SoilRecord{
		LocationID:       locationID,
		MapUnitSymbol:    raw.MapUnitSymbol,
		MapUnitName:      raw.MapUnitName,
		ComponentName:    raw.ComponentName,
		ComponentPercent: sda.ValueOr(raw.ComponentPercent, 0),
		ShrinkSwell:      sda.ValueOr(raw.ShrinkSwell, 0),
		PlasticityIndex:  sda.ValueOr(raw.PlasticityIndex, 0),
		DrainageClass:    raw.DrainageClass,
	}
	rec.RiskLevel = geo.ClassifyPI(rec.PlasticityIndex)
	return rec
}

// LocationPage loads the page for slug. A trailing "-soil-analysis" is
// ignored. It returns nil when no location has that slug.
func (s *Service) LocationPage(ctx context.Context, slug string) (*Page, error) {
	if s.store == nil {
		return nil, eris.New("lookup: no store configured")
	}
	slug = model.TrimPageSuffix(slug)

	loc, err := s.store.GetLocationBySlug(ctx, slug)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: load location")
	}
	if loc == nil {
		return nil, nil
	}

	rec, err := s.store.GetSoilRecord(ctx, loc.ID)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: load soil")
	}

	p := &Page{
		Location:      *loc,
		Soil:          rec,
		Risk:          geo.RiskOf(rec),
		Neighborhoods: loc.Neighborhoods,
	}
	if len(p.Neighborhoods) == 0 {
		p.Neighborhoods = content.FallbackNeighborhoods(loc.City)
	}

	soilName := ""
	if rec != nil {
		soilName = rec.ComponentName
	}
	p.Narrative = content.Narrative(loc.City, soilName, string(p.Risk))

	p.Related, err = s.Related(ctx, *loc)
	if err != nil {
		// The page still renders without related cities.
		zap.L().Warn("lookup: related cities unavailable", zap.String("slug", slug), zap.Error(err))
	}
	return p, nil
}

// Related ranks the stored locations nearest to loc.
func (s *Service) Related(ctx context.Context, loc model.Location) ([]geo.Ranked, error) {
	if _, _, ok := loc.Coordinates(); !ok {
		return nil, nil
	}
	candidates, err := s.store.ListLocations(ctx, store.LocationFilter{WithCoordinates: true})
	if err != nil {
		return nil, eris.Wrap(err, "lookup: list locations")
	}
	return geo.Related(loc, candidates), nil
}
