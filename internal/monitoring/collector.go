// Package monitoring snapshots location and soil coverage and alerts on gaps.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/internal/store"
)

// Snapshot holds a point-in-time view of coverage and intake.
type Snapshot struct {
	// Locations.
	LocationsTotal      int                     `json:"locations_total"`
	LocationsWithCoords int                     `json:"locations_with_coordinates"`
	LocationsMissingGeo int                     `json:"locations_missing_coordinates"`
	LocationsWithSoil   int                     `json:"locations_with_soil"`
	LocationsByRisk     map[model.RiskLevel]int `json:"locations_by_risk"`
	SoilCoverage        float64                 `json:"soil_coverage"`

	// Leads (within lookback window).
	Leads int `json:"leads"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the read side of the store the collector needs.
type Source interface {
	ListLocations(ctx context.Context, filter store.LocationFilter) ([]model.Location, error)
	CountSoilByRisk(ctx context.Context) (map[model.RiskLevel]int, error)
	CountLeadsSince(ctx context.Context, since time.Time) (int, error)
}

// Collector gathers snapshots from the store.
type Collector struct {
	src Source
	now func() time.Time
}

// NewCollector creates a new snapshot collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, now: func() time.Time { return time.Now().UTC() }}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now()
	snap := &Snapshot{
		LookbackHours:   lookbackHours,
		CollectedAt:     now,
		LocationsByRisk: map[model.RiskLevel]int{},
	}

	locs, err := c.src.ListLocations(ctx, store.LocationFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list locations")
	}
	snap.LocationsTotal = len(locs)
	for _, l := range locs {
		if _, _, ok := l.Coordinates(); ok {
			snap.LocationsWithCoords++
		}
	}
	snap.LocationsMissingGeo = snap.LocationsTotal - snap.LocationsWithCoords

	byRisk, err := c.src.CountSoilByRisk(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count soil")
	}
	for tier, n := range byRisk {
		snap.LocationsByRisk[tier] = n
		snap.LocationsWithSoil += n
	}
	if snap.LocationsWithCoords > 0 {
		snap.SoilCoverage = float64(snap.LocationsWithSoil) / float64(snap.LocationsWithCoords)
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	snap.Leads, err = c.src.CountLeadsSince(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count leads")
	}

	return snap, nil
}
