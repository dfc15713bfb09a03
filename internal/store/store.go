// Package store persists locations, soil records and leads.
package store

import (
	"context"
	"time"

	"github.com/foundationrisk/soilrisk/internal/model"
)

// LocationFilter specifies criteria for listing locations.
type LocationFilter struct {
	State           string `json:"state,omitempty"`
	WithCoordinates bool   `json:"with_coordinates,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	Offset          int    `json:"offset,omitempty"`
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Status       model.LeadStatus `json:"status,omitempty"`
	CreatedAfter time.Time        `json:"created_after,omitempty"`
	Limit        int              `json:"limit,omitempty"`
}

// Store defines the persistence interface. Reads of a missing record return
// nil with a nil error.
type Store interface {
	// Locations
	UpsertLocation(ctx context.Context, loc *model.Location) error
	UpsertLocations(ctx context.Context, locs []model.Location) (int64, error)
	GetLocationBySlug(ctx context.Context, slug string) (*model.Location, error)
	GetLocationByPostalCode(ctx context.Context, zip string) (*model.Location, error)
	ListLocations(ctx context.Context, filter LocationFilter) ([]model.Location, error)
	UpdateNeighborhoods(ctx context.Context, locationID string, hoods []model.Neighborhood) error

	// Soil
	UpsertSoilRecord(ctx context.Context, rec *model.SoilRecord) error
	GetSoilRecord(ctx context.Context, locationID string) (*model.SoilRecord, error)
	CountSoilByRisk(ctx context.Context) (map[model.RiskLevel]int, error)

	// Leads
	InsertLead(ctx context.Context, l *model.Lead) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	CountLeadsSince(ctx context.Context, since time.Time) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
