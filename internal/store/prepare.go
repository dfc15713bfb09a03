package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/foundationrisk/soilrisk/internal/geo"
	"github.com/foundationrisk/soilrisk/internal/model"
)

// prepareLocation fills the ID and timestamps of a location about to be
// upserted and encodes its neighborhoods.
func prepareLocation(loc *model.Location, now time.Time) ([]byte, error) {
	if loc.PostalCode == "" {
		return nil, eris.New("store: location postal code is required")
	}
	if loc.Slug == "" {
		loc.Slug = model.PageSlug(loc.City, loc.State, loc.PostalCode)
	}
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		loc.ClearCoordinates()
	}
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = now
	}
	loc.UpdatedAt = now
	return marshalNeighborhoods(loc.Neighborhoods)
}

// prepareSoil recomputes the derived risk tier and stamps the record.
func prepareSoil(rec *model.SoilRecord, now time.Time) error {
	if rec.LocationID == "" {
		return eris.New("store: soil record location id is required")
	}
	rec.RiskLevel = geo.ClassifyPI(rec.PlasticityIndex)
	rec.UpdatedAt = now
	return nil
}

func prepareLead(l *model.Lead, now time.Time) ([]byte, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = model.LeadStatusNew
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	tags := l.Symptoms
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal symptoms")
	}
	return b, nil
}

func marshalNeighborhoods(hoods []model.Neighborhood) ([]byte, error) {
	if hoods == nil {
		hoods = []model.Neighborhood{}
	}
	b, err := json.Marshal(hoods)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal neighborhoods")
	}
	return b, nil
}

func unmarshalNeighborhoods(b []byte) ([]model.Neighborhood, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var hoods []model.Neighborhood
	if err := json.Unmarshal(b, &hoods); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal neighborhoods")
	}
	return hoods, nil
}

func unmarshalSymptoms(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal(b, &tags); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal symptoms")
	}
	return tags, nil
}
