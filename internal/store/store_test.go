package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundationrisk/soilrisk/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testLocation(city, state, zip string, lat, lon float64) *model.Location {
	loc := &model.Location{City: city, State: state, PostalCode: zip}
	loc.SetCoordinates(lat, lon)
	return loc
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("UpsertAndGetLocation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		loc := testLocation("Plano", "TX", "75024", 33.07, -96.80)
		loc.Neighborhoods = []model.Neighborhood{{Name: "Willow Bend", Risk: "High", Note: "n"}}
		require.NoError(t, s.UpsertLocation(ctx, loc))
		assert.NotEmpty(t, loc.ID)
		assert.Equal(t, "plano-tx-75024", loc.Slug)

		got, err := s.GetLocationBySlug(ctx, "plano-tx-75024")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, loc.ID, got.ID)
		assert.Equal(t, "Plano", got.City)
		lat, lon, ok := got.Coordinates()
		require.True(t, ok)
		assert.InDelta(t, 33.07, lat, 1e-9)
		assert.InDelta(t, -96.80, lon, 1e-9)
		assert.Equal(t, loc.Neighborhoods, got.Neighborhoods)

		byZip, err := s.GetLocationByPostalCode(ctx, "75024")
		require.NoError(t, err)
		require.NotNil(t, byZip)
		assert.Equal(t, loc.ID, byZip.ID)
	})

	t.Run("UpsertIsKeyedOnPostalCode", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := testLocation("Plano", "TX", "75024", 33.0, -96.0)
		require.NoError(t, s.UpsertLocation(ctx, first))

		second := testLocation("Plano West", "TX", "75024", 33.5, -96.5)
		require.NoError(t, s.UpsertLocation(ctx, second))
		assert.Equal(t, first.ID, second.ID, "existing row keeps its id")

		all, err := s.ListLocations(ctx, LocationFilter{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Plano West", all[0].City)
		lat, _, _ := all[0].Coordinates()
		assert.InDelta(t, 33.5, lat, 1e-9)
	})

	t.Run("MissingReturnsNil", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		loc, err := s.GetLocationBySlug(ctx, "nowhere")
		assert.NoError(t, err)
		assert.Nil(t, loc)

		loc, err = s.GetLocationByPostalCode(ctx, "00000")
		assert.NoError(t, err)
		assert.Nil(t, loc)

		rec, err := s.GetSoilRecord(ctx, "missing-id")
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("ListLocationsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.UpsertLocation(ctx, testLocation("Plano", "TX", "75024", 33.0, -96.7)))
		require.NoError(t, s.UpsertLocation(ctx, testLocation("Allen", "TX", "75002", 33.1, -96.6)))
		require.NoError(t, s.UpsertLocation(ctx, testLocation("Tulsa", "OK", "74103", 36.1, -95.9)))
		noCoords := &model.Location{City: "Nowhere", State: "TX", PostalCode: "79999"}
		require.NoError(t, s.UpsertLocation(ctx, noCoords))

		all, err := s.ListLocations(ctx, LocationFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)
		assert.Equal(t, "Tulsa", all[0].City, "ordered by state then city")

		tx, err := s.ListLocations(ctx, LocationFilter{State: "tx"})
		require.NoError(t, err)
		assert.Len(t, tx, 3)

		coords, err := s.ListLocations(ctx, LocationFilter{WithCoordinates: true})
		require.NoError(t, err)
		assert.Len(t, coords, 3)
		for _, l := range coords {
			_, _, ok := l.Coordinates()
			assert.True(t, ok)
		}

		page, err := s.ListLocations(ctx, LocationFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "Allen", page[0].City)
	})

	t.Run("UpsertLocationsBulk", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.UpsertLocations(ctx, []model.Location{
			*testLocation("Plano", "TX", "75024", 33.0, -96.7),
			*testLocation("Allen", "TX", "75002", 33.1, -96.6),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		all, err := s.ListLocations(ctx, LocationFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("UpdateNeighborhoods", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		loc := testLocation("Frisco", "TX", "75034", 33.15, -96.82)
		require.NoError(t, s.UpsertLocation(ctx, loc))

		hoods := []model.Neighborhood{
			{Name: "Starwood", Risk: "Severe", Note: "a"},
			{Name: "Stonebriar", Risk: "High", Note: "b"},
		}
		require.NoError(t, s.UpdateNeighborhoods(ctx, loc.ID, hoods))

		got, err := s.GetLocationBySlug(ctx, loc.Slug)
		require.NoError(t, err)
		assert.Equal(t, hoods, got.Neighborhoods)

		assert.Error(t, s.UpdateNeighborhoods(ctx, "missing", hoods))
	})

	t.Run("SoilRecordRiskIsRecomputed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		loc := testLocation("Plano", "TX", "75024", 33.0, -96.7)
		require.NoError(t, s.UpsertLocation(ctx, loc))

		rec := &model.SoilRecord{
			LocationID:      loc.ID,
			MapUnitSymbol:   "HoB",
			ComponentName:   "Houston Black",
			PlasticityIndex: 42,
			RiskLevel:       model.RiskModerate,
		}
		require.NoError(t, s.UpsertSoilRecord(ctx, rec))
		assert.Equal(t, model.RiskSevere, rec.RiskLevel)

		rec2 := &model.SoilRecord{LocationID: loc.ID, ComponentName: "Austin", PlasticityIndex: 28}
		require.NoError(t, s.UpsertSoilRecord(ctx, rec2))

		got, err := s.GetSoilRecord(ctx, loc.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Austin", got.ComponentName)
		assert.Equal(t, model.RiskHigh, got.RiskLevel)
		assert.InDelta(t, 28.0, got.PlasticityIndex, 1e-9)

		counts, err := s.CountSoilByRisk(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[model.RiskLevel]int{model.RiskHigh: 1}, counts)
	})

	t.Run("SoilRecordRequiresLocationID", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.UpsertSoilRecord(context.Background(), &model.SoilRecord{}))
	})

	t.Run("LeadsInsertAndList", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		old := &model.Lead{
			Email: "a@example.com", Phone: "1", Address: "A",
			Source: model.LeadSourceWebIntake, CreatedAt: time.Now().UTC().Add(-72 * time.Hour),
		}
		recent := &model.Lead{
			Email: "b@example.com", Phone: "2", Address: "B", Symptoms: []string{"cracks_wall"},
			Source: model.LeadSourceWebIntake, CreatedAt: time.Now().UTC().Add(-1 * time.Hour),
		}
		require.NoError(t, s.InsertLead(ctx, old))
		require.NoError(t, s.InsertLead(ctx, recent))
		assert.NotEmpty(t, old.ID)
		assert.Equal(t, model.LeadStatusNew, old.Status)

		leads, err := s.ListLeads(ctx, LeadFilter{})
		require.NoError(t, err)
		require.Len(t, leads, 2)
		assert.Equal(t, "b@example.com", leads[0].Email, "newest first")
		assert.Equal(t, []string{"cracks_wall"}, leads[0].Symptoms)

		since := time.Now().UTC().Add(-24 * time.Hour)
		leads, err = s.ListLeads(ctx, LeadFilter{CreatedAfter: since, Status: model.LeadStatusNew})
		require.NoError(t, err)
		require.Len(t, leads, 1)

		n, err := s.CountLeadsSince(ctx, since)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("LeadsAreNeverDeduplicated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for range 2 {
			require.NoError(t, s.InsertLead(ctx, &model.Lead{Email: "same@example.com", Phone: "1", Address: "A"}))
		}
		leads, err := s.ListLeads(ctx, LeadFilter{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, leads, 2)
	})
}

func TestSQLiteStoreSuite(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
