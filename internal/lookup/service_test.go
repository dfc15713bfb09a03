package lookup

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundationrisk/soilrisk/internal/metrics"
	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/pkg/geocode"
	"github.com/foundationrisk/soilrisk/pkg/sda"
)

func houstonBlack(piValue float64) *sda.Record {
	return &sda.Record{
		MapUnitSymbol:   "HoB",
		MapUnitName:     "Houston Black clay",
		ComponentName:   "Houston Black",
		PlasticityIndex: pi(piValue),
		ShrinkSwell:     pi(7.5),
	}
}

func TestAssess_NotFoundSkipsSoil(t *testing.T) {
	g := &fakeGeocoder{}
	soil := &fakeSoil{rec: houstonBlack(40)}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(g, soil, nil, m)

	a, err := svc.Assess(context.Background(), geocode.FreeText("nowhere"))
	require.NoError(t, err)
	assert.False(t, a.Found)
	assert.Nil(t, a.Soil)
	assert.Zero(t, soil.calls)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.GeocodeRequests.WithLabelValues(metrics.OutcomeNotFound)), 1e-9)
}

func TestAssess_ClassifiesSoil(t *testing.T) {
	g := &fakeGeocoder{points: map[string]geocode.Result{"1 Main St": {Latitude: 33, Longitude: -96.7, DisplayName: "1 Main St, Plano"}}}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(g, &fakeSoil{rec: houstonBlack(40)}, nil, m)

	a, err := svc.Assess(context.Background(), geocode.FreeText("1 Main St"))
	require.NoError(t, err)
	require.True(t, a.Found)
	require.NotNil(t, a.Soil)
	assert.Equal(t, model.RiskSevere, a.Risk)
	assert.Equal(t, model.RiskSevere, a.Soil.RiskLevel)
	assert.Equal(t, "Houston Black", a.Soil.ComponentName)
	assert.InDelta(t, 33.0, a.Latitude, 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.SoilLookups.WithLabelValues(metrics.OutcomeMatched)), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RiskAssessments.WithLabelValues("Severe")), 1e-9)
}

func TestAssess_NoSoilIsUnknownNotModerate(t *testing.T) {
	g := &fakeGeocoder{points: map[string]geocode.Result{"75024": {Latitude: 33, Longitude: -96.7}}}
	svc := NewService(g, &fakeSoil{}, nil, nil)

	a, err := svc.Assess(context.Background(), geocode.PostalCode("75024"))
	require.NoError(t, err)
	require.True(t, a.Found)
	assert.Nil(t, a.Soil)
	assert.Equal(t, model.RiskUnknown, a.Risk)
}

func TestAssess_PropagatesCancellation(t *testing.T) {
	g := &fakeGeocoder{err: context.Canceled}
	svc := NewService(g, &fakeSoil{}, nil, nil)

	_, err := svc.Assess(context.Background(), geocode.PostalCode("75024"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	g = &fakeGeocoder{points: map[string]geocode.Result{"75024": {Latitude: 33, Longitude: -96.7}}}
	svc = NewService(g, &fakeSoil{err: context.DeadlineExceeded}, nil, nil)
	_, err = svc.Assess(context.Background(), geocode.PostalCode("75024"))
	assert.Error(t, err)
}

func TestSoilRecordFrom(t *testing.T) {
	assert.Nil(t, SoilRecordFrom(nil, "x"))

	rec := SoilRecordFrom(&sda.Record{ComponentName: "Ferris"}, "loc-1")
	require.NotNil(t, rec)
	assert.Equal(t, "loc-1", rec.LocationID)
	assert.Zero(t, rec.PlasticityIndex)
	assert.Equal(t, model.RiskModerate, rec.RiskLevel)

	rec = SoilRecordFrom(houstonBlack(25.1), "")
	assert.Equal(t, model.RiskHigh, rec.RiskLevel)
	assert.InDelta(t, 7.5, rec.ShrinkSwell, 1e-9)
}

func TestLocationPage(t *testing.T) {
	st := newMemStore()
	plano := st.put("Plano", "TX", "75024", 33.0, -96.7)
	st.put("Allen", "TX", "75002", 33.1, -96.67)
	st.put("Dallas", "TX", "75201", 32.78, -96.8)
	st.put("Kansas City", "MO", "64105", 39.1, -94.58)
	require.NoError(t, st.UpsertSoilRecord(context.Background(), &model.SoilRecord{
		LocationID: plano.ID, ComponentName: "Houston Black", PlasticityIndex: 30, RiskLevel: model.RiskHigh,
	}))

	svc := NewService(&fakeGeocoder{}, &fakeSoil{}, st, nil)
	page, err := svc.LocationPage(context.Background(), "plano-tx-75024-soil-analysis")
	require.NoError(t, err)
	require.NotNil(t, page)

	assert.Equal(t, "Plano", page.Location.City)
	assert.Equal(t, model.RiskHigh, page.Risk)
	require.NotNil(t, page.Soil)
	assert.Contains(t, page.Narrative, "Plano")
	assert.Len(t, page.Neighborhoods, 3, "fallback neighborhoods when none stored")

	require.Len(t, page.Related, 3)
	assert.Equal(t, "Allen", page.Related[0].Location.City)
	assert.Equal(t, "Dallas", page.Related[1].Location.City)
	assert.Equal(t, "Kansas City", page.Related[2].Location.City)
	for _, r := range page.Related {
		assert.NotEqual(t, plano.ID, r.Location.ID)
	}
}

func TestLocationPage_NoSoil(t *testing.T) {
	st := newMemStore()
	st.put("Irving", "TX", "75038", 32.87, -96.97)

	svc := NewService(&fakeGeocoder{}, &fakeSoil{}, st, nil)
	page, err := svc.LocationPage(context.Background(), "irving-tx-75038")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Nil(t, page.Soil)
	assert.Equal(t, model.RiskUnknown, page.Risk)
	assert.Empty(t, page.Related)
}

func TestLocationPage_NotFound(t *testing.T) {
	svc := NewService(&fakeGeocoder{}, &fakeSoil{}, newMemStore(), nil)
	page, err := svc.LocationPage(context.Background(), "atlantis-xx-00000")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestLocationPage_RelatedFailureStillRenders(t *testing.T) {
	st := newMemStore()
	st.put("Plano", "TX", "75024", 33.0, -96.7)
	st.listErr = errors.New("db down")

	svc := NewService(&fakeGeocoder{}, &fakeSoil{}, st, nil)
	page, err := svc.LocationPage(context.Background(), "plano-tx-75024")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Empty(t, page.Related)
}

func TestLocationPage_NoStore(t *testing.T) {
	svc := NewService(&fakeGeocoder{}, &fakeSoil{}, nil, nil)
	_, err := svc.LocationPage(context.Background(), "x")
	assert.Error(t, err)
}
