package geo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundationrisk/soilrisk/internal/model"
)

// kmPerDegreeLat is the arc length of one degree of latitude on a 6371 km sphere.
const kmPerDegreeLat = 111.19492664455873

func locAt(id string, lat, lon float64) model.Location {
	l := model.Location{ID: id, Slug: id}
	l.SetCoordinates(lat, lon)
	return l
}

// northOf returns a location d kilometers due north of (30, -97).
func northOf(id string, d float64) model.Location {
	return locAt(id, 30.0+d/kmPerDegreeLat, -97.0)
}

func TestDistanceKM(t *testing.T) {
	// Austin to Dallas is roughly 293 km.
	d := DistanceKM(Point{Lat: 30.2672, Lon: -97.7431}, Point{Lat: 32.7767, Lon: -96.7970})
	assert.InDelta(t, 293, d, 5)
	assert.InDelta(t, 0, DistanceKM(Point{Lat: 30, Lon: -97}, Point{Lat: 30, Lon: -97}), 0.001)
	assert.InDelta(t, 50, DistanceKM(Point{Lat: 30, Lon: -97}, Point{Lat: 30 + 50/kmPerDegreeLat, Lon: -97}), 0.01)
}

func TestNearest_AscendingRegardlessOfInputOrder(t *testing.T) {
	target := Target{ID: "austin", Point: Point{Lat: 30.0, Lon: -97.0}}
	far := northOf("far", 500)
	mid := northOf("mid", 50)
	near := northOf("near", 1)
	self := locAt("austin", 30.0, -97.0)

	orders := [][]model.Location{
		{far, mid, near, self},
		{self, near, far, mid},
		{mid, self, far, near},
	}
	for i, candidates := range orders {
		t.Run(fmt.Sprintf("order_%d", i), func(t *testing.T) {
			got := Nearest(target, candidates, RelatedLimit)
			require.Len(t, got, 3)
			assert.Equal(t, "near", got[0].Location.ID)
			assert.Equal(t, "mid", got[1].Location.ID)
			assert.Equal(t, "far", got[2].Location.ID)
			assert.InDelta(t, 1, got[0].DistanceKM, 0.01)
			assert.InDelta(t, 50, got[1].DistanceKM, 0.01)
			assert.InDelta(t, 500, got[2].DistanceKM, 0.01)
		})
	}
}

func TestNearest_ExcludesTargetBySlug(t *testing.T) {
	target := Target{Slug: "plano-tx-75024", Point: Point{Lat: 33.0, Lon: -96.7}}
	self := locAt("some-id", 33.0, -96.7)
	self.Slug = "plano-tx-75024"
	other := locAt("allen", 33.1, -96.67)

	got := Nearest(target, []model.Location{self, other}, RelatedLimit)
	require.Len(t, got, 1)
	assert.Equal(t, "allen", got[0].Location.ID)
}

func TestNearest_TruncatesToK(t *testing.T) {
	var candidates []model.Location
	for i := 10; i > 0; i-- {
		candidates = append(candidates, northOf(fmt.Sprintf("c%d", i), float64(i*10)))
	}

	got := Nearest(Target{Point: Point{Lat: 30, Lon: -97}}, candidates, RelatedLimit)
	require.Len(t, got, 6)
	for i, r := range got {
		assert.Equal(t, fmt.Sprintf("c%d", i+1), r.Location.ID)
	}
}

func TestNearest_SkipsMissingCoordinates(t *testing.T) {
	noLat := model.Location{ID: "nolat"}
	lon := -97.0
	noLat.Longitude = &lon
	noLon := model.Location{ID: "nolon"}
	lat := 30.0
	noLon.Latitude = &lat
	neither := model.Location{ID: "neither"}
	ok := northOf("ok", 5)

	var got []Ranked
	require.NotPanics(t, func() {
		got = Nearest(Target{Point: Point{Lat: 30, Lon: -97}}, []model.Location{noLat, noLon, neither, ok}, RelatedLimit)
	})
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Location.ID)
}

func TestNearest_StableOnTies(t *testing.T) {
	a := locAt("a", 31, -97)
	b := locAt("b", 31, -97)
	c := locAt("c", 31, -97)

	got := Nearest(Target{Point: Point{Lat: 30, Lon: -97}}, []model.Location{b, a, c}, RelatedLimit)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{got[0].Location.ID, got[1].Location.ID, got[2].Location.ID})
}

func TestNearest_EdgeCases(t *testing.T) {
	candidates := []model.Location{northOf("x", 1)}
	assert.Empty(t, Nearest(Target{Point: Point{Lat: 30, Lon: -97}}, candidates, 0))
	assert.Empty(t, Nearest(Target{Point: Point{Lat: 91, Lon: -97}}, candidates, RelatedLimit))
	assert.Empty(t, Nearest(Target{Point: Point{Lat: 30, Lon: -97}}, nil, RelatedLimit))
}

func TestRelated(t *testing.T) {
	plano := locAt("plano", 33.0198, -96.6989)
	allen := locAt("allen", 33.1032, -96.6706)
	dallas := locAt("dallas", 32.7767, -96.7970)
	kc := locAt("kc", 39.0997, -94.5786)

	got := Related(plano, []model.Location{kc, dallas, plano, allen})
	require.Len(t, got, 3)
	assert.Equal(t, "allen", got[0].Location.ID)
	assert.Equal(t, "dallas", got[1].Location.ID)
	assert.Equal(t, "kc", got[2].Location.ID)

	assert.Nil(t, Related(model.Location{ID: "nowhere"}, []model.Location{allen}))
}
