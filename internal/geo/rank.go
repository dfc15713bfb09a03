package geo

import (
	"math"
	"slices"

	"github.com/umahmood/haversine"

	"github.com/foundationrisk/soilrisk/internal/model"
)

// RelatedLimit is the number of related cities shown on a location page.
const RelatedLimit = 6

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether p is a finite coordinate within WGS84 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceKM returns the haversine great-circle distance between a and b on a
// sphere of radius 6371 km.
func DistanceKM(a, b Point) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat, Lon: a.Lon},
		haversine.Coord{Lat: b.Lat, Lon: b.Lon},
	)
	return km
}

// Target identifies the location being ranked against. Candidates whose ID or
// Slug match a non-empty Target field are excluded from results.
type Target struct {
	ID    string
	Slug  string
	Point Point
}

// Ranked is a candidate location with its distance from the target.
type Ranked struct {
	Location   model.Location `json:"location"`
	DistanceKM float64        `json:"distance_km"`
}

// Nearest returns up to k candidates sorted ascending by distance from target.
// Candidates without both coordinates are skipped. Equal distances keep input order.
func Nearest(target Target, candidates []model.Location, k int) []Ranked {
	if k <= 0 || !target.Point.Valid() {
		return nil
	}

	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if isTarget(target, c) {
			continue
		}
		lat, lon, ok := c.Coordinates()
		if !ok {
			continue
		}
		p := Point{Lat: lat, Lon: lon}
		if !p.Valid() {
			continue
		}
		ranked = append(ranked, Ranked{Location: c, DistanceKM: DistanceKM(target.Point, p)})
	}

	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		switch {
		case a.DistanceKM < b.DistanceKM:
			return -1
		case a.DistanceKM > b.DistanceKM:
			return 1
		}
		return 0
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Related returns the RelatedLimit nearest locations to loc. A location
// without coordinates has no related cities.
func Related(loc model.Location, candidates []model.Location) []Ranked {
	lat, lon, ok := loc.Coordinates()
	if !ok {
		return nil
	}
	return Nearest(Target{ID: loc.ID, Slug: loc.Slug, Point: Point{Lat: lat, Lon: lon}}, candidates, RelatedLimit)
}

func isTarget(t Target, c model.Location) bool {
	if t.ID != "" && c.ID == t.ID {
		return true
	}
	return t.Slug != "" && c.Slug == t.Slug
}
