// Package model defines the core domain types for locations, soil records, and leads.
package model

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Location is a monitored place keyed by postal code.
type Location struct {
	ID            string         `json:"id"`
	City          string         `json:"city"`
	State         string         `json:"state"`
	PostalCode    string         `json:"zip_code"`
	Slug          string         `json:"slug"`
	Latitude      *float64       `json:"latitude,omitempty"`
	Longitude     *float64       `json:"longitude,omitempty"`
	Neighborhoods []Neighborhood `json:"neighborhoods"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Neighborhood is a named sub-area of a Location. Order is display-relevant.
type Neighborhood struct {
	Name string `json:"name"`
	Risk string `json:"risk"`
	Note string `json:"note"`
}

// Coordinates returns the location's point. ok is false unless both
// latitude and longitude are present.
func (l Location) Coordinates() (lat, lon float64, ok bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return 0, 0, false
	}
	return *l.Latitude, *l.Longitude, true
}

// SetCoordinates sets latitude and longitude together.
func (l *Location) SetCoordinates(lat, lon float64) {
	l.Latitude = &lat
	l.Longitude = &lon
}

// ClearCoordinates removes both latitude and longitude.
func (l *Location) ClearCoordinates() {
	l.Latitude = nil
	l.Longitude = nil
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9_-]`)
)

// Slugify converts a city name into a URL-safe slug:
// "St. Louis" -> "st-louis", "Café Park" -> "cafe-park".
func Slugify(s string) string {
	// transform.Chain is stateful; build one per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}

	folded = strings.ToLower(folded)
	folded = strings.NewReplacer(".", "", ",", "").Replace(folded)
	folded = strings.TrimSpace(folded)
	folded = whitespaceRun.ReplaceAllString(folded, "-")
	return nonSlugChars.ReplaceAllString(folded, "")
}

// PageSlug returns the unique slug stored for a location, e.g. "plano-tx-75024".
func PageSlug(city, state, postalCode string) string {
	parts := []string{Slugify(city)}
	if st := Slugify(state); st != "" {
		parts = append(parts, st)
	}
	if zip := Slugify(postalCode); zip != "" {
		parts = append(parts, zip)
	}
	return strings.Join(parts, "-")
}

// soilAnalysisSuffix is appended to location slugs by the soil-analysis article pages.
const soilAnalysisSuffix = "-soil-analysis"

// TrimPageSuffix strips the article suffix from an incoming page slug.
func TrimPageSuffix(slug string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(slug)), soilAnalysisSuffix)
}
