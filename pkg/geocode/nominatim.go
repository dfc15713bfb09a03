package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/foundationrisk/soilrisk/internal/resilience"
)

const sourceNominatim = "nominatim"

// nominatimPlace is one element of the Nominatim search response. Coordinates
// arrive as strings in format=json but some mirrors emit numbers.
type nominatimPlace struct {
	Lat         flexFloat `json:"lat"`
	Lon         flexFloat `json:"lon"`
	DisplayName string    `json:"display_name"`
}

// flexFloat decodes a JSON number or numeric string.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return eris.Wrapf(err, "geocode: parse coordinate %q", s)
	}
	f.Value, f.Set = v, true
	return nil
}

// Geocode implements Client.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	if formatOneLine(addr) == "" {
		return &Result{Matched: false, Source: sourceNominatim}, nil
	}

	result, err := resilience.Do(ctx, g.retry, func(ctx context.Context) (*Result, error) {
		return resilience.Execute(ctx, g.breaker, func(ctx context.Context) (*Result, error) {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "geocode: rate limit")
			}
			return g.search(ctx, addr)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "geocode: search")
		}
		zap.L().Warn("geocode: lookup failed",
			zap.String("query", formatOneLine(addr)),
			zap.Error(err),
		)
		return &Result{Matched: false, Source: sourceNominatim}, nil
	}
	return result, nil
}

// search issues one Nominatim request and parses the first match.
func (g *geocoder) search(ctx context.Context, addr AddressInput) (*Result, error) {
	params := url.Values{
		"format": {"json"},
		"limit":  {"1"},
	}
	if addr.IsPostalCodeOnly() {
		params.Set("postalcode", strings.TrimSpace(addr.ZipCode))
		params.Set("country", g.country)
	} else {
		params.Set("q", formatOneLine(addr))
	}

	reqURL := g.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.NewStatusError("nominatim", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	if len(places) == 0 {
		return &Result{Matched: false, Source: sourceNominatim}, nil
	}

	first := places[0]
	if !first.Lat.Set || !first.Lon.Set {
		return nil, eris.New("geocode: first match missing coordinates")
	}
	if !validPoint(first.Lat.Value, first.Lon.Value) {
		return nil, eris.Errorf("geocode: first match has invalid coordinates %v,%v", first.Lat.Value, first.Lon.Value)
	}
	return &Result{
		Latitude:    first.Lat.Value,
		Longitude:   first.Lon.Value,
		DisplayName: first.DisplayName,
		Source:      sourceNominatim,
		Matched:     true,
	}, nil
}

// validPoint reports whether lat/lon is a finite WGS84 coordinate.
func validPoint(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
