package geocode

import (
	"context"
	"math"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundationrisk/soilrisk/internal/resilience"
)

func TestGeocode_PostalCodeUsesStructuredSearch(t *testing.T) {
	var gotQuery, gotUA string
	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		jsonHandler(http.StatusOK, `[{"lat":"33.0198","lon":"-96.6989","display_name":"Plano, Collin County, Texas, 75024"}]`)(w, r)
	})

	result, err := g.Geocode(context.Background(), PostalCode("75024"))
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 33.0198, result.Latitude, 1e-9)
	assert.InDelta(t, -96.6989, result.Longitude, 1e-9)
	assert.Equal(t, "nominatim", result.Source)
	assert.Contains(t, gotQuery, "postalcode=75024")
	assert.Contains(t, gotQuery, "country=us")
	assert.Contains(t, gotQuery, "limit=1")
	assert.NotContains(t, gotQuery, "q=")
	assert.Equal(t, "FoundationRiskApp/1.0", gotUA)
}

func TestGeocode_FreeTextUsesQ(t *testing.T) {
	var gotQ string
	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		jsonHandler(http.StatusOK, `[{"lat":"32.7767","lon":"-96.7970"}]`)(w, r)
	}, WithUserAgent("test-agent/2.0"))

	result, err := g.Geocode(context.Background(), AddressInput{Street: "1500 Marilla St", City: "Dallas", State: "TX"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "1500 Marilla St, Dallas, TX", gotQ)
}

func TestGeocode_NumericCoordinates(t *testing.T) {
	g := newTestGeocoder(t, jsonHandler(http.StatusOK, `[{"lat":39.0997,"lon":-94.5786}]`))

	result, err := g.Geocode(context.Background(), PostalCode("64130"))
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 39.0997, result.Latitude, 1e-9)
}

func TestGeocode_OnlyFirstResultConsumed(t *testing.T) {
	g := newTestGeocoder(t, jsonHandler(http.StatusOK, `[{"lat":"1","lon":"2"},{"lat":"3","lon":"4"}]`))

	result, err := g.Geocode(context.Background(), FreeText("somewhere"))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.Latitude, 1e-9)
	assert.InDelta(t, 2.0, result.Longitude, 1e-9)
}

func TestGeocode_NotFoundCases(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"empty result set", jsonHandler(http.StatusOK, `[]`)},
		{"server error", jsonHandler(http.StatusInternalServerError, `oops`)},
		{"rate limited", jsonHandler(http.StatusTooManyRequests, `[]`)},
		{"malformed body", jsonHandler(http.StatusOK, `{"not":"a list"`)},
		{"unparsable latitude", jsonHandler(http.StatusOK, `[{"lat":"north","lon":"-96"}]`)},
		{"missing longitude", jsonHandler(http.StatusOK, `[{"lat":"33.0"}]`)},
		{"NaN latitude", jsonHandler(http.StatusOK, `[{"lat":"NaN","lon":"-96"}]`)},
		{"infinite longitude", jsonHandler(http.StatusOK, `[{"lat":"33.0","lon":"-Inf"}]`)},
		{"latitude out of range", jsonHandler(http.StatusOK, `[{"lat":"91.5","lon":"-96"}]`)},
		{"longitude out of range", jsonHandler(http.StatusOK, `[{"lat":"33.0","lon":"196.7"}]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGeocoder(t, tt.handler)
			result, err := g.Geocode(context.Background(), PostalCode("00000"))
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.False(t, result.Matched)
		})
	}
}

func TestGeocode_NetworkError(t *testing.T) {
	g := NewClient(WithBaseURL("http://127.0.0.1:1"), WithRateLimit(0), WithHTTPClient(&http.Client{Timeout: time.Second}))

	result, err := g.Geocode(context.Background(), PostalCode("75024"))
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_EmptyInputSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		jsonHandler(http.StatusOK, `[]`)(w, r)
	})

	result, err := g.Geocode(context.Background(), AddressInput{Street: "  "})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, int32(0), calls.Load())
}

func TestGeocode_CancelledContext(t *testing.T) {
	g := newTestGeocoder(t, jsonHandler(http.StatusOK, `[{"lat":"1","lon":"2"}]`), WithRateLimit(0.001))
	// Drain the single burst token so the next Wait must block.
	require.True(t, g.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Geocode(ctx, PostalCode("75024"))
	require.Error(t, err)
}

func TestAddressInput_IsPostalCodeOnly(t *testing.T) {
	assert.True(t, PostalCode("75024").IsPostalCodeOnly())
	assert.False(t, FreeText("75024").IsPostalCodeOnly())
	assert.False(t, AddressInput{City: "Plano", ZipCode: "75024"}.IsPostalCodeOnly())
	assert.False(t, AddressInput{}.IsPostalCodeOnly())
}

func TestFormatOneLine(t *testing.T) {
	assert.Equal(t, "1 Main St, Plano, TX, 75024", formatOneLine(AddressInput{Street: "1 Main St", City: "Plano", State: "TX", ZipCode: "75024"}))
	assert.Equal(t, "Plano, 75024", formatOneLine(AddressInput{City: " Plano ", ZipCode: "75024"}))
	assert.Equal(t, "", formatOneLine(AddressInput{}))
}

func TestGeocode_RetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			jsonHandler(http.StatusTooManyRequests, `[]`)(w, r)
			return
		}
		jsonHandler(http.StatusOK, `[{"lat":"33.0198","lon":"-96.6989"}]`)(w, r)
	}, WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))

	result, err := g.Geocode(context.Background(), PostalCode("75024"))
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeocode_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		jsonHandler(http.StatusServiceUnavailable, `oops`)(w, r)
	}, WithBreaker(cb))

	for range 3 {
		result, err := g.Geocode(context.Background(), PostalCode("75024"))
		require.NoError(t, err)
		assert.False(t, result.Matched)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestValidPoint(t *testing.T) {
	assert.True(t, validPoint(33.0198, -96.6989))
	assert.True(t, validPoint(-90, 180))
	assert.False(t, validPoint(math.NaN(), 0))
	assert.False(t, validPoint(0, math.Inf(1)))
	assert.False(t, validPoint(90.01, 0))
	assert.False(t, validPoint(0, -180.5))
}
