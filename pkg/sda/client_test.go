package sda

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundationrisk/soilrisk/internal/resilience"
)

const testURL = "https://sda.test/Tabular/post.rest"

func newMockClient(t *testing.T, responder httpmock.Responder, opts ...Option) (Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, testURL, responder)
	opts = append([]Option{WithBaseURL(testURL), WithHTTPClient(&http.Client{Transport: mt})}, opts...)
	return NewClient(opts...), mt
}

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

func tableBody(rows ...[]any) string {
	b, _ := json.Marshal(map[string]any{"Table": rows})
	return string(b)
}

var header = []any{
	ColMapUnitSymbol, ColMapUnitName, ColComponentName, ColComponentPercent,
	ColShrinkSwell, ColPlasticityIndex, ColDrainageClass,
}

func TestLookup_DecodesFirstRow(t *testing.T) {
	var got queryRequest
	c, mt := newMockClient(t, func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		return httpmock.NewStringResponse(200, tableBody(
			header,
			[]any{"HoB", "Houston Black clay, 1 to 3 percent slopes", "Houston Black", "85", "7.5", "42", "Moderately well drained"},
			[]any{"HoB", "Houston Black clay, 1 to 3 percent slopes", "Houston Black", "85", "6.0", "30", "Moderately well drained"},
		)), nil
	})

	rec, err := c.Lookup(context.Background(), 33.02, -96.7)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "HoB", rec.MapUnitSymbol)
	assert.Equal(t, "Houston Black clay, 1 to 3 percent slopes", rec.MapUnitName)
	assert.Equal(t, "Houston Black", rec.ComponentName)
	require.NotNil(t, rec.PlasticityIndex)
	assert.InDelta(t, 42.0, *rec.PlasticityIndex, 1e-9)
	require.NotNil(t, rec.ShrinkSwell)
	assert.InDelta(t, 7.5, *rec.ShrinkSwell, 1e-9)
	require.NotNil(t, rec.ComponentPercent)
	assert.InDelta(t, 85.0, *rec.ComponentPercent, 1e-9)
	assert.Equal(t, "Moderately well drained", rec.DrainageClass)
	assert.Equal(t, "42", rec.Raw[ColPlasticityIndex])

	assert.Equal(t, responseFormat, got.Format)
	assert.Contains(t, got.Query, "SDA_Get_Mukey_from_intersection_with_WktWgs84")
	assert.Contains(t, got.Query, "-96.7")
	assert.Contains(t, got.Query, "33.02")
	assert.Contains(t, got.Query, "c.majcompflag = 'Yes'")
	assert.Contains(t, got.Query, "ch.hzdept_r < 50")
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestLookup_NumericAndNullValues(t *testing.T) {
	c, _ := newMockClient(t, httpmock.NewStringResponder(200, tableBody(
		header,
		[]any{"BuB", "Burleson clay", "Burleson", 90, nil, 38.5, nil},
	)))

	rec, err := c.Lookup(context.Background(), 32.9, -97.1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Nil(t, rec.ShrinkSwell)
	require.NotNil(t, rec.PlasticityIndex)
	assert.InDelta(t, 38.5, *rec.PlasticityIndex, 1e-9)
	assert.Empty(t, rec.DrainageClass)
}

func TestLookup_NotFound(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"header only", httpmock.NewStringResponder(200, tableBody(header))},
		{"empty object", httpmock.NewStringResponder(200, `{}`)},
		{"empty body", httpmock.NewStringResponder(200, ``)},
		{"server error", httpmock.NewStringResponder(500, `oops`)},
		{"malformed json", httpmock.NewStringResponder(200, `{"Table":`)},
		{"network error", httpmock.NewErrorResponder(errors.New("connection reset"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newMockClient(t, tt.responder)
			rec, err := c.Lookup(context.Background(), 33.0, -96.7)
			assert.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestLookup_InvalidCoordinateSkipsRequest(t *testing.T) {
	c, mt := newMockClient(t, httpmock.NewStringResponder(200, tableBody(header, []any{"x", "x", "x", 1, 1, 1, "x"})))

	for _, p := range [][2]float64{{math.NaN(), 0}, {91, 0}, {0, -181}, {math.Inf(1), 10}} {
		rec, err := c.Lookup(context.Background(), p[0], p[1])
		assert.NoError(t, err)
		assert.Nil(t, rec)
	}
	assert.Zero(t, mt.GetTotalCallCount())
}

func TestLookup_CancelledContext(t *testing.T) {
	c, _ := newMockClient(t, httpmock.NewStringResponder(200, tableBody(header)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := c.Lookup(ctx, 33.0, -96.7)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, rec)
}

func TestFirstRow_ShortValueRow(t *testing.T) {
	row := firstRow([][]any{{"a", "b"}, {1.0}})
	assert.Equal(t, 1.0, row["a"])
	v, ok := row["b"]
	assert.True(t, ok)
	assert.Nil(t, v)

	assert.Nil(t, firstRow(nil))
	assert.Nil(t, firstRow([][]any{{"a"}}))
}

func TestBuildQuery(t *testing.T) {
	q, err := BuildQuery(33.0, -96.7, 30)
	require.NoError(t, err)
	assert.Contains(t, q, "ch.hzdept_r < 30")
	assert.Contains(t, q, "ORDER BY c.comppct_r DESC, ch.hzdept_r ASC")

	_, err = BuildQuery(100, 0, 50)
	assert.Error(t, err)
}

func TestPointWKT_LonLatOrder(t *testing.T) {
	s, err := PointWKT(33.5, -96.25)
	require.NoError(t, err)
	assert.Contains(t, s, "POINT")
	assert.Less(t, strings.Index(s, "-96.25"), strings.Index(s, "33.5"))
}

func TestValueOr(t *testing.T) {
	v := 12.0
	assert.Equal(t, 12.0, ValueOr(&v, 0))
	assert.Equal(t, 3.0, ValueOr(nil, 3))
}

func TestLookup_RetriesTransientStatus(t *testing.T) {
	ok := httpmock.NewStringResponder(200, tableBody(header, []any{"HoB", "Houston Black clay", "Houston Black", 85, 7.5, 42, "Well drained"}))
	c, mt := newMockClient(t, httpmock.NewStringResponder(503, "busy").Then(ok), WithRetry(fastRetry))

	rec, err := c.Lookup(context.Background(), 33.0, -96.7)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "HoB", rec.MapUnitSymbol)
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestLookup_DoesNotRetryBadRequest(t *testing.T) {
	c, mt := newMockClient(t, httpmock.NewStringResponder(400, "invalid query"), WithRetry(fastRetry))

	rec, err := c.Lookup(context.Background(), 33.0, -96.7)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestLookup_OpenBreakerSkipsRequests(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	c, mt := newMockClient(t, httpmock.NewStringResponder(502, "bad gateway"), WithBreaker(cb))

	for range 4 {
		rec, err := c.Lookup(context.Background(), 33.0, -96.7)
		require.NoError(t, err)
		assert.Nil(t, rec)
	}
	assert.Equal(t, 2, mt.GetTotalCallCount())
	assert.Equal(t, resilience.CircuitOpen, cb.State())
}
