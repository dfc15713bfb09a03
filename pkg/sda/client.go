// Package sda queries the USDA Soil Data Access tabular service for the soil
// horizon underneath a point.
package sda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/foundationrisk/soilrisk/internal/resilience"
)

const (
	defaultBaseURL    = "https://sdmdataaccess.nrcs.usda.gov/Tabular/post.rest"
	defaultMaxDepthCM = 50
	responseFormat    = "JSON+COLUMNNAME"
)

// Client looks up the representative soil record at a coordinate.
type Client interface {
	// Lookup returns the near-surface horizon of the majority component at
	// (lat, lon), or nil when the service has no data or the call fails.
	// Only context cancellation is returned as an error.
	Lookup(ctx context.Context, lat, lon float64) (*Record, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the Soil Data Access endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithMaxDepthCM sets the horizon top-depth cutoff in centimeters.
func WithMaxDepthCM(cm int) Option {
	return func(c *client) {
		if cm > 0 {
			c.maxDepthCM = cm
		}
	}
}

// WithRetry retries transient failures (throttling, 5xx, timeouts).
func WithRetry(rc resilience.RetryConfig) Option {
	return func(c *client) {
		if rc.OnRetry == nil {
			rc.OnRetry = resilience.RetryLogger("sda")
		}
		c.retry = rc
	}
}

// WithBreaker fails lookups fast while Soil Data Access is down.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *client) {
		c.breaker = cb
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	maxDepthCM int
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a Soil Data Access client.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		maxDepthCM: defaultMaxDepthCM,
		retry:      resilience.NoRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryRequest struct {
	Query  string `json:"query"`
	Format string `json:"format"`
}

// queryResponse is the JSON+COLUMNNAME payload: Table[0] holds the column
// names and each following row holds values.
type queryResponse struct {
	Table [][]any `json:"Table"`
}

// Lookup implements Client.
func (c *client) Lookup(ctx context.Context, lat, lon float64) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "sda: lookup")
	}
	if !validCoordinate(lat, lon) {
		zap.L().Debug("sda: invalid coordinate", zap.Float64("lat", lat), zap.Float64("lon", lon))
		return nil, nil
	}

	rec, err := resilience.Do(ctx, c.retry, func(ctx context.Context) (*Record, error) {
		return resilience.Execute(ctx, c.breaker, func(ctx context.Context) (*Record, error) {
			return c.query(ctx, lat, lon)
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "sda: lookup")
		}
		zap.L().Warn("sda: lookup failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return nil, nil
	}
	return rec, nil
}

func (c *client) query(ctx context.Context, lat, lon float64) (*Record, error) {
	sql, err := BuildQuery(lat, lon, c.maxDepthCM)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(queryRequest{Query: sql, Format: responseFormat})
	if err != nil {
		return nil, eris.Wrap(err, "sda: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "sda: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sda: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.NewStatusError("sda", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "sda: read body")
	}

	// SDA answers an empty result set with an empty object.
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, eris.Wrap(err, "sda: parse response")
	}

	row := firstRow(qr.Table)
	if row == nil {
		return nil, nil
	}
	return recordFromRow(row), nil
}

// firstRow zips the header row with the first data row.
func firstRow(table [][]any) map[string]any {
	if len(table) < 2 {
		return nil
	}
	header, values := table[0], table[1]
	row := make(map[string]any, len(header))
	for i, h := range header {
		key := fmt.Sprint(h)
		if i < len(values) {
			row[key] = values[i]
		} else {
			row[key] = nil
		}
	}
	return row
}

// PointWKT returns the WKT for a WGS84 point in x/y (lon/lat) order.
func PointWKT(lat, lon float64) (string, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat})
	s, err := wkt.Marshal(p)
	if err != nil {
		return "", eris.Wrap(err, "sda: encode point")
	}
	return s, nil
}

// BuildQuery returns the SDA SQL selecting the majority component's horizons
// whose top depth is above maxDepthCM, most representative first.
func BuildQuery(lat, lon float64, maxDepthCM int) (string, error) {
	if !validCoordinate(lat, lon) {
		return "", eris.Errorf("sda: invalid coordinate (%f, %f)", lat, lon)
	}
	point, err := PointWKT(lat, lon)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`SELECT
  mu.musym AS map_unit_symbol,
  mu.muname AS map_unit_name,
  c.compname AS component_name,
  c.comppct_r AS component_percent,
  ch.lep_r AS shrink_swell,
  ch.pi_r AS plasticity_index,
  c.drainagecl AS drainage_class
FROM mapunit mu
INNER JOIN component c ON c.mukey = mu.mukey
INNER JOIN chorizon ch ON ch.cokey = c.cokey
WHERE mu.mukey IN (
  SELECT mukey FROM SDA_Get_Mukey_from_intersection_with_WktWgs84('%s')
)
AND c.majcompflag = 'Yes'
AND ch.hzdept_r < %d
ORDER BY c.comppct_r DESC, ch.hzdept_r ASC`, point, maxDepthCM), nil
}

func validCoordinate(lat, lon float64) bool {
	for _, v := range []float64{lat, lon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
