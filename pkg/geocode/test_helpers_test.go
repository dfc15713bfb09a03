package geocode

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestGeocoder creates a geocoder pointed at a test server with no rate limiting.
func newTestGeocoder(t *testing.T, handler http.HandlerFunc, opts ...Option) *geocoder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := []Option{WithBaseURL(srv.URL), WithRateLimit(0)}
	return NewClient(append(base, opts...)...).(*geocoder)
}

// jsonHandler returns a handler that writes body with the given status.
func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}
