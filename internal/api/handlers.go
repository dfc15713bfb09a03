package api

import (
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/foundationrisk/soilrisk/internal/lead"
	"github.com/foundationrisk/soilrisk/internal/lookup"
	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/internal/quiz"
	"github.com/foundationrisk/soilrisk/internal/store"
	"github.com/foundationrisk/soilrisk/pkg/geocode"
)

const (
	msgInvalidBody    = "Invalid JSON body"
	msgMissingLatLon  = "Missing lat/lon"
	msgNoSoil         = "No soil data found for this location"
	msgMissingAddress = "Missing address or zip"
	msgNotFound       = "Address not found"
	msgNoLocation     = "Location not found"
	msgUnauthorized   = "Unauthorized"
	msgNoTargets      = "No targets provided"
	msgInvalidTargets = "Invalid JSON body. Expected { targets: [{zip, city, state}] }"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Upstreams map[string]string `json:"upstreams,omitempty"`
}

// health fails only on the store. An open upstream circuit is reported but
// lookups still answer with not-found or unknown risk.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.Upstreams != nil {
		resp.Upstreams = h.Upstreams.States()
	}
	if h.Catalog != nil {
		if err := h.Catalog.Ping(r.Context()); err != nil {
			zap.L().Warn("api: store ping failed", zap.Error(err))
			resp.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type soilRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// soil looks up the soil at a point. A zero coordinate counts as missing.
func (h *handler) soil(w http.ResponseWriter, r *http.Request) {
	var req soilRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.Lat == nil || req.Lon == nil || *req.Lat == 0 || *req.Lon == 0 {
		writeError(w, http.StatusBadRequest, msgMissingLatLon)
		return
	}

	rec, err := h.Lookup.SoilAt(r.Context(), *req.Lat, *req.Lon)
	if err != nil {
		zap.L().Error("api: soil lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Soil lookup failed")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, msgNoSoil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) risk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var addr geocode.AddressInput
	switch {
	case strings.TrimSpace(q.Get("address")) != "":
		addr = geocode.FreeText(strings.TrimSpace(q.Get("address")))
	case strings.TrimSpace(q.Get("zip")) != "":
		addr = geocode.PostalCode(strings.TrimSpace(q.Get("zip")))
	default:
		writeError(w, http.StatusBadRequest, msgMissingAddress)
		return
	}

	a, err := h.Lookup.Assess(r.Context(), addr)
	if err != nil {
		zap.L().Error("api: risk lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Risk lookup failed")
		return
	}
	if !a.Found {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type locationSummary struct {
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"zip_code"`
	Slug       string `json:"slug"`
}

type stateGroup struct {
	State     string            `json:"state"`
	Locations []locationSummary `json:"locations"`
}

type locationIndex struct {
	Total  int          `json:"total"`
	States []stateGroup `json:"states"`
}

// listLocations returns every stored location grouped by state, states and
// cities in alphabetical order.
func (h *handler) listLocations(w http.ResponseWriter, r *http.Request) {
	filter := store.LocationFilter{State: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state")))}
	locs, err := h.Catalog.ListLocations(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list locations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list locations")
		return
	}
	writeJSON(w, http.StatusOK, groupByState(locs))
}

func groupByState(locs []model.Location) locationIndex {
	byState := map[string][]locationSummary{}
	for _, l := range locs {
		byState[l.State] = append(byState[l.State], locationSummary{
			City: l.City, State: l.State, PostalCode: l.PostalCode, Slug: l.Slug,
		})
	}

	idx := locationIndex{Total: len(locs), States: make([]stateGroup, 0, len(byState))}
	for st, ls := range byState {
		sort.SliceStable(ls, func(i, j int) bool { return ls[i].City < ls[j].City })
		idx.States = append(idx.States, stateGroup{State: st, Locations: ls})
	}
	sort.Slice(idx.States, func(i, j int) bool { return idx.States[i].State < idx.States[j].State })
	return idx
}

func (h *handler) locationPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.Lookup.LocationPage(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		zap.L().Error("api: location page", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load location")
		return
	}
	if page == nil {
		writeError(w, http.StatusNotFound, msgNoLocation)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) submitLead(w http.ResponseWriter, r *http.Request) {
	var p lead.Payload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, lead.Response{Error: msgInvalidBody})
		return
	}

	resp := h.Leads.Submit(r.Context(), p)
	switch {
	case resp.Success:
		writeJSON(w, http.StatusOK, resp)
	case resp.Error == lead.ReasonPersistFailed:
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		writeJSON(w, http.StatusBadRequest, resp)
	}
}

func (h *handler) quizQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, quiz.Questions)
}

type quizRequest struct {
	Answers []int `json:"answers"`
}

func (h *handler) scoreQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	res, err := quiz.Score(req.Answers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type ingestRequest struct {
	Targets []lookup.Target `json:"targets"`
}

type ingestResponse struct {
	Success bool            `json:"success"`
	Results []lookup.Result `json:"results"`
}

func (h *handler) adminIngest(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.AdminSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidTargets)
		return
	}
	targets := make([]lookup.Target, 0, len(req.Targets))
	for _, t := range req.Targets {
		if strings.TrimSpace(t.Zip) != "" {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		writeError(w, http.StatusBadRequest, msgNoTargets)
		return
	}

	results, err := h.Ingest.IngestAll(r.Context(), targets)
	if err != nil {
		zap.L().Error("api: admin ingest", zap.Int("targets", len(targets)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Ingestion interrupted")
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Success: true, Results: results})
}
