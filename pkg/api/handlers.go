package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"guard_model/pkg/graph"
	"guard_model/pkg/mart"
	"guard_model/pkg/nominatim"
	"guard_model/pkg/sample"
	"guard_model/pkg/service"
	"guard_model/pkg/simulation"
)

// Simulator runs a guard-count simulation. *service.Planner implements it.
type Simulator interface {
	Simulate(ctx context.Context, req service.Request) (service.Report, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	sim   Simulator
	stats StatsResponse
}

// NewHandlers creates handlers with the given simulator.
func NewHandlers(sim Simulator, stats StatsResponse) *Handlers {
	return &Handlers{
		sim:   sim,
		stats: stats,
	}
}

// HandleSimulate handles POST /api/v1/simulate.
func (h *Handlers) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	// Enforce Content-Type.
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	var req SimulateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	if field := validateSimulate(req); field != "" {
		writeError(w, http.StatusBadRequest, "invalid_parameter", field)
		return
	}

	rep, err := h.sim.Simulate(r.Context(), service.Request{
		Place:              req.Place,
		Population:         req.Population,
		Target:             req.TargetMinutes,
		Accounts:           req.Accounts,
		CommercialFraction: req.CommercialFraction,
		Seed:               req.Seed,
	})
	if err != nil {
		status, code := classifyError(err)
		writeError(w, status, code, "")
		return
	}

	writeJSON(w, http.StatusOK, newSimulateResponse(rep))
}

// HandleTarget handles GET /api/v1/target?population=N.
func (h *Handlers) HandleTarget(w http.ResponseWriter, r *http.Request) {
	pop, err := strconv.ParseInt(r.URL.Query().Get("population"), 10, 64)
	if err != nil || pop < 0 {
		writeError(w, http.StatusBadRequest, "invalid_parameter", "population")
		return
	}
	writeJSON(w, http.StatusOK, TargetResponse{Population: pop, TargetMinutes: mart.ComputeTarget(pop)})
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats)
}

// validateSimulate returns the name of the first invalid field, or "".
func validateSimulate(req SimulateRequest) string {
	switch {
	case strings.TrimSpace(req.Place) == "":
		return "place"
	case req.Accounts < 1:
		return "accounts"
	case math.IsNaN(req.CommercialFraction) || req.CommercialFraction < 0 || req.CommercialFraction > 1:
		return "commercial_fraction"
	case req.Population != nil && *req.Population < 0:
		return "population"
	case req.TargetMinutes != nil && (!(*req.TargetMinutes > 0) || math.IsInf(*req.TargetMinutes, 1)):
		return "target_minutes"
	}
	return ""
}

// classifyError maps a simulation error to an HTTP status and error code.
func classifyError(err error) (int, string) {
	var statusErr *nominatim.StatusError
	switch {
	case errors.Is(err, simulation.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, nominatim.ErrNotFound):
		return http.StatusNotFound, "place_not_found"
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, graph.ErrNoRoads):
		return http.StatusUnprocessableEntity, "no_roads_in_boundary"
	case errors.Is(err, sample.ErrEmptyBoundary):
		return http.StatusUnprocessableEntity, "empty_boundary"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request_timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

func newSimulateResponse(rep service.Report) SimulateResponse {
	res := rep.Result
	resp := SimulateResponse{
		Place:              rep.Place,
		Outcome:            res.Outcome.String(),
		Guards:             res.Guards,
		MedianMinutes:      finite(res.MedianMinutes),
		TargetMinutes:      rep.TargetMinutes,
		Population:         rep.Population,
		Accounts:           res.Accounts,
		CommercialFraction: res.CommercialFraction,
		Seed:               rep.Seed,
		GraphNodes:         rep.GraphNodes,
		GraphEdges:         rep.GraphEdges,
		PathSearches:       res.PathSearches,
		ElapsedMS:          rep.Elapsed.Milliseconds(),
		Trials:             make([]TrialJSON, len(res.Trials)),
	}
	if res.Outcome != simulation.Found {
		resp.MedianMinutes = nil
	}
	for i, tr := range res.Trials {
		resp.Trials[i] = TrialJSON{Guards: tr.Guards, MedianMinutes: finite(tr.MedianMinutes)}
	}
	return resp
}

// finite returns nil for values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
