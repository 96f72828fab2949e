package api

// SimulateRequest is the JSON body for POST /api/v1/simulate.
type SimulateRequest struct {
	Place              string   `json:"place"`
	Population         *int64   `json:"population,omitempty"`
	TargetMinutes      *float64 `json:"target_minutes,omitempty"`
	Accounts           int      `json:"accounts"`
	CommercialFraction float64  `json:"commercial_fraction"`
	Seed               uint64   `json:"seed,omitempty"`
}

// SimulateResponse is the JSON response for a finished simulation.
// MedianMinutes is null when the median is unreachable or undefined.
type SimulateResponse struct {
	Place              string      `json:"place"`
	Outcome            string      `json:"outcome"`
	Guards             int         `json:"guards"`
	MedianMinutes      *float64    `json:"median_minutes"`
	TargetMinutes      float64     `json:"target_minutes"`
	Population         int64       `json:"population"`
	Accounts           int         `json:"accounts"`
	CommercialFraction float64     `json:"commercial_fraction"`
	Seed               uint64      `json:"seed"`
	GraphNodes         uint32      `json:"graph_nodes"`
	GraphEdges         uint32      `json:"graph_edges"`
	PathSearches       int         `json:"path_searches"`
	ElapsedMS          int64       `json:"elapsed_ms"`
	Trials             []TrialJSON `json:"trials,omitempty"`
}

// TrialJSON is one guard count evaluated during the search.
type TrialJSON struct {
	Guards        int      `json:"guards"`
	MedianMinutes *float64 `json:"median_minutes"`
}

// TargetResponse is the JSON response for GET /api/v1/target.
type TargetResponse struct {
	Population    int64   `json:"population"`
	TargetMinutes float64 `json:"target_minutes"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumNodes uint32 `json:"num_nodes"`
	NumEdges uint32 `json:"num_edges"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
