package domain

// HealthReport is returned by GET /healthz and by a failing GET /readyz.
type HealthReport struct {
	Status       string             `json:"status"` // ok, unavailable
	Backend      string             `json:"backend,omitempty"`
	Dependencies []DependencyHealth `json:"dependencies"`
}

// DependencyHealth is the outcome of one dependency probe.
type DependencyHealth struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// SuccessResponse answers a mutation that returns no entity.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}
