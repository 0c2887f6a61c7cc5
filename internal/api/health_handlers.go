package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := make(map[string]ComponentHealth)
	overall := "healthy"

	schemas := ComponentHealth{Status: "healthy"}
	if len(s.services.Registry.List()) == 0 {
		schemas = ComponentHealth{Status: "degraded", Message: "no target schemas loaded"}
	}
	components["schemas"] = schemas

	rules := ComponentHealth{Status: "healthy"}
	if _, err := s.services.Rules.ListAliasRules(ctx, "_health"); err != nil {
		rules = ComponentHealth{Status: "unhealthy", Message: err.Error()}
	}
	components["rule_store"] = rules

	suggest := ComponentHealth{Status: "healthy"}
	if _, err := s.services.Suggest.DocumentCount(); err != nil {
		suggest = ComponentHealth{Status: "degraded", Message: err.Error()}
	}
	components["suggest_index"] = suggest

	for _, c := range components {
		switch c.Status {
		case "unhealthy":
			overall = "unhealthy"
		case "degraded":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	return &HealthOutput{Body: HealthResponse{Status: overall, Components: components}}, nil
}
