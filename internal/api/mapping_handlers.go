package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/mapper"
)

func (s *Server) registerMappingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "mapFields",
		Method:      http.MethodPost,
		Path:        "/api/v1/mappings/map",
		Summary:     "Map source fields",
		Description: "Runs a batch of source column names through the matching pipeline against a target schema",
		Tags:        []string{"Mappings"},
	}, s.handleMapFields)
}

// MapRequest is the request body for a mapping batch.
type MapRequest struct {
	EntityName string `json:"entity_name" minLength:"1" doc:"Target schema entity name"`
	//nolint:lll
	SourceFields       []string            `json:"source_fields" minItems:"1" doc:"Source column names in dataset order"`
	SampleValues       map[string][]string `json:"sample_values,omitempty" doc:"Optional sample cell values per source field"`
	AllowSharedTargets bool                `json:"allow_shared_targets,omitempty" doc:"Permit several sources to map to one target"`
}

// MapInput is the Huma input for a mapping batch.
type MapInput struct {
	Body MapRequest
}

// MapOutput wraps the mapping result for Huma.
type MapOutput struct {
	Body domain.MapResult
}

func (s *Server) handleMapFields(ctx context.Context, input *MapInput) (*MapOutput, error) {
	result, err := s.services.Mapper.MapFields(ctx, &mapper.Request{
		EntityName:         input.Body.EntityName,
		SourceFields:       input.Body.SourceFields,
		SampleValues:       input.Body.SampleValues,
		AllowSharedTargets: input.Body.AllowSharedTargets,
	})
	if err != nil {
		return nil, err
	}
	return &MapOutput{Body: *result}, nil
}
