package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/search"
)

func (s *Server) registerSchemaRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listSchemas",
		Method:      http.MethodGet,
		Path:        "/api/v1/schemas",
		Summary:     "List target schemas",
		Tags:        []string{"Schemas"},
	}, s.handleListSchemas)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSchema",
		Method:      http.MethodGet,
		Path:        "/api/v1/schemas/{entity}",
		Summary:     "Get a target schema",
		Tags:        []string{"Schemas"},
	}, s.handleGetSchema)

	huma.Register(s.api, huma.Operation{
		OperationID: "suggestTargets",
		Method:      http.MethodGet,
		Path:        "/api/v1/schemas/{entity}/suggest",
		Summary:     "Suggest target fields",
		Description: "Full-text lookup over the entity's schema fields for manual mapping review",
		Tags:        []string{"Schemas"},
	}, s.handleSuggestTargets)
}

// SchemaSummary is one entry in the schema list.
type SchemaSummary struct {
	EntityName string `json:"entity_name"`
	Version    string `json:"version"`
	FieldCount int    `json:"field_count"`
}

// ListSchemasOutput wraps the schema list for Huma.
type ListSchemasOutput struct {
	Body struct {
		Schemas []SchemaSummary `json:"schemas"`
	}
}

func (s *Server) handleListSchemas(_ context.Context, _ *struct{}) (*ListSchemasOutput, error) {
	out := &ListSchemasOutput{}
	out.Body.Schemas = []SchemaSummary{}
	for _, entity := range s.services.Registry.List() {
		schema, err := s.services.Registry.Get(entity)
		if err != nil {
			continue
		}
		out.Body.Schemas = append(out.Body.Schemas, SchemaSummary{
			EntityName: schema.EntityName,
			Version:    schema.Version,
			FieldCount: len(schema.Fields),
		})
	}
	return out, nil
}

// GetSchemaInput identifies one schema.
type GetSchemaInput struct {
	Entity string `path:"entity" doc:"Entity name"`
}

// GetSchemaOutput wraps one schema for Huma.
type GetSchemaOutput struct {
	Body domain.TargetSchema
}

func (s *Server) handleGetSchema(_ context.Context, input *GetSchemaInput) (*GetSchemaOutput, error) {
	schema, err := s.services.Registry.Get(input.Entity)
	if err != nil {
		return nil, err
	}
	return &GetSchemaOutput{Body: *schema}, nil
}

// SuggestInput parameterizes the target field lookup.
type SuggestInput struct {
	Entity string `path:"entity" doc:"Entity name"`
	Query  string `query:"q" required:"true" minLength:"1" doc:"Partial or misspelled field name"`
	Limit  int    `query:"limit" default:"10" minimum:"1" maximum:"50" doc:"Maximum suggestions"`
}

// SuggestOutput wraps the suggestions for Huma.
type SuggestOutput struct {
	Body struct {
		Suggestions []search.Suggestion `json:"suggestions"`
	}
}

func (s *Server) handleSuggestTargets(ctx context.Context, input *SuggestInput) (*SuggestOutput, error) {
	// 404 for unknown entities, matching the other schema routes.
	if _, err := s.services.Registry.Get(input.Entity); err != nil {
		return nil, err
	}

	suggestions, err := s.services.Suggest.Suggest(ctx, search.SuggestParams{
		Entity: input.Entity,
		Query:  input.Query,
		Limit:  input.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := &SuggestOutput{}
	out.Body.Suggestions = suggestions
	if out.Body.Suggestions == nil {
		out.Body.Suggestions = []search.Suggestion{}
	}
	return out, nil
}
