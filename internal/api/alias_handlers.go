package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
)

func (s *Server) registerAliasRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listAliasRules",
		Method:      http.MethodGet,
		Path:        "/api/v1/aliases/{entity}",
		Summary:     "List alias rules",
		Description: "Returns the declared and learned alias rules for an entity, including superseded history",
		Tags:        []string{"Aliases"},
	}, s.handleListAliasRules)
}

// DeclaredAlias is a schema-declared alias surfaced alongside learned rules.
type DeclaredAlias struct {
	Alias  string `json:"alias"`
	Target string `json:"target"`
}

// AliasRulesInput identifies the entity.
type AliasRulesInput struct {
	Entity string `path:"entity" doc:"Entity name"`
}

// AliasRulesOutput wraps the alias listing for Huma.
type AliasRulesOutput struct {
	Body struct {
		Declared []DeclaredAlias    `json:"declared"`
		Learned  []domain.AliasRule `json:"learned"`
	}
}

func (s *Server) handleListAliasRules(ctx context.Context, input *AliasRulesInput) (*AliasRulesOutput, error) {
	schema, err := s.services.Registry.Get(input.Entity)
	if err != nil {
		return nil, err
	}

	out := &AliasRulesOutput{}
	out.Body.Declared = []DeclaredAlias{}
	for i := range schema.Fields {
		for _, alias := range schema.Fields[i].Aliases {
			out.Body.Declared = append(out.Body.Declared, DeclaredAlias{
				Alias:  alias,
				Target: schema.Fields[i].Name,
			})
		}
	}

	rules, err := s.services.Rules.ListAliasRules(ctx, input.Entity)
	if err != nil {
		return nil, err
	}
	out.Body.Learned = rules
	if out.Body.Learned == nil {
		out.Body.Learned = []domain.AliasRule{}
	}
	return out, nil
}
