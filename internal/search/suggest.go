package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SuggestParams configures a target field lookup.
type SuggestParams struct {
	Entity string // Target schema to search within (required)
	Query  string // User's partial or misspelled field name
	Limit  int
}

// Suggestion is one matching schema field.
type Suggestion struct {
	Field       string  `json:"field"`
	DisplayName string  `json:"display_name,omitempty"`
	Description string  `json:"description,omitempty"`
	Type        string  `json:"type"`
	Required    bool    `json:"required"`
	Score       float64 `json:"score"`
}

// Suggest returns schema fields matching the query, best first. Matching is
// forgiving: analyzed match on name and aliases, fuzzy for typos, prefix for
// autocomplete, plus description text.
func (s *SuggestIndex) Suggest(ctx context.Context, params SuggestParams) ([]Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}

	searchQuery := buildSuggestQuery(params)
	req := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	req.Fields = []string{"name", "display_name", "description", "type", "required"}

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute suggest query: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(result.Hits))
	for _, hit := range result.Hits {
		sg := Suggestion{Score: hit.Score}
		if v, ok := hit.Fields["name"].(string); ok {
			sg.Field = v
		}
		if v, ok := hit.Fields["display_name"].(string); ok {
			sg.DisplayName = v
		}
		if v, ok := hit.Fields["description"].(string); ok {
			sg.Description = v
		}
		if v, ok := hit.Fields["type"].(string); ok {
			sg.Type = v
		}
		if v, ok := hit.Fields["required"].(bool); ok {
			sg.Required = v
		}
		suggestions = append(suggestions, sg)
	}
	return suggestions, nil
}

func buildSuggestQuery(params SuggestParams) query.Query {
	var queries []query.Query

	if params.Query != "" {
		textQueries := []query.Query{}

		// Field name match with highest boost
		nameMatch := bleve.NewMatchQuery(params.Query)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)
		textQueries = append(textQueries, nameMatch)

		// Declared aliases count nearly as much as the name
		aliasMatch := bleve.NewMatchQuery(params.Query)
		aliasMatch.SetField("aliases")
		aliasMatch.SetBoost(2.5)
		textQueries = append(textQueries, aliasMatch)

		// Display name
		displayMatch := bleve.NewMatchQuery(params.Query)
		displayMatch.SetField("display_name")
		displayMatch.SetBoost(2.0)
		textQueries = append(textQueries, displayMatch)

		// Description text, lowest boost
		descMatch := bleve.NewMatchQuery(params.Query)
		descMatch.SetField("description")
		descMatch.SetBoost(1.0)
		textQueries = append(textQueries, descMatch)

		// Typo tolerance on the field name
		fuzzyQuery := bleve.NewFuzzyQuery(strings.ToLower(params.Query))
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("name")
		fuzzyQuery.SetBoost(0.8)
		textQueries = append(textQueries, fuzzyQuery)

		// Prefix for autocomplete (minimum 2 chars)
		if len(params.Query) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefixQuery.SetField("name")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	// Entity filter
	if params.Entity != "" {
		tq := bleve.NewTermQuery(params.Entity)
		tq.SetField("entity")
		queries = append(queries, tq)
	}

	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewConjunctionQuery(queries...)
}
