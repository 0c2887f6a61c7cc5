package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve mapping for schema field documents.
//
// Field names and aliases use the simple analyzer so "EMP_NO" tokenizes to
// [emp, no] without English stemming mangling short identifier words.
// Descriptions get the English analyzer for natural-language matching.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	// Field name - primary match target, boosted at query time
	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name
	nameFieldMapping.Store = true
	nameFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	// Display name - human-friendly label
	displayFieldMapping := bleve.NewTextFieldMapping()
	displayFieldMapping.Analyzer = simple.Name
	displayFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("display_name", displayFieldMapping)

	// Declared aliases - same treatment as the name
	aliasesFieldMapping := bleve.NewTextFieldMapping()
	aliasesFieldMapping.Analyzer = simple.Name
	aliasesFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("aliases", aliasesFieldMapping)

	// Description - natural language, searchable but larger
	descFieldMapping := bleve.NewTextFieldMapping()
	descFieldMapping.Analyzer = en.AnalyzerName
	descFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("description", descFieldMapping)

	// Entity - exact filter per target schema
	entityFieldMapping := bleve.NewTextFieldMapping()
	entityFieldMapping.Analyzer = keyword.Name
	entityFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("entity", entityFieldMapping)

	// Field type - exact filter
	typeFieldMapping := bleve.NewTextFieldMapping()
	typeFieldMapping.Analyzer = keyword.Name
	typeFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("type", typeFieldMapping)

	// Required flag - stored for display
	requiredFieldMapping := bleve.NewBooleanFieldMapping()
	requiredFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("required", requiredFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
