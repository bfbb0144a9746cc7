package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// document is what gets indexed for each bookmark.
type document struct {
	OwnerID     string  `json:"owner_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Domain      string  `json:"domain"`
	CreatedAt   float64 `json:"created_at"`
}

// buildIndexMapping maps title and description through the English
// analyzer, keeps the owner as an exact keyword and splits domains on
// punctuation so "react.dev" matches "react".
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	ownerField := bleve.NewTextFieldMapping()
	ownerField.Analyzer = keyword.Name
	ownerField.Store = false
	docMapping.AddFieldMappingsAt("owner_id", ownerField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = en.AnalyzerName
	titleField.Store = false
	docMapping.AddFieldMappingsAt("title", titleField)

	descField := bleve.NewTextFieldMapping()
	descField.Analyzer = en.AnalyzerName
	descField.Store = false
	docMapping.AddFieldMappingsAt("description", descField)

	domainField := bleve.NewTextFieldMapping()
	domainField.Analyzer = simple.Name
	domainField.Store = false
	docMapping.AddFieldMappingsAt("domain", domainField)

	createdField := bleve.NewNumericFieldMapping()
	createdField.Store = false
	docMapping.AddFieldMappingsAt("created_at", createdField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
