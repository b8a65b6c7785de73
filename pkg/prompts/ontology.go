package prompts

import (
	"fmt"
	"strings"

	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// OntologyExtractionSystem frames the extraction task for the model.
const OntologyExtractionSystem = `You are a data modeler. Given database tables, extract the business concepts they represent, their synonyms, and the columns that carry each concept's properties.`

// BuildOntologyExtractionPrompt renders one batch of tables for concept
// extraction and demands the JSON shape the ontology builder parses.
func BuildOntologyExtractionPrompt(tables []models.TableDescriptor) string {
	var b strings.Builder

	b.WriteString("# Tables\n\n")
	for _, table := range tables {
		fmt.Fprintf(&b, "## %s\n", table.FullName)
		for _, col := range table.Columns {
			fmt.Fprintf(&b, "- %s %s", col.Name, col.DataType)
			if col.PrimaryKey {
				b.WriteString(" [pk]")
			}
			if !col.Nullable {
				b.WriteString(" [not null]")
			}
			b.WriteString("\n")
		}
		for _, fk := range table.ForeignKeys {
			fmt.Fprintf(&b, "- fk: %s -> %s.%s\n", fk.Column, fk.ReferencesTable, fk.ReferencesColumn)
		}
		b.WriteString("\n")
	}

	b.WriteString(`# Task

For each table, name the singular business concept it represents, list common
synonyms a user might say, and map its meaningful columns to concept
properties with a confidence between 0 and 1. Derive relationships from the
foreign keys.

Respond with exactly one JSON object:
{
  "concepts": [
    {"name": "...", "description": "...", "synonyms": ["..."], "table": "schema.table",
     "properties": [{"name": "...", "data_type": "...", "column": "...", "confidence": 0.9}],
     "confidence": 0.9}
  ],
  "relationships": [
    {"from": "...", "to": "...", "label": "..."}
  ]
}
No markdown fences, no commentary.`)

	return b.String()
}
