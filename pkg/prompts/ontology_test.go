package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/indaba-ai/indaba-engine/pkg/models"
)

func TestBuildOntologyExtractionPrompt(t *testing.T) {
	tables := []models.TableDescriptor{
		{
			FullName: "public.orders",
			Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "integer", PrimaryKey: true},
				{Name: "customer_id", DataType: "integer"},
				{Name: "total", DataType: "numeric", Nullable: true},
			},
			ForeignKeys: []models.ForeignKey{
				{Column: "customer_id", ReferencesTable: "public.customers", ReferencesColumn: "id"},
			},
		},
	}

	prompt := BuildOntologyExtractionPrompt(tables)

	assert.Contains(t, prompt, "## public.orders")
	assert.Contains(t, prompt, "- id integer [pk]")
	assert.Contains(t, prompt, "fk: customer_id -> public.customers.id")
	assert.Contains(t, prompt, `"concepts"`)
	assert.Contains(t, prompt, `"relationships"`)
}
