package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/llm"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

func testOntology() *models.Ontology {
	return &models.Ontology{
		ConnectionID: "conn-1",
		DatabaseName: "shop",
		Concepts: []models.OntologyConcept{
			{
				Name:       "customer",
				Synonyms:   []string{"client", "buyer"},
				Table:      "public.customers",
				Confidence: 0.9,
				Properties: []models.OntologyProperty{
					{Name: "email", DataType: "text", Column: "email", Confidence: 0.95},
					{Name: "name", DataType: "text", Column: "full_name", Confidence: 0.8},
				},
			},
			{
				Name:       "order",
				Table:      "public.orders",
				Confidence: 0.85,
			},
		},
		Relationships: []models.ConceptRelationship{
			{From: "order", To: "customer", Label: "placed by"},
		},
	}
}

func TestOntologyRegistry_ResolvesPluralsAndSynonyms(t *testing.T) {
	r := NewOntologyRegistry()
	r.Register("conn-1", testOntology())

	concepts, columns := r.Resolve("conn-1", "how many customers do we have")
	require.Len(t, concepts, 1)
	assert.Equal(t, "customer", concepts[0].Name)
	assert.Equal(t, "customers", concepts[0].MatchedTerm)
	require.Contains(t, columns, "public.customers")
	assert.Equal(t, models.HintSourceOntology, columns["public.customers"][0].Source)

	concepts, _ = r.Resolve("conn-1", "list every client by name")
	require.Len(t, concepts, 1)
	assert.Equal(t, "client", concepts[0].MatchedTerm)
}

func TestOntologyRegistry_UnknownConnection(t *testing.T) {
	r := NewOntologyRegistry()
	concepts, columns := r.Resolve("missing", "customers")
	assert.Nil(t, concepts)
	assert.Nil(t, columns)
}

func TestInsightGraph_Insights(t *testing.T) {
	g := NewInsightGraph(zap.NewNop())
	g.IngestOntology("conn-1", testOntology())
	g.IngestSchema("conn-1", testSnapshot())

	insights := g.Insights("conn-1", "orders by customer")
	require.False(t, insights.IsEmpty())

	var names []string
	for _, c := range insights.Concepts {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "order")
	assert.Contains(t, names, "customer")

	// FK-derived join between matched tables
	require.NotEmpty(t, insights.Joins)
	assert.Equal(t, "public.orders", insights.Joins[0].FromTable)
	assert.Equal(t, "public.customers", insights.Joins[0].ToTable)

	// relationship edge out of "order"
	assert.Contains(t, insights.RelatedTables, "customer")
}

func TestInsightGraph_UnknownConnectionIsEmpty(t *testing.T) {
	g := NewInsightGraph(zap.NewNop())
	assert.True(t, g.Insights("nope", "customers").IsEmpty())
}

func TestHintsProvider_MergesStreamsAndReportsSources(t *testing.T) {
	registry := NewOntologyRegistry()
	registry.Register("conn-1", testOntology())

	graph := NewInsightGraph(zap.NewNop())
	graph.IngestOntology("conn-1", testOntology())
	graph.IngestSchema("conn-1", testSnapshot())

	embed := func(ctx context.Context, input, model string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	history := NewHistoryStore(&llm.MockClient{CreateEmbeddingFunc: embed}, zap.NewNop())
	history.Offer(context.Background(), models.HistoricalQuery{
		Question: "count customers",
		SQL:      "SELECT COUNT(*) FROM public.customers",
		Dialect:  "postgresql",
	})

	p := NewHintsProvider(registry, graph, history, zap.NewNop())
	hints := p.Gather(context.Background(), "conn-1", "how many customers", "postgresql", "")

	require.False(t, hints.IsEmpty())
	assert.ElementsMatch(t, hints.Sources, []string{
		models.HintSourceOntology, models.HintSourceGraph, models.HintSourceHistory,
	})
	require.Len(t, hints.SimilarPastPairs, 1)
	assert.Equal(t, "SELECT COUNT(*) FROM public.customers", hints.SimilarPastPairs[0].SQL)
}

func TestHintsProvider_OntologyWinsConfidenceTies(t *testing.T) {
	o := testOntology()
	o.Concepts[0].Properties = []models.OntologyProperty{
		{Name: "email", DataType: "text", Column: "email", Confidence: 0.9},
	}

	registry := NewOntologyRegistry()
	registry.Register("conn-1", o)

	hints := &models.Hints{
		SuggestedColumns: map[string][]models.ColumnSuggestion{
			"public.customers": {
				{Column: "email", Confidence: 0.9, Source: models.HintSourceOntology},
			},
		},
	}
	mergeGraphInsights(hints, &GraphInsights{
		Columns: map[string][]models.ColumnSuggestion{
			"public.customers": {
				{Column: "email", Confidence: 0.9, Source: models.HintSourceGraph},
			},
		},
	})

	cols := hints.SuggestedColumns["public.customers"]
	require.Len(t, cols, 1)
	assert.Equal(t, models.HintSourceOntology, cols[0].Source)
}

func TestHintsProvider_AllStreamsNil(t *testing.T) {
	p := NewHintsProvider(nil, nil, nil, zap.NewNop())
	hints := p.Gather(context.Background(), "conn-1", "anything", "postgresql", "")
	assert.True(t, hints.IsEmpty())
	assert.Empty(t, hints.Sources)
}

func TestHistoryStore_FiltersAndRanks(t *testing.T) {
	vectors := map[string][]float32{
		"how many orders":     {1, 0, 0},
		"count all orders":    {0.95, 0.05, 0},
		"list customer names": {0, 1, 0},
		"orders by month":     {0.9, 0.1, 0},
	}
	client := &llm.MockClient{
		CreateEmbeddingFunc: func(ctx context.Context, input, model string) ([]float32, error) {
			return vectors[input], nil
		},
	}
	store := NewHistoryStore(client, zap.NewNop(), WithTopK(2))

	offer := func(question, dialect, schema string) {
		store.Offer(context.Background(), models.HistoricalQuery{
			Question: question, SQL: "SELECT 1", Dialect: dialect, SchemaName: schema,
		})
	}
	offer("count all orders", "postgresql", "public")
	offer("orders by month", "postgresql", "public")
	offer("list customer names", "postgresql", "public")
	offer("count all orders", "mysql", "public")

	got, err := store.Similar(context.Background(), "how many orders", "postgresql", "public")
	require.NoError(t, err)
	require.Len(t, got, 2, "top-K applies after threshold and dialect filters")
	assert.Equal(t, "count all orders", got[0].Question)
	assert.Greater(t, got[0].Similarity, got[1].Similarity)
}

func TestHistoryStore_EmbeddingModelReachesClient(t *testing.T) {
	var seen []string
	client := &llm.MockClient{
		CreateEmbeddingFunc: func(ctx context.Context, input, model string) ([]float32, error) {
			seen = append(seen, model)
			return []float32{1, 0, 0}, nil
		},
	}
	store := NewHistoryStore(client, zap.NewNop(), WithEmbeddingModel("text-embedding-3-small"))

	store.Offer(context.Background(), models.HistoricalQuery{
		Question: "count orders", SQL: "SELECT 1", Dialect: "postgresql",
	})
	_, err := store.Similar(context.Background(), "count orders", "postgresql", "")
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "text-embedding-3-small", seen[0])
	assert.Equal(t, "text-embedding-3-small", seen[1])
}

func TestHistoryStore_NilClientIsInert(t *testing.T) {
	store := NewHistoryStore(nil, zap.NewNop())
	store.Offer(context.Background(), models.HistoricalQuery{Question: "q"})
	got, err := store.Similar(context.Background(), "q", "postgresql", "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.Len())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 0}), "length mismatch")
}
