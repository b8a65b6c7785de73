package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// OntologyRegistry keeps the generated ontology per connection and resolves
// question terms against concept names and synonyms.
type OntologyRegistry struct {
	mu           sync.RWMutex
	byConnection map[string]*models.Ontology
}

// NewOntologyRegistry wires an empty registry.
func NewOntologyRegistry() *OntologyRegistry {
	return &OntologyRegistry{byConnection: make(map[string]*models.Ontology)}
}

// Register stores (or replaces) the ontology for a connection.
func (r *OntologyRegistry) Register(connectionID string, o *models.Ontology) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConnection[connectionID] = o
}

// Get returns the ontology for a connection, or nil.
func (r *OntologyRegistry) Get(connectionID string) *models.Ontology {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConnection[connectionID]
}

// Resolve matches the question against the connection's concepts. Plural
// question terms match singular concept names.
func (r *OntologyRegistry) Resolve(connectionID, question string) ([]models.ConceptMatch, map[string][]models.ColumnSuggestion) {
	o := r.Get(connectionID)
	if o == nil {
		return nil, nil
	}

	terms := questionTerms(question)
	singulars := make([]string, len(terms))
	for i, t := range terms {
		singulars[i] = inflection.Singular(t)
	}

	var matches []models.ConceptMatch
	columns := make(map[string][]models.ColumnSuggestion)

	for _, concept := range o.Concepts {
		term := matchConceptTerm(concept, terms, singulars)
		if term == "" {
			continue
		}
		matches = append(matches, models.ConceptMatch{
			Name:        concept.Name,
			MatchedTerm: term,
			Table:       concept.Table,
			Confidence:  concept.Confidence,
		})
		for _, p := range concept.Properties {
			columns[concept.Table] = append(columns[concept.Table], models.ColumnSuggestion{
				Column:     p.Column,
				Confidence: p.Confidence,
				Source:     models.HintSourceOntology,
			})
		}
	}
	if len(columns) == 0 {
		columns = nil
	}
	return matches, columns
}

func matchConceptTerm(concept models.OntologyConcept, terms, singulars []string) string {
	names := append([]string{concept.Name}, concept.Synonyms...)
	for _, name := range names {
		low := strings.ToLower(name)
		for i, term := range terms {
			if term == low || singulars[i] == low {
				return term
			}
		}
	}
	return ""
}

// HintsProvider merges the ontology, graph, and similar-query streams into
// one Hints payload. Every stream is optional; Sources records which ones
// contributed. On a confidence tie the ontology's column mapping wins.
type HintsProvider struct {
	ontology *OntologyRegistry
	graph    *InsightGraph
	history  *HistoryStore
	logger   *zap.Logger
}

// NewHintsProvider wires the provider; any stream may be nil.
func NewHintsProvider(ontology *OntologyRegistry, graph *InsightGraph, history *HistoryStore, logger *zap.Logger) *HintsProvider {
	return &HintsProvider{
		ontology: ontology,
		graph:    graph,
		history:  history,
		logger:   logger.Named("hints-provider"),
	}
}

// Gather collects and merges all available streams. It never fails: a
// broken stream is skipped and the rest still contribute.
func (p *HintsProvider) Gather(ctx context.Context, connectionID, question, dialect, schemaName string) *models.Hints {
	hints := &models.Hints{}

	if p.ontology != nil {
		concepts, columns := p.ontology.Resolve(connectionID, question)
		if len(concepts) > 0 || len(columns) > 0 {
			hints.DetectedConcepts = concepts
			hints.SuggestedColumns = columns
			hints.Sources = append(hints.Sources, models.HintSourceOntology)
		}
	}

	if p.graph != nil {
		insights := p.graph.Insights(connectionID, question)
		if !insights.IsEmpty() {
			mergeGraphInsights(hints, insights)
			hints.Sources = append(hints.Sources, models.HintSourceGraph)
		}
	}

	if p.history != nil {
		similar, err := p.history.Similar(ctx, question, dialect, schemaName)
		if err != nil {
			p.logger.Warn("similar-query retrieval failed", zap.Error(err))
		} else if len(similar) > 0 {
			hints.SimilarPastPairs = similar
			hints.Sources = append(hints.Sources, models.HintSourceHistory)
		}
	}

	return hints
}

// mergeGraphInsights folds graph output into hints already seeded by the
// ontology stream. Concepts dedupe by name; column suggestions sort by
// confidence with ontology entries ahead on ties.
func mergeGraphInsights(hints *models.Hints, insights *GraphInsights) {
	seen := make(map[string]bool, len(hints.DetectedConcepts))
	for _, c := range hints.DetectedConcepts {
		seen[c.Name] = true
	}
	for _, c := range insights.Concepts {
		if !seen[c.Name] {
			hints.DetectedConcepts = append(hints.DetectedConcepts, c)
		}
	}

	if len(insights.Columns) > 0 && hints.SuggestedColumns == nil {
		hints.SuggestedColumns = make(map[string][]models.ColumnSuggestion)
	}
	for table, cols := range insights.Columns {
		merged := append(hints.SuggestedColumns[table], cols...)
		sort.SliceStable(merged, func(i, j int) bool {
			if merged[i].Confidence != merged[j].Confidence {
				return merged[i].Confidence > merged[j].Confidence
			}
			return merged[i].Source == models.HintSourceOntology &&
				merged[j].Source != models.HintSourceOntology
		})
		hints.SuggestedColumns[table] = dedupeColumns(merged)
	}

	hints.SuggestedJoins = append(hints.SuggestedJoins, insights.Joins...)
	for _, t := range insights.RelatedTables {
		hints.RelatedTables = appendUnique(hints.RelatedTables, t)
	}
}

// dedupeColumns keeps the first (highest-ranked) suggestion per column.
func dedupeColumns(cols []models.ColumnSuggestion) []models.ColumnSuggestion {
	seen := make(map[string]bool, len(cols))
	out := cols[:0]
	for _, c := range cols {
		if seen[c.Column] {
			continue
		}
		seen[c.Column] = true
		out = append(out, c)
	}
	return out
}
