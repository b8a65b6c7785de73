package services

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// GraphInsights is what the graph stream contributes for one question.
type GraphInsights struct {
	Concepts      []models.ConceptMatch
	Columns       map[string][]models.ColumnSuggestion
	Joins         []models.JoinSuggestion
	RelatedTables []string
}

// IsEmpty reports whether the graph had nothing relevant.
func (g *GraphInsights) IsEmpty() bool {
	return g == nil ||
		(len(g.Concepts) == 0 && len(g.Columns) == 0 &&
			len(g.Joins) == 0 && len(g.RelatedTables) == 0)
}

type connectionGraph struct {
	concepts []models.OntologyConcept
	joins    []models.JoinSuggestion
	// adjacency over concept/table names, following relationships and FKs
	edges map[string][]string
}

// InsightGraph is the in-process directed graph used when no external
// knowledge store is configured. It is keyed by connection ID and fed from
// generated ontologies and schema foreign keys.
type InsightGraph struct {
	mu     sync.RWMutex
	conns  map[string]*connectionGraph
	logger *zap.Logger
}

// NewInsightGraph wires an empty graph.
func NewInsightGraph(logger *zap.Logger) *InsightGraph {
	return &InsightGraph{
		conns:  make(map[string]*connectionGraph),
		logger: logger.Named("insight-graph"),
	}
}

func (g *InsightGraph) graphFor(connectionID string) *connectionGraph {
	cg, ok := g.conns[connectionID]
	if !ok {
		cg = &connectionGraph{edges: make(map[string][]string)}
		g.conns[connectionID] = cg
	}
	return cg
}

// IngestOntology merges an ontology's concepts and relationships into the
// connection's graph.
func (g *InsightGraph) IngestOntology(connectionID string, o *models.Ontology) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cg := g.graphFor(connectionID)
	cg.concepts = append([]models.OntologyConcept(nil), o.Concepts...)
	for _, r := range o.Relationships {
		cg.edges[r.From] = appendUnique(cg.edges[r.From], r.To)
	}
	g.logger.Debug("ontology ingested into graph",
		zap.String("connection_id", connectionID),
		zap.Int("concepts", len(o.Concepts)))
}

// IngestSchema derives join edges from the snapshot's foreign keys.
func (g *InsightGraph) IngestSchema(connectionID string, snap *models.SchemaSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cg := g.graphFor(connectionID)
	cg.joins = cg.joins[:0]
	for _, t := range snap.Tables {
		for _, fk := range t.ForeignKeys {
			cg.joins = append(cg.joins, models.JoinSuggestion{
				FromTable:  t.FullName,
				FromColumn: fk.Column,
				ToTable:    fk.ReferencesTable,
				ToColumn:   fk.ReferencesColumn,
				Reason:     "foreign key",
			})
			cg.edges[t.FullName] = appendUnique(cg.edges[t.FullName], fk.ReferencesTable)
		}
	}
}

// Insights scores the connection's concepts against the question. The
// relevance score combines mapping confidence with textual overlap; columns
// come back ordered by that score.
func (g *InsightGraph) Insights(connectionID, question string) *GraphInsights {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cg, ok := g.conns[connectionID]
	if !ok {
		return &GraphInsights{}
	}

	terms := questionTerms(question)
	out := &GraphInsights{Columns: make(map[string][]models.ColumnSuggestion)}
	matchedTables := make(map[string]bool)

	for _, concept := range cg.concepts {
		term, overlap := conceptOverlap(concept, terms)
		if overlap == 0 {
			continue
		}

		out.Concepts = append(out.Concepts, models.ConceptMatch{
			Name:        concept.Name,
			MatchedTerm: term,
			Table:       concept.Table,
			Confidence:  concept.Confidence,
		})
		matchedTables[concept.Table] = true

		for _, p := range concept.Properties {
			out.Columns[concept.Table] = append(out.Columns[concept.Table], models.ColumnSuggestion{
				Column:     p.Column,
				Confidence: relevanceScore(p.Confidence, overlap),
				Source:     models.HintSourceGraph,
			})
		}

		// one hop out along relationships and FK edges
		for _, neighbor := range cg.edges[concept.Name] {
			out.RelatedTables = appendUnique(out.RelatedTables, neighbor)
		}
		for _, neighbor := range cg.edges[concept.Table] {
			out.RelatedTables = appendUnique(out.RelatedTables, neighbor)
		}
	}

	for _, j := range cg.joins {
		if matchedTables[j.FromTable] || matchedTables[j.ToTable] {
			out.Joins = append(out.Joins, j)
		}
	}

	for table := range out.Columns {
		cols := out.Columns[table]
		sort.SliceStable(cols, func(i, j int) bool {
			return cols[i].Confidence > cols[j].Confidence
		})
	}
	sort.Strings(out.RelatedTables)
	return out
}

// relevanceScore weights the stored mapping confidence by how strongly the
// question overlaps the concept.
func relevanceScore(confidence, overlap float64) float64 {
	return confidence*0.7 + overlap*0.3
}

// conceptOverlap returns the first matching term and the overlap strength:
// 1.0 for an exact name or synonym hit, 0.5 for a containment hit.
func conceptOverlap(concept models.OntologyConcept, terms []string) (string, float64) {
	candidates := append([]string{concept.Name}, concept.Synonyms...)
	for _, c := range candidates {
		lc := strings.ToLower(c)
		for _, term := range terms {
			if term == lc {
				return term, 1.0
			}
		}
	}
	for _, c := range candidates {
		lc := strings.ToLower(c)
		for _, term := range terms {
			if strings.Contains(lc, term) || strings.Contains(term, lc) {
				return term, 0.5
			}
		}
	}
	return "", 0
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
