package models

// Hint stream names reported in Hints.Sources.
const (
	HintSourceOntology = "ontology"
	HintSourceGraph    = "graph"
	HintSourceHistory  = "history"
)

// ConceptMatch records a domain concept detected in the question.
type ConceptMatch struct {
	Name        string  `json:"name"`
	MatchedTerm string  `json:"matched_term"`
	Table       string  `json:"table,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// ColumnSuggestion points the generator at a column, with the confidence of
// the mapping and the stream that proposed it.
type ColumnSuggestion struct {
	Column     string  `json:"column"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// JoinSuggestion proposes a join path between two tables.
type JoinSuggestion struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Reason     string `json:"reason,omitempty"`
}

// SimilarQuery is a retrieved historical (question, SQL) pair.
type SimilarQuery struct {
	Question   string  `json:"question"`
	SQL        string  `json:"sql"`
	Similarity float64 `json:"similarity"`
}

// Hints is the merged semantic payload handed to the prompt builder.
// Every stream is optional; Sources lists the ones that contributed.
type Hints struct {
	DetectedConcepts []ConceptMatch                `json:"detected_concepts,omitempty"`
	SuggestedColumns map[string][]ColumnSuggestion `json:"suggested_columns,omitempty"`
	SuggestedJoins   []JoinSuggestion              `json:"suggested_joins,omitempty"`
	RelatedTables    []string                      `json:"related_tables,omitempty"`
	SimilarPastPairs []SimilarQuery                `json:"similar_past_pairs,omitempty"`
	Sources          []string                      `json:"sources,omitempty"`
}

// IsEmpty reports whether no stream contributed anything usable.
func (h *Hints) IsEmpty() bool {
	if h == nil {
		return true
	}
	return len(h.DetectedConcepts) == 0 &&
		len(h.SuggestedColumns) == 0 &&
		len(h.SuggestedJoins) == 0 &&
		len(h.RelatedTables) == 0 &&
		len(h.SimilarPastPairs) == 0
}
