package models

// ErrorKind classifies a database execution failure.
type ErrorKind string

const (
	ErrorKindMissingColumn ErrorKind = "missing_column"
	ErrorKindMissingTable  ErrorKind = "missing_table"
	ErrorKindTypeMismatch  ErrorKind = "type_mismatch"
	ErrorKindSyntax        ErrorKind = "syntax"
	ErrorKindUnknown       ErrorKind = "unknown"
)

// ErrorAnalysis is the structured interpretation of one native database
// error, ready to be folded into the next generation prompt.
type ErrorAnalysis struct {
	Kind                 ErrorKind `json:"kind"`
	OffendingIdentifiers []string  `json:"offending_identifiers,omitempty"`
	Suggestions          []string  `json:"suggestions,omitempty"`
	ColumnTypesCited     []string  `json:"column_types_cited,omitempty"`
	Hints                []string  `json:"hints,omitempty"`
}

// HasGuidance reports whether the analysis produced anything beyond a bare
// classification.
func (a *ErrorAnalysis) HasGuidance() bool {
	return len(a.Suggestions) > 0 || len(a.Hints) > 0
}
