package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// Native error shapes across the supported engines. Postgres quotes
// identifiers, MySQL uses single quotes, Oracle prefixes an ORA code.
var (
	reColumnQualified = regexp.MustCompile(`(?i)column "([^".]+)\.([^"]+)" does not exist`)
	reColumnBare      = regexp.MustCompile(`(?i)column "([^"]+)" does not exist`)
	reColumnMySQL     = regexp.MustCompile(`(?i)unknown column '(?:([^'.]+)\.)?([^']+)' in`)
	reColumnOracle    = regexp.MustCompile(`ORA-00904[^"]*"([^"]+)"`)

	reTableMissing = regexp.MustCompile(`(?i)(?:table|relation) "([^"]+)" does not exist`)
	reTableMySQL   = regexp.MustCompile(`(?i)table '(?:[^'.]+\.)?([^']+)' doesn't exist`)
	reTableOracle  = regexp.MustCompile(`ORA-00942`)

	reOperatorTypes  = regexp.MustCompile(`(?i)operator does not exist: (.+?) [=<>!~]+ ([^\s(]+)`)
	reNoOperator     = regexp.MustCompile(`(?i)no operator matches`)
	reComparisonPair = regexp.MustCompile(`(\w+)\.(\w+)\s*=\s*(\w+)\.(\w+)`)

	reSyntaxNear   = regexp.MustCompile(`(?i)syntax error at or near "([^"]+)"`)
	reSyntaxMySQL  = regexp.MustCompile(`(?i)error in your SQL syntax.*near '([^']{1,40})`)
	reSyntaxOracle = regexp.MustCompile(`ORA-009(?:33|36)`)
)

const (
	maxColumnEditDistance = 2
	maxTableEditDistance  = 3
	maxCandidateTables    = 3
	maxListedColumns      = 5
)

// ErrorAnalyzer turns a native database error into a classification plus
// deterministic hint lines for the next generation attempt.
type ErrorAnalyzer struct {
	logger *zap.Logger
}

// NewErrorAnalyzer wires the analyzer.
func NewErrorAnalyzer(logger *zap.Logger) *ErrorAnalyzer {
	return &ErrorAnalyzer{logger: logger.Named("error-analyzer")}
}

// Analyze classifies message against the snapshot. failedSQL is consulted
// only for type mismatches, where the comparison pairs live in the query
// rather than the message.
func (a *ErrorAnalyzer) Analyze(message, failedSQL string, snap *models.SchemaSnapshot, dialect datasource.Dialect) *models.ErrorAnalysis {
	normalized := strings.TrimSpace(message)

	analysis := a.classify(normalized, failedSQL, snap, dialect)
	a.logger.Debug("error analyzed",
		zap.String("kind", string(analysis.Kind)),
		zap.Strings("identifiers", analysis.OffendingIdentifiers))
	return analysis
}

func (a *ErrorAnalyzer) classify(message, failedSQL string, snap *models.SchemaSnapshot, dialect datasource.Dialect) *models.ErrorAnalysis {
	if m := reColumnQualified.FindStringSubmatch(message); m != nil {
		return a.missingColumn(m[1], m[2], snap)
	}
	if m := reColumnMySQL.FindStringSubmatch(message); m != nil {
		return a.missingColumn(m[1], m[2], snap)
	}
	if m := reColumnOracle.FindStringSubmatch(message); m != nil {
		table, column := splitQualified(m[1])
		return a.missingColumn(table, column, snap)
	}
	if m := reColumnBare.FindStringSubmatch(message); m != nil {
		return a.missingColumn("", m[1], snap)
	}

	if m := reTableMissing.FindStringSubmatch(message); m != nil {
		return a.missingTable(m[1], snap)
	}
	if m := reTableMySQL.FindStringSubmatch(message); m != nil {
		return a.missingTable(m[1], snap)
	}
	if reTableOracle.MatchString(message) {
		return a.missingTable("", snap)
	}

	if m := reOperatorTypes.FindStringSubmatch(message); m != nil {
		return a.typeMismatch(m[1], m[2], failedSQL, snap, dialect)
	}
	if reNoOperator.MatchString(message) {
		return a.typeMismatch("", "", failedSQL, snap, dialect)
	}

	if m := reSyntaxNear.FindStringSubmatch(message); m != nil {
		return syntaxAnalysis(m[1])
	}
	if m := reSyntaxMySQL.FindStringSubmatch(message); m != nil {
		return syntaxAnalysis(strings.TrimSpace(m[1]))
	}
	if reSyntaxOracle.MatchString(message) {
		return syntaxAnalysis("")
	}

	return &models.ErrorAnalysis{
		Kind:  models.ErrorKindUnknown,
		Hints: []string{"Review the query against the schema and the dialect's syntax rules."},
	}
}

func splitQualified(identifier string) (table, column string) {
	if i := strings.LastIndex(identifier, "."); i >= 0 {
		return identifier[:i], identifier[i+1:]
	}
	return "", identifier
}

// missingColumn resolves the table reference and proposes the closest
// existing columns.
func (a *ErrorAnalyzer) missingColumn(tableRef, column string, snap *models.SchemaSnapshot) *models.ErrorAnalysis {
	analysis := &models.ErrorAnalysis{Kind: models.ErrorKindMissingColumn}
	if tableRef != "" {
		analysis.OffendingIdentifiers = append(analysis.OffendingIdentifiers, tableRef+"."+column)
	} else {
		analysis.OffendingIdentifiers = append(analysis.OffendingIdentifiers, column)
	}

	tables := a.resolveTables(tableRef, snap)

	for _, t := range tables {
		best, dist := closestName(column, t.ColumnNames())
		if best != "" && dist <= maxColumnEditDistance {
			analysis.Suggestions = append(analysis.Suggestions, t.FullName+"."+best)
			analysis.Hints = append(analysis.Hints, fmt.Sprintf(
				"Column %q does not exist on %s. Did you mean %q?", column, t.FullName, best))
		}
		analysis.Hints = append(analysis.Hints, fmt.Sprintf(
			"Columns on %s: %s", t.FullName, joinCapped(t.ColumnNames(), maxListedColumns)))
	}
	if len(analysis.Hints) == 0 {
		analysis.Hints = append(analysis.Hints, fmt.Sprintf(
			"Column %q does not exist. Use only columns from the provided schema.", column))
	}
	return analysis
}

// resolveTables maps a table reference to snapshot tables: exact name, then
// starts-with, then initials of underscore-split words (ui -> user_invoices).
// An empty reference yields every table.
func (a *ErrorAnalyzer) resolveTables(ref string, snap *models.SchemaSnapshot) []models.TableDescriptor {
	if ref == "" {
		return snap.Tables
	}
	lowRef := strings.ToLower(ref)

	for _, t := range snap.Tables {
		if strings.EqualFold(t.TableName, ref) || strings.EqualFold(t.FullName, ref) {
			return []models.TableDescriptor{t}
		}
	}

	var matches []models.TableDescriptor
	for _, t := range snap.Tables {
		if strings.HasPrefix(strings.ToLower(t.TableName), lowRef) {
			matches = append(matches, t)
		}
	}
	if len(matches) > 0 {
		return matches
	}

	for _, t := range snap.Tables {
		if tableInitials(t.TableName) == lowRef {
			matches = append(matches, t)
		}
	}
	return matches
}

func tableInitials(tableName string) string {
	var b strings.Builder
	for _, word := range strings.Split(strings.ToLower(tableName), "_") {
		if word != "" {
			b.WriteByte(word[0])
		}
	}
	return b.String()
}

// missingTable proposes tables within edit distance, each with a column
// preview.
func (a *ErrorAnalyzer) missingTable(tableRef string, snap *models.SchemaSnapshot) *models.ErrorAnalysis {
	analysis := &models.ErrorAnalysis{Kind: models.ErrorKindMissingTable}
	if tableRef == "" {
		analysis.Hints = append(analysis.Hints, fmt.Sprintf(
			"Table not found. Available tables: %s", joinCapped(snap.TableNames(), maxListedColumns)))
		return analysis
	}
	analysis.OffendingIdentifiers = append(analysis.OffendingIdentifiers, tableRef)

	type candidate struct {
		table models.TableDescriptor
		dist  int
	}
	var candidates []candidate
	for _, t := range snap.Tables {
		d := nameDistance(tableRef, t.TableName)
		if d <= maxTableEditDistance {
			candidates = append(candidates, candidate{table: t, dist: d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].table.FullName < candidates[j].table.FullName
	})
	if len(candidates) > maxCandidateTables {
		candidates = candidates[:maxCandidateTables]
	}

	for _, c := range candidates {
		analysis.Suggestions = append(analysis.Suggestions, c.table.FullName)
		analysis.Hints = append(analysis.Hints, fmt.Sprintf(
			"Table %q does not exist. Did you mean %s (columns: %s)?",
			tableRef, c.table.FullName, joinCapped(c.table.ColumnNames(), maxListedColumns)))
	}
	if len(candidates) == 0 {
		analysis.Hints = append(analysis.Hints, fmt.Sprintf(
			"Table %q does not exist. Available tables: %s",
			tableRef, joinCapped(snap.TableNames(), maxListedColumns)))
	}
	return analysis
}

// typeMismatch extracts alias.col = alias.col comparisons from the failed
// SQL and proposes casts that align the cited types.
func (a *ErrorAnalyzer) typeMismatch(leftType, rightType, failedSQL string, snap *models.SchemaSnapshot, dialect datasource.Dialect) *models.ErrorAnalysis {
	analysis := &models.ErrorAnalysis{Kind: models.ErrorKindTypeMismatch}
	if leftType != "" {
		analysis.ColumnTypesCited = []string{leftType, rightType}
		analysis.Hints = append(analysis.Hints, fmt.Sprintf(
			"The comparison mixes %s and %s; cast one side so the types align.", leftType, rightType))
	} else {
		analysis.Hints = append(analysis.Hints,
			"A comparison mixes incompatible types; cast one side so the types align.")
	}

	for _, m := range reComparisonPair.FindAllStringSubmatch(failedSQL, -1) {
		leftCol, leftColType := lookupColumnType(snap, m[1], m[2])
		rightCol, rightColType := lookupColumnType(snap, m[3], m[4])
		if leftColType == "" || rightColType == "" || strings.EqualFold(leftColType, rightColType) {
			continue
		}

		cast := castExpression(dialect, leftCol, rightColType)
		analysis.OffendingIdentifiers = append(analysis.OffendingIdentifiers, leftCol, rightCol)
		analysis.Suggestions = append(analysis.Suggestions, cast)
		analysis.Hints = append(analysis.Hints, fmt.Sprintf(
			"%s is %s but %s is %s. Try %s = %s.",
			leftCol, leftColType, rightCol, rightColType, cast, rightCol))
	}
	return analysis
}

func castExpression(dialect datasource.Dialect, column, targetType string) string {
	if dialect == datasource.DialectPostgres {
		return fmt.Sprintf("%s::%s", column, targetType)
	}
	return fmt.Sprintf("CAST(%s AS %s)", column, targetType)
}

// lookupColumnType resolves alias.col against the snapshot. The alias must
// match a table name for the type to be found; aliased tables come back with
// an empty type.
func lookupColumnType(snap *models.SchemaSnapshot, tableRef, column string) (qualified, dataType string) {
	qualified = tableRef + "." + column
	t := snap.FindTable(tableRef)
	if t == nil {
		return qualified, ""
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return t.FullName + "." + c.Name, c.DataType
		}
	}
	return qualified, ""
}

func syntaxAnalysis(near string) *models.ErrorAnalysis {
	analysis := &models.ErrorAnalysis{Kind: models.ErrorKindSyntax}
	if near != "" {
		analysis.OffendingIdentifiers = []string{near}
		analysis.Hints = append(analysis.Hints, fmt.Sprintf(
			"Syntax error near %q. Check clause ordering and quoting for this dialect.", near))
	} else {
		analysis.Hints = append(analysis.Hints,
			"The statement is not valid for this dialect. Check clause ordering and keywords.")
	}
	return analysis
}

// closestName returns the candidate with the smallest distance to name,
// ties broken alphabetically.
func closestName(name string, candidates []string) (string, int) {
	best := ""
	bestDist := -1
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	for _, c := range sorted {
		d := nameDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// nameDistance is case-insensitive Levenshtein, with substring containment
// counting as an exact match.
func nameDistance(a, b string) int {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return 0
	}
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return 0
	}
	return levenshtein(la, lb)
}

func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func joinCapped(items []string, limit int) string {
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:limit], ", ") + fmt.Sprintf(" (+%d more)", len(items)-limit)
}
