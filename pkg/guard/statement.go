// Package guard validates generated SQL before it reaches a database:
// statement-type gating, dangerous-operation detection against the
// question's intent, prose rejection, and an injection screen.
package guard

import (
	"regexp"
	"strings"
)

// StatementType classifies a SQL statement by its first keyword.
type StatementType string

const (
	StatementSelect  StatementType = "SELECT"
	StatementInsert  StatementType = "INSERT"
	StatementUpdate  StatementType = "UPDATE"
	StatementDelete  StatementType = "DELETE"
	StatementDDL     StatementType = "DDL" // CREATE, ALTER, DROP, TRUNCATE
	StatementUnknown StatementType = "UNKNOWN"
)

// modifyingCTEPattern matches CTEs that smuggle data modification into a
// WITH statement, e.g. WITH gone AS (DELETE FROM t RETURNING *) SELECT ...
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE)\b`)

// DetectStatementType classifies sql by its first keyword. WITH statements
// count as SELECT unless a CTE modifies data, which makes them UNKNOWN.
func DetectStatementType(sql string) StatementType {
	normalized := strings.ToUpper(strings.TrimSpace(sql))

	switch {
	case strings.HasPrefix(normalized, "SELECT"):
		return StatementSelect

	case strings.HasPrefix(normalized, "WITH"):
		if modifyingCTEPattern.MatchString(sql) {
			return StatementUnknown
		}
		return StatementSelect

	case strings.HasPrefix(normalized, "INSERT"):
		return StatementInsert

	case strings.HasPrefix(normalized, "UPDATE"):
		return StatementUpdate

	case strings.HasPrefix(normalized, "DELETE"):
		return StatementDelete

	case strings.HasPrefix(normalized, "CREATE"),
		strings.HasPrefix(normalized, "ALTER"),
		strings.HasPrefix(normalized, "DROP"),
		strings.HasPrefix(normalized, "TRUNCATE"):
		return StatementDDL

	// Transaction control never crosses the engine.
	case strings.HasPrefix(normalized, "BEGIN"),
		strings.HasPrefix(normalized, "COMMIT"),
		strings.HasPrefix(normalized, "ROLLBACK"),
		strings.HasPrefix(normalized, "SAVEPOINT"):
		return StatementUnknown

	default:
		return StatementUnknown
	}
}

// IsModifying reports whether the statement type can change data.
func IsModifying(t StatementType) bool {
	switch t {
	case StatementInsert, StatementUpdate, StatementDelete, StatementDDL:
		return true
	default:
		return false
	}
}
