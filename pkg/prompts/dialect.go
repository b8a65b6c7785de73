// Package prompts holds the prompt text the engine sends to language
// models: dialect rule sheets, tiered system prompts, and the ontology
// extraction prompt.
package prompts

import "strings"

// DialectRules returns the SQL rule sheet for one dialect. The sheet is
// interpolated into every SQL-generation system prompt so the model never
// emits syntax the target database rejects.
func DialectRules(dialect string) string {
	switch strings.ToLower(dialect) {
	case "postgresql":
		return strings.TrimSpace(`
PostgreSQL rules:
- Limit rows with LIMIT n.
- Quote mixed-case identifiers with double quotes; unquoted names fold to lowercase.
- Cast with expr::TYPE or CAST(expr AS TYPE).
- ILIKE is available for case-insensitive matching.
- Use COALESCE for null defaults and date_trunc for time bucketing.`)
	case "mysql":
		return strings.TrimSpace(`
MySQL rules:
- Limit rows with LIMIT n.
- Quote identifiers with backticks.
- There is no FULL OUTER JOIN; emulate with LEFT JOIN UNION RIGHT JOIN if needed.
- Use DATE_FORMAT for date formatting and IFNULL for null defaults.
- String comparison is case-insensitive under the default collation.`)
	case "oracle":
		return strings.TrimSpace(`
Oracle rules:
- Never use LIMIT or FETCH FIRST. Limit rows with: SELECT * FROM (query) WHERE ROWNUM <= n.
- Unquoted identifiers fold to UPPERCASE.
- Use dual for SELECT without a table (SELECT 1 FROM dual).
- Use TO_DATE / TO_CHAR for date conversion and NVL for null defaults.
- String concatenation uses ||, not CONCAT with more than two arguments.`)
	case "sqlite":
		return strings.TrimSpace(`
SQLite rules:
- Limit rows with LIMIT n.
- Quote identifiers with double quotes.
- There is no RIGHT or FULL OUTER JOIN.
- Dates are stored as text; use strftime and the date/time functions.
- Types are dynamic; compare numerics carefully.`)
	default:
		return "Use ANSI SQL."
	}
}
