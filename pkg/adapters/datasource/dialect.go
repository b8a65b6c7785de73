package datasource

import (
	"fmt"
	"strings"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
)

// Dialect identifies one of the supported database flavors. It drives SQL
// syntax rules, metadata queries, and row-limiting forms.
type Dialect string

const (
	DialectPostgres Dialect = "postgresql"
	DialectMySQL    Dialect = "mysql"
	DialectOracle   Dialect = "oracle"
	DialectSQLite   Dialect = "sqlite"
)

// Dialects lists every supported dialect in factory registration order.
var Dialects = []Dialect{DialectPostgres, DialectMySQL, DialectOracle, DialectSQLite}

// ParseDialect normalizes a user-supplied database type, accepting the
// common aliases. Unknown values return ErrUnknownDialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgresql", "postgres", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "oracle":
		return DialectOracle, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownDialect, s)
	}
}

func (d Dialect) String() string {
	return string(d)
}

// DefaultPort returns the conventional port for network dialects and 0 for
// file-based SQLite.
func (d Dialect) DefaultPort() int {
	switch d {
	case DialectPostgres:
		return 5432
	case DialectMySQL:
		return 3306
	case DialectOracle:
		return 1521
	default:
		return 0
	}
}

// WrapWithRowLimit bounds a SELECT to at most n rows using the dialect's
// native form. Oracle predates FETCH FIRST on the versions we target, so it
// gets the classic ROWNUM subquery.
func (d Dialect) WrapWithRowLimit(query string, n int) string {
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	if d == DialectOracle {
		return fmt.Sprintf("SELECT * FROM (%s) WHERE ROWNUM <= %d", trimmed, n)
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", trimmed, n)
}
