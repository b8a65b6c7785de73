package datasource

import (
	"fmt"
	"net/url"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// DefaultOracleService is used when neither SID nor service name is given.
const DefaultOracleService = "XEPDB1"

// NormalizeParams fills dialect defaults and validates addressing.
// Oracle accepts SID xor service name; SQLite needs a file path or the
// ':memory:' database.
func NormalizeParams(d Dialect, params models.ConnectionParams) (models.ConnectionParams, error) {
	params.DatabaseType = d.String()

	switch d {
	case DialectSQLite:
		if params.FilePath == "" && params.Database == ":memory:" {
			params.FilePath = ":memory:"
		}
		if params.FilePath == "" {
			return params, fmt.Errorf("%w: sqlite requires file_path or database \":memory:\"", apperrors.ErrConfigInvalid)
		}
		return params, nil
	case DialectOracle:
		if params.SID != "" && params.ServiceName != "" {
			return params, fmt.Errorf("%w: oracle accepts sid or service_name, not both", apperrors.ErrConfigInvalid)
		}
		if params.SID == "" && params.ServiceName == "" {
			params.ServiceName = DefaultOracleService
		}
	}

	if params.Host == "" {
		return params, fmt.Errorf("%w: host is required for %s", apperrors.ErrConfigInvalid, d)
	}
	if params.Port == 0 {
		params.Port = d.DefaultPort()
	}
	return params, nil
}

// PostgresDSN builds a pgx connection URL.
func PostgresDSN(p models.ConnectionParams) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(p.Username), url.QueryEscape(p.Password),
		p.Host, p.Port, p.Database)
}

// MySQLDSN builds a go-sql-driver DSN. parseTime makes the driver hand back
// time.Time for temporal columns so serialization sees real timestamps.
func MySQLDSN(p models.ConnectionParams) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		p.Username, p.Password, p.Host, p.Port, p.Database)
}

// OracleDSN builds a go-ora connection URL. SID addressing rides a query
// parameter; service-name addressing uses the URL path.
func OracleDSN(p models.ConnectionParams) string {
	if p.SID != "" {
		return fmt.Sprintf("oracle://%s:%s@%s:%d/?SID=%s",
			url.QueryEscape(p.Username), url.QueryEscape(p.Password),
			p.Host, p.Port, url.QueryEscape(p.SID))
	}
	return fmt.Sprintf("oracle://%s:%s@%s:%d/%s",
		url.QueryEscape(p.Username), url.QueryEscape(p.Password),
		p.Host, p.Port, url.QueryEscape(p.ServiceName))
}

// SQLiteDSN returns the file path (or ':memory:') the modernc driver opens.
func SQLiteDSN(p models.ConnectionParams) string {
	return p.FilePath
}
