// Package mysql implements the datasource adapter for MySQL and MariaDB on
// top of database/sql with the go-sql-driver driver.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/logging"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// systemSchemaList feeds the NOT IN clause of every metadata query.
const systemSchemaList = "'information_schema', 'mysql', 'performance_schema', 'sys'"

// Adapter talks to one MySQL database through a database/sql pool.
type Adapter struct {
	db     *sql.DB
	params models.ConnectionParams
	cache  *datasource.SnapshotCache
	logger *zap.Logger
}

var _ datasource.Adapter = (*Adapter)(nil)

// New opens and pings a database/sql pool.
func New(ctx context.Context, params models.ConnectionParams, opts datasource.Options) (*Adapter, error) {
	db, err := sql.Open("mysql", datasource.MySQLDSN(params))
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(int(opts.MaxConns))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}

	return &Adapter{
		db:     db,
		params: params,
		cache:  datasource.NewSnapshotCache(opts.SnapshotTTL),
		logger: opts.Logger.Named("mysql"),
	}, nil
}

// Dialect implements datasource.Adapter.
func (a *Adapter) Dialect() datasource.Dialect {
	return datasource.DialectMySQL
}

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// TestConnection implements datasource.Adapter.
func (a *Adapter) TestConnection(ctx context.Context) (*models.ServerInfo, error) {
	var info models.ServerInfo
	err := a.db.QueryRowContext(ctx,
		"SELECT DATABASE(), CURRENT_USER(), VERSION()",
	).Scan(&info.Database, &info.User, &info.Version)
	if err != nil {
		a.logger.Warn("connection test failed", zap.String("error", logging.SanitizeError(err)))
		return nil, datasource.NewExecutionError(datasource.DialectMySQL, err)
	}
	info.DatabaseType = datasource.DialectMySQL.String()
	return &info, nil
}

// ListSchemas returns user schemas with table and view counts, excluding
// the MySQL system schemas.
func (a *Adapter) ListSchemas(ctx context.Context) ([]models.SchemaSummary, error) {
	query := fmt.Sprintf(`
		SELECT
			s.schema_name,
			COALESCE(SUM(t.table_type = 'BASE TABLE'), 0) AS table_count,
			COALESCE(SUM(t.table_type = 'VIEW'), 0) AS view_count
		FROM information_schema.schemata s
		LEFT JOIN information_schema.tables t ON t.table_schema = s.schema_name
		WHERE s.schema_name NOT IN (%s)
		GROUP BY s.schema_name
		ORDER BY s.schema_name
	`, systemSchemaList)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectMySQL, err)
	}
	defer rows.Close()

	var schemas []models.SchemaSummary
	for rows.Next() {
		var s models.SchemaSummary
		if err := rows.Scan(&s.SchemaName, &s.TableCount, &s.ViewCount); err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		schemas = append(schemas, s)
	}
	return schemas, rows.Err()
}

// SchemaSnapshot captures one schema, serving from the TTL cache when fresh.
func (a *Adapter) SchemaSnapshot(ctx context.Context, schema string) (*models.SchemaSnapshot, error) {
	if snap, ok := a.cache.Get(schema); ok {
		return snap, nil
	}

	snap, err := a.captureSchemas(ctx, []string{schema})
	if err != nil {
		return nil, err
	}
	a.cache.Put(schema, snap)
	return snap, nil
}

// DatabaseSnapshot captures every user schema.
func (a *Adapter) DatabaseSnapshot(ctx context.Context) (*models.SchemaSnapshot, error) {
	if snap, ok := a.cache.GetDatabase(); ok {
		return snap, nil
	}

	summaries, err := a.ListSchemas(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(summaries))
	for _, s := range summaries {
		names = append(names, s.SchemaName)
	}

	snap, err := a.captureSchemas(ctx, names)
	if err != nil {
		return nil, err
	}
	a.cache.PutDatabase(snap)
	return snap, nil
}

// TableInfo returns one table with its full column list.
func (a *Adapter) TableInfo(ctx context.Context, schema, table string) (*models.TableDescriptor, error) {
	desc := models.TableDescriptor{
		SchemaName: schema,
		TableName:  table,
		FullName:   schema + "." + table,
	}

	columns, err := a.describeColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	desc.Columns = columns

	fks, err := a.foreignKeys(ctx, schema)
	if err != nil {
		return nil, err
	}
	desc.ForeignKeys = fks[table]

	return &desc, nil
}

// Execute runs one statement. SELECT/WITH statements are bounded by the
// engine row cap; everything else runs as written and auto-commits.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.QueryResult, error) {
	start := time.Now()

	if !datasource.IsRowReturning(query) {
		res, err := a.db.ExecContext(ctx, query)
		if err != nil {
			return nil, datasource.NewExecutionError(datasource.DialectMySQL, err)
		}
		affected, _ := res.RowsAffected()
		return &datasource.QueryResult{
			Columns:        []string{},
			Rows:           []map[string]any{},
			RowCount:       int(affected),
			ElapsedSeconds: time.Since(start).Seconds(),
		}, nil
	}

	bounded := datasource.DialectMySQL.WrapWithRowLimit(query, datasource.MaxQueryRows)
	rows, err := a.db.QueryContext(ctx, bounded)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectMySQL, err)
	}
	defer rows.Close()

	columns, resultRows, err := datasource.ScanRows(rows)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectMySQL, err)
	}

	return &datasource.QueryResult{
		Columns:        columns,
		Rows:           resultRows,
		RowCount:       len(resultRows),
		ElapsedSeconds: time.Since(start).Seconds(),
	}, nil
}

func (a *Adapter) captureSchemas(ctx context.Context, schemas []string) (*models.SchemaSnapshot, error) {
	snap := &models.SchemaSnapshot{
		DatabaseName: a.params.Database,
		DatabaseType: datasource.DialectMySQL.String(),
		CapturedAt:   time.Now(),
	}

	for _, schema := range schemas {
		fks, err := a.foreignKeys(ctx, schema)
		if err != nil {
			return nil, err
		}

		tables, views, err := a.listRelations(ctx, schema)
		if err != nil {
			return nil, err
		}

		for _, table := range tables {
			columns, err := a.describeColumns(ctx, schema, table)
			if err != nil {
				return nil, err
			}
			desc := models.TableDescriptor{
				SchemaName:  schema,
				TableName:   table,
				FullName:    schema + "." + table,
				Columns:     columns,
				ForeignKeys: fks[table],
			}
			desc.SampleRows = a.sampleRows(ctx, schema, table)
			snap.Tables = append(snap.Tables, desc)
		}

		for _, view := range views {
			snap.Views = append(snap.Views, models.ViewDescriptor{
				SchemaName: schema,
				ViewName:   view,
				FullName:   schema + "." + view,
			})
		}
	}

	return snap, nil
}

func (a *Adapter) listRelations(ctx context.Context, schema string) (tables, views []string, err error) {
	const query = `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name
	`

	rows, err := a.db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, nil, datasource.NewExecutionError(datasource.DialectMySQL, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, relType string
		if err := rows.Scan(&name, &relType); err != nil {
			return nil, nil, fmt.Errorf("scan relation: %w", err)
		}
		if relType == "VIEW" {
			views = append(views, name)
		} else {
			tables = append(tables, name)
		}
	}
	return tables, views, rows.Err()
}

func (a *Adapter) describeColumns(ctx context.Context, schema, table string) ([]models.ColumnDescriptor, error) {
	const query = `
		SELECT
			column_name,
			data_type,
			is_nullable = 'YES',
			column_default,
			column_key = 'PRI',
			column_key = 'UNI'
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := a.db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectMySQL, err)
	}
	defer rows.Close()

	var columns []models.ColumnDescriptor
	for rows.Next() {
		var c models.ColumnDescriptor
		var def sql.NullString
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &def, &c.PrimaryKey, &c.Unique); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if def.Valid {
			c.Default = &def.String
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

func (a *Adapter) foreignKeys(ctx context.Context, schema string) (map[string][]models.ForeignKey, error) {
	const query = `
		SELECT
			kcu.table_name,
			kcu.column_name,
			kcu.referenced_table_schema,
			kcu.referenced_table_name,
			kcu.referenced_column_name,
			rc.delete_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON kcu.constraint_name = rc.constraint_name
			AND kcu.constraint_schema = rc.constraint_schema
		WHERE kcu.table_schema = ?
		  AND kcu.referenced_table_name IS NOT NULL
	`

	rows, err := a.db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectMySQL, err)
	}
	defer rows.Close()

	fks := make(map[string][]models.ForeignKey)
	for rows.Next() {
		var table, refSchema, refTable string
		var fk models.ForeignKey
		if err := rows.Scan(&table, &fk.Column, &refSchema, &refTable, &fk.ReferencesColumn, &fk.OnDelete); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fk.ReferencesTable = refSchema + "." + refTable
		fks[table] = append(fks[table], fk)
	}
	return fks, rows.Err()
}

func (a *Adapter) sampleRows(ctx context.Context, schema, table string) []map[string]any {
	query := fmt.Sprintf("SELECT * FROM %s.%s LIMIT %d",
		quoteIdentifier(schema), quoteIdentifier(table), models.MaxSampleRows)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		a.logger.Debug("sample rows unavailable",
			zap.String("table", schema+"."+table),
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	defer rows.Close()

	_, samples, err := datasource.ScanRows(rows)
	if err != nil {
		return nil
	}
	return samples
}

// quoteIdentifier backtick-quotes a MySQL identifier.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
