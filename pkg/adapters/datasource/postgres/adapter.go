// Package postgres implements the datasource adapter for PostgreSQL on top
// of pgx connection pools.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/logging"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// systemSchemas are excluded from schema listings and snapshots.
var systemSchemas = []string{"pg_catalog", "information_schema", "pg_toast"}

// Adapter talks to one PostgreSQL database through a pgx pool.
type Adapter struct {
	pool   *pgxpool.Pool
	params models.ConnectionParams
	cache  *datasource.SnapshotCache
	logger *zap.Logger
}

var _ datasource.Adapter = (*Adapter)(nil)

// New connects a pgx pool sized per the adapter options.
func New(ctx context.Context, params models.ConnectionParams, opts datasource.Options) (*Adapter, error) {
	connStr := datasource.PostgresDSN(params)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	return &Adapter{
		pool:   pool,
		params: params,
		cache:  datasource.NewSnapshotCache(opts.SnapshotTTL),
		logger: opts.Logger.Named("postgres"),
	}, nil
}

// Dialect implements datasource.Adapter.
func (a *Adapter) Dialect() datasource.Dialect {
	return datasource.DialectPostgres
}

// Close releases the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// TestConnection implements datasource.Adapter.
func (a *Adapter) TestConnection(ctx context.Context) (*models.ServerInfo, error) {
	var info models.ServerInfo
	err := a.pool.QueryRow(ctx,
		"SELECT current_database(), current_user, version()",
	).Scan(&info.Database, &info.User, &info.Version)
	if err != nil {
		a.logger.Warn("connection test failed", zap.String("error", logging.SanitizeError(err)))
		return nil, datasource.NewExecutionError(datasource.DialectPostgres, err)
	}
	info.DatabaseType = datasource.DialectPostgres.String()
	return &info, nil
}

// ListSchemas returns user schemas with table and view counts, excluding
// pg_catalog, information_schema and pg_toast.
func (a *Adapter) ListSchemas(ctx context.Context) ([]models.SchemaSummary, error) {
	const query = `
		SELECT
			s.schema_name,
			COUNT(t.table_name) FILTER (WHERE t.table_type = 'BASE TABLE') AS table_count,
			COUNT(t.table_name) FILTER (WHERE t.table_type = 'VIEW') AS view_count
		FROM information_schema.schemata s
		LEFT JOIN information_schema.tables t ON t.table_schema = s.schema_name
		WHERE s.schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		GROUP BY s.schema_name
		ORDER BY s.schema_name
	`

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectPostgres, err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemas: %w", err)
	}
	return schemas, nil
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
		tag, err := a.pool.Exec(ctx, query)
		if err != nil {
			return nil, datasource.NewExecutionError(datasource.DialectPostgres, err)
		}
		return &datasource.QueryResult{
			Columns:        []string{},
			Rows:           []map[string]any{},
			RowCount:       int(tag.RowsAffected()),
			ElapsedSeconds: time.Since(start).Seconds(),
		}, nil
	}

	bounded := datasource.DialectPostgres.WrapWithRowLimit(query, datasource.MaxQueryRows)
	rows, err := a.pool.Query(ctx, bounded)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectPostgres, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = datasource.Serialize(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectPostgres, err)
	}

	return &datasource.QueryResult{
		Columns:        columns,
		Rows:           resultRows,
		RowCount:       len(resultRows),
		ElapsedSeconds: time.Since(start).Seconds(),
	}, nil
}

// captureSchemas snapshots the given schemas into one SchemaSnapshot.
func (a *Adapter) captureSchemas(ctx context.Context, schemas []string) (*models.SchemaSnapshot, error) {
	snap := &models.SchemaSnapshot{
		DatabaseName: a.params.Database,
		DatabaseType: datasource.DialectPostgres.String(),
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
		WHERE table_schema = $1
		ORDER BY table_name
	`

	rows, err := a.pool.Query(ctx, query, schema)
	if err != nil {
		return nil, nil, datasource.NewExecutionError(datasource.DialectPostgres, err)
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

// describeColumns reads column metadata. Primary key and unique detection
// rides pg_index so constraints created as unique indexes are still seen.
func (a *Adapter) describeColumns(ctx context.Context, schema, table string) ([]models.ColumnDescriptor, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			c.column_default,
			COALESCE(pk.is_pk, false) AS is_primary_key,
			COALESCE(uq.is_unique, false) AS is_unique
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary AND n.nspname = $1 AND t.relname = $2
		) pk ON c.column_name = pk.column_name
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_unique
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisunique AND NOT ix.indisprimary
			  AND n.nspname = $1 AND t.relname = $2
			  AND array_length(ix.indkey, 1) = 1
		) uq ON c.column_name = uq.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectPostgres, err)
	}
	defer rows.Close()

	var columns []models.ColumnDescriptor
	for rows.Next() {
		var c models.ColumnDescriptor
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Default, &c.PrimaryKey, &c.Unique); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// foreignKeys returns outgoing references for every table of a schema,
// keyed by table name.
func (a *Adapter) foreignKeys(ctx context.Context, schema string) (map[string][]models.ForeignKey, error) {
	const query = `
		SELECT
			kcu.table_name,
			kcu.column_name,
			ccu.table_schema AS ref_schema,
			ccu.table_name AS ref_table,
			ccu.column_name AS ref_column,
			rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		JOIN information_schema.referential_constraints rc
			ON tc.constraint_name = rc.constraint_name
			AND tc.table_schema = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
	`

	rows, err := a.pool.Query(ctx, query, schema)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectPostgres, err)
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

// sampleRows fetches up to MaxSampleRows example rows. Failures degrade to
// no samples rather than failing the snapshot.
func (a *Adapter) sampleRows(ctx context.Context, schema, table string) []map[string]any {
	query := fmt.Sprintf("SELECT * FROM %s.%s LIMIT %d",
		pgx.Identifier{schema}.Sanitize(),
		pgx.Identifier{table}.Sanitize(),
		models.MaxSampleRows)

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		a.logger.Debug("sample rows unavailable",
			zap.String("table", schema+"."+table),
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var samples []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return samples
		}
		row := make(map[string]any, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[string(fd.Name)] = datasource.Serialize(values[i])
		}
		samples = append(samples, row)
	}
	return samples
}
