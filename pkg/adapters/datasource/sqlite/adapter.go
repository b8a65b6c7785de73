// Package sqlite implements the datasource adapter for SQLite files on top
// of database/sql with the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/logging"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// mainSchema is the synthetic schema name SQLite objects live under.
const mainSchema = "main"

// Adapter talks to one SQLite file through a database/sql pool.
type Adapter struct {
	db     *sql.DB
	params models.ConnectionParams
	cache  *datasource.SnapshotCache
	logger *zap.Logger
}

var _ datasource.Adapter = (*Adapter)(nil)

// New opens and pings the file. In-memory databases keep a single
// connection so every statement sees the same store.
func New(ctx context.Context, params models.ConnectionParams, opts datasource.Options) (*Adapter, error) {
	db, err := sql.Open("sqlite", datasource.SQLiteDSN(params))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if params.FilePath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if opts.MaxConns > 0 {
		db.SetMaxOpenConns(int(opts.MaxConns))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	return &Adapter{
		db:     db,
		params: params,
		cache:  datasource.NewSnapshotCache(opts.SnapshotTTL),
		logger: opts.Logger.Named("sqlite"),
	}, nil
}

// Dialect implements datasource.Adapter.
func (a *Adapter) Dialect() datasource.Dialect {
	return datasource.DialectSQLite
}

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// TestConnection implements datasource.Adapter. The file path stands in
// for the database name; SQLite has no users.
func (a *Adapter) TestConnection(ctx context.Context) (*models.ServerInfo, error) {
	var version string
	if err := a.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		a.logger.Warn("connection test failed", zap.String("error", logging.SanitizeError(err)))
		return nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
	}
	return &models.ServerInfo{
		Database:     a.params.FilePath,
		Version:      "SQLite " + version,
		DatabaseType: datasource.DialectSQLite.String(),
	}, nil
}

// ListSchemas returns the synthetic main schema with object counts.
func (a *Adapter) ListSchemas(ctx context.Context) ([]models.SchemaSummary, error) {
	const query = `
		SELECT
			SUM(type = 'table' AND name NOT LIKE 'sqlite_%'),
			SUM(type = 'view')
		FROM sqlite_master
	`

	summary := models.SchemaSummary{SchemaName: mainSchema}
	var tables, views sql.NullInt64
	if err := a.db.QueryRowContext(ctx, query).Scan(&tables, &views); err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
	}
	summary.TableCount = int(tables.Int64)
	summary.ViewCount = int(views.Int64)
	return []models.SchemaSummary{summary}, nil
}

// SchemaSnapshot captures the main schema regardless of the requested name.
func (a *Adapter) SchemaSnapshot(ctx context.Context, schema string) (*models.SchemaSnapshot, error) {
	if snap, ok := a.cache.Get(mainSchema); ok {
		return snap, nil
	}

	snap, err := a.capture(ctx)
	if err != nil {
		return nil, err
	}
	a.cache.Put(mainSchema, snap)
	return snap, nil
}

// DatabaseSnapshot equals the main schema snapshot.
func (a *Adapter) DatabaseSnapshot(ctx context.Context) (*models.SchemaSnapshot, error) {
	return a.SchemaSnapshot(ctx, mainSchema)
}

// TableInfo returns one table with its full column list.
func (a *Adapter) TableInfo(ctx context.Context, schema, table string) (*models.TableDescriptor, error) {
	desc := models.TableDescriptor{
		SchemaName: mainSchema,
		TableName:  table,
		FullName:   mainSchema + "." + table,
	}

	columns, err := a.describeColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	desc.Columns = columns

	fks, err := a.foreignKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	desc.ForeignKeys = fks

	return &desc, nil
}

// Execute runs one statement. SELECT/WITH statements are bounded by the
// engine row cap; everything else runs as written and auto-commits.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.QueryResult, error) {
	start := time.Now()

	if !datasource.IsRowReturning(query) {
		res, err := a.db.ExecContext(ctx, query)
		if err != nil {
			return nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
		}
		affected, _ := res.RowsAffected()
		return &datasource.QueryResult{
			Columns:        []string{},
			Rows:           []map[string]any{},
			RowCount:       int(affected),
			ElapsedSeconds: time.Since(start).Seconds(),
		}, nil
	}

	bounded := datasource.DialectSQLite.WrapWithRowLimit(query, datasource.MaxQueryRows)
	rows, err := a.db.QueryContext(ctx, bounded)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
	}
	defer rows.Close()

	columns, resultRows, err := datasource.ScanRows(rows)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
	}

	return &datasource.QueryResult{
		Columns:        columns,
		Rows:           resultRows,
		RowCount:       len(resultRows),
		ElapsedSeconds: time.Since(start).Seconds(),
	}, nil
}

func (a *Adapter) capture(ctx context.Context) (*models.SchemaSnapshot, error) {
	snap := &models.SchemaSnapshot{
		DatabaseName: a.params.FilePath,
		DatabaseType: datasource.DialectSQLite.String(),
		CapturedAt:   time.Now(),
	}

	tables, views, err := a.listRelations(ctx)
	if err != nil {
		return nil, err
	}

	for _, table := range tables {
		columns, err := a.describeColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		fks, err := a.foreignKeys(ctx, table)
		if err != nil {
			return nil, err
		}
		desc := models.TableDescriptor{
			SchemaName:  mainSchema,
			TableName:   table,
			FullName:    mainSchema + "." + table,
			Columns:     columns,
			ForeignKeys: fks,
		}
		desc.SampleRows = a.sampleRows(ctx, table)
		snap.Tables = append(snap.Tables, desc)
	}

	for _, view := range views {
		snap.Views = append(snap.Views, models.ViewDescriptor{
			SchemaName: mainSchema,
			ViewName:   view,
			FullName:   mainSchema + "." + view,
		})
	}

	return snap, nil
}

func (a *Adapter) listRelations(ctx context.Context) (tables, views []string, err error) {
	const query = `
		SELECT name, type
		FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, relType string
		if err := rows.Scan(&name, &relType); err != nil {
			return nil, nil, fmt.Errorf("scan relation: %w", err)
		}
		if relType == "view" {
			views = append(views, name)
		} else {
			tables = append(tables, name)
		}
	}
	return tables, views, rows.Err()
}

func (a *Adapter) describeColumns(ctx context.Context, table string) ([]models.ColumnDescriptor, error) {
	unique, err := a.uniqueColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdentifier(table)))
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
	}
	defer rows.Close()

	var columns []models.ColumnDescriptor
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var def sql.NullString
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &def, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if dataType == "" {
			// Columns may be declared with no type affinity.
			dataType = "ANY"
		}
		c := models.ColumnDescriptor{
			Name:       name,
			DataType:   dataType,
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
			Unique:     unique[name],
		}
		if def.Valid {
			c.Default = &def.String
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// uniqueColumns reports columns covered by a single-column unique index.
func (a *Adapter) uniqueColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteIdentifier(table)))
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
	}
	defer rows.Close()

	var uniqueIndexes []string
	for rows.Next() {
		var seq, isUnique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &isUnique, &origin, &partial); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		if isUnique == 1 {
			uniqueIndexes = append(uniqueIndexes, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unique := make(map[string]bool)
	for _, idx := range uniqueIndexes {
		cols, err := a.indexColumns(ctx, idx)
		if err != nil {
			return nil, err
		}
		if len(cols) == 1 {
			unique[cols[0]] = true
		}
	}
	return unique, nil
}

func (a *Adapter) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdentifier(index)))
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("scan index column: %w", err)
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

func (a *Adapter) foreignKeys(ctx context.Context, table string) ([]models.ForeignKey, error) {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdentifier(table)))
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectSQLite, err)
	}
	defer rows.Close()

	var fks []models.ForeignKey
	for rows.Next() {
		var id, seq int
		var refTable, from, onUpdate, onDelete, match string
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fk := models.ForeignKey{
			Column:          from,
			ReferencesTable: mainSchema + "." + refTable,
			OnDelete:        onDelete,
		}
		if to.Valid {
			fk.ReferencesColumn = to.String
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (a *Adapter) sampleRows(ctx context.Context, table string) []map[string]any {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdentifier(table), models.MaxSampleRows)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		a.logger.Debug("sample rows unavailable",
			zap.String("table", table),
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

// quoteIdentifier double-quotes a SQLite identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
