// Package oracle implements the datasource adapter for Oracle on top of
// database/sql with the go-ora driver.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/sijms/go-ora/v2"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/logging"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// Adapter talks to one Oracle database through a database/sql pool.
// Introspection is scoped to the connected user's schema: the USER_* data
// dictionary views.
type Adapter struct {
	db     *sql.DB
	params models.ConnectionParams
	cache  *datasource.SnapshotCache
	logger *zap.Logger

	// owner is the connected user's schema name, resolved at connect time.
	owner string
}

var _ datasource.Adapter = (*Adapter)(nil)

// New opens a go-ora pool and resolves the session owner.
func New(ctx context.Context, params models.ConnectionParams, opts datasource.Options) (*Adapter, error) {
	db, err := sql.Open("oracle", datasource.OracleDSN(params))
	if err != nil {
		return nil, fmt.Errorf("open oracle: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(int(opts.MaxConns))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to oracle: %w", err)
	}

	var owner string
	if err := db.QueryRowContext(ctx, "SELECT USER FROM dual").Scan(&owner); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resolve oracle user: %w", err)
	}

	return &Adapter{
		db:     db,
		params: params,
		cache:  datasource.NewSnapshotCache(opts.SnapshotTTL),
		logger: opts.Logger.Named("oracle"),
		owner:  owner,
	}, nil
}

// Dialect implements datasource.Adapter.
func (a *Adapter) Dialect() datasource.Dialect {
	return datasource.DialectOracle
}

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// TestConnection implements datasource.Adapter.
func (a *Adapter) TestConnection(ctx context.Context) (*models.ServerInfo, error) {
	const query = `
		SELECT
			sys_context('USERENV', 'DB_NAME'),
			USER,
			SUBSTR(BANNER, 1, 60)
		FROM V$VERSION
		WHERE ROWNUM = 1
	`

	var info models.ServerInfo
	err := a.db.QueryRowContext(ctx, query).Scan(&info.Database, &info.User, &info.Version)
	if err != nil {
		a.logger.Warn("connection test failed", zap.String("error", logging.SanitizeError(err)))
		return nil, datasource.NewExecutionError(datasource.DialectOracle, err)
	}
	info.DatabaseType = datasource.DialectOracle.String()
	return &info, nil
}

// ListSchemas returns only the connected user's schema. Widening to ALL_*
// views pulls in hundreds of SYS objects that are useless for question
// answering.
func (a *Adapter) ListSchemas(ctx context.Context) ([]models.SchemaSummary, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM USER_TABLES),
			(SELECT COUNT(*) FROM USER_VIEWS)
		FROM dual
	`

	summary := models.SchemaSummary{SchemaName: a.owner}
	if err := a.db.QueryRowContext(ctx, query).Scan(&summary.TableCount, &summary.ViewCount); err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectOracle, err)
	}
	return []models.SchemaSummary{summary}, nil
}

// SchemaSnapshot captures the user's schema. Oracle reaches exactly one
// schema, so any requested name other than the owner yields an empty
// snapshot for that name.
func (a *Adapter) SchemaSnapshot(ctx context.Context, schema string) (*models.SchemaSnapshot, error) {
	if schema == "" {
		schema = a.owner
	}
	if snap, ok := a.cache.Get(schema); ok {
		return snap, nil
	}

	snap, err := a.capture(ctx, schema)
	if err != nil {
		return nil, err
	}
	a.cache.Put(schema, snap)
	return snap, nil
}

// DatabaseSnapshot equals the current user's schema snapshot.
func (a *Adapter) DatabaseSnapshot(ctx context.Context) (*models.SchemaSnapshot, error) {
	return a.SchemaSnapshot(ctx, a.owner)
}

// TableInfo returns one table with its full column list.
func (a *Adapter) TableInfo(ctx context.Context, schema, table string) (*models.TableDescriptor, error) {
	if schema == "" {
		schema = a.owner
	}
	desc := models.TableDescriptor{
		SchemaName: schema,
		TableName:  table,
		FullName:   schema + "." + table,
	}

	columns, err := a.describeColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	desc.Columns = columns

	fks, err := a.foreignKeys(ctx)
	if err != nil {
		return nil, err
	}
	desc.ForeignKeys = fks[table]

	return &desc, nil
}

// Execute runs one statement. SELECT/WITH statements are bounded by the
// engine row cap via ROWNUM; everything else runs as written.
func (a *Adapter) Execute(ctx context.Context, query string) (*datasource.QueryResult, error) {
	start := time.Now()

	if !datasource.IsRowReturning(query) {
		res, err := a.db.ExecContext(ctx, query)
		if err != nil {
			return nil, datasource.NewExecutionError(datasource.DialectOracle, err)
		}
		affected, _ := res.RowsAffected()
		return &datasource.QueryResult{
			Columns:        []string{},
			Rows:           []map[string]any{},
			RowCount:       int(affected),
			ElapsedSeconds: time.Since(start).Seconds(),
		}, nil
	}

	bounded := datasource.DialectOracle.WrapWithRowLimit(query, datasource.MaxQueryRows)
	rows, err := a.db.QueryContext(ctx, bounded)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectOracle, err)
	}
	defer rows.Close()

	columns, resultRows, err := datasource.ScanRows(rows)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectOracle, err)
	}

	return &datasource.QueryResult{
		Columns:        columns,
		Rows:           resultRows,
		RowCount:       len(resultRows),
		ElapsedSeconds: time.Since(start).Seconds(),
	}, nil
}

func (a *Adapter) capture(ctx context.Context, schema string) (*models.SchemaSnapshot, error) {
	snap := &models.SchemaSnapshot{
		DatabaseName: a.params.Database,
		DatabaseType: datasource.DialectOracle.String(),
		CapturedAt:   time.Now(),
	}
	if snap.DatabaseName == "" {
		snap.DatabaseName = a.params.ServiceName + a.params.SID
	}
	if !strings.EqualFold(schema, a.owner) {
		return snap, nil
	}

	fks, err := a.foreignKeys(ctx)
	if err != nil {
		return nil, err
	}

	tables, err := a.listTables(ctx)
	if err != nil {
		return nil, err
	}
	for _, table := range tables {
		columns, err := a.describeColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		desc := models.TableDescriptor{
			SchemaName:  a.owner,
			TableName:   table,
			FullName:    a.owner + "." + table,
			Columns:     columns,
			ForeignKeys: fks[table],
		}
		desc.SampleRows = a.sampleRows(ctx, table)
		snap.Tables = append(snap.Tables, desc)
	}

	views, err := a.listViews(ctx)
	if err != nil {
		return nil, err
	}
	for _, view := range views {
		snap.Views = append(snap.Views, models.ViewDescriptor{
			SchemaName: a.owner,
			ViewName:   view,
			FullName:   a.owner + "." + view,
		})
	}

	return snap, nil
}

func (a *Adapter) listTables(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT TABLE_NAME FROM USER_TABLES ORDER BY TABLE_NAME")
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectOracle, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (a *Adapter) listViews(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT VIEW_NAME FROM USER_VIEWS ORDER BY VIEW_NAME")
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectOracle, err)
	}
	defer rows.Close()

	var views []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		views = append(views, name)
	}
	return views, rows.Err()
}

func (a *Adapter) describeColumns(ctx context.Context, table string) ([]models.ColumnDescriptor, error) {
	const query = `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			CASE WHEN c.NULLABLE = 'Y' THEN 1 ELSE 0 END,
			c.DATA_DEFAULT,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END,
			CASE WHEN uq.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END
		FROM USER_TAB_COLUMNS c
		LEFT JOIN (
			SELECT acc.TABLE_NAME, acc.COLUMN_NAME
			FROM USER_CONSTRAINTS ac
			JOIN USER_CONS_COLUMNS acc ON ac.CONSTRAINT_NAME = acc.CONSTRAINT_NAME
			WHERE ac.CONSTRAINT_TYPE = 'P'
		) pk ON c.TABLE_NAME = pk.TABLE_NAME AND c.COLUMN_NAME = pk.COLUMN_NAME
		LEFT JOIN (
			SELECT acc.TABLE_NAME, acc.COLUMN_NAME
			FROM USER_CONSTRAINTS ac
			JOIN USER_CONS_COLUMNS acc ON ac.CONSTRAINT_NAME = acc.CONSTRAINT_NAME
			WHERE ac.CONSTRAINT_TYPE = 'U'
		) uq ON c.TABLE_NAME = uq.TABLE_NAME AND c.COLUMN_NAME = uq.COLUMN_NAME
		WHERE c.TABLE_NAME = :1
		ORDER BY c.COLUMN_ID
	`

	rows, err := a.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectOracle, err)
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
			trimmed := strings.TrimSpace(def.String)
			c.Default = &trimmed
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// foreignKeys resolves 'R' constraints through the referenced primary or
// unique constraint, keyed by table name.
func (a *Adapter) foreignKeys(ctx context.Context) (map[string][]models.ForeignKey, error) {
	const query = `
		SELECT
			src.TABLE_NAME,
			src.COLUMN_NAME,
			ref.TABLE_NAME,
			ref.COLUMN_NAME,
			fk.DELETE_RULE
		FROM USER_CONSTRAINTS fk
		JOIN USER_CONS_COLUMNS src
			ON fk.CONSTRAINT_NAME = src.CONSTRAINT_NAME
		JOIN USER_CONS_COLUMNS ref
			ON fk.R_CONSTRAINT_NAME = ref.CONSTRAINT_NAME
			AND src.POSITION = ref.POSITION
		WHERE fk.CONSTRAINT_TYPE = 'R'
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, datasource.NewExecutionError(datasource.DialectOracle, err)
	}
	defer rows.Close()

	fks := make(map[string][]models.ForeignKey)
	for rows.Next() {
		var table, refTable string
		var fk models.ForeignKey
		if err := rows.Scan(&table, &fk.Column, &refTable, &fk.ReferencesColumn, &fk.OnDelete); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fk.ReferencesTable = a.owner + "." + refTable
		fks[table] = append(fks[table], fk)
	}
	return fks, rows.Err()
}

func (a *Adapter) sampleRows(ctx context.Context, table string) []map[string]any {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE ROWNUM <= %d`,
		quoteIdentifier(table), models.MaxSampleRows)

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

// quoteIdentifier double-quotes an Oracle identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
