// Package datasource defines the dialect-polymorphic adapter contract and
// the pooling layer that hands adapters out to sessions.
package datasource

import (
	"context"

	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// MaxQueryRows is the hard cap on rows returned by Execute for SELECT
// statements. Protects the engine from unbounded result sets.
const MaxQueryRows = 1000

// Adapter is the single behavior contract every dialect implements.
// Implementations own a driver-level connection pool and must be closed
// when no longer managed.
type Adapter interface {
	// Dialect returns the adapter's flavor.
	Dialect() Dialect

	// TestConnection verifies reachability and credentials, returning the
	// server identity on success.
	TestConnection(ctx context.Context) (*models.ServerInfo, error)

	// ListSchemas returns the user-visible schemas with table and view
	// counts. System schemas are excluded per dialect.
	ListSchemas(ctx context.Context) ([]models.SchemaSummary, error)

	// SchemaSnapshot captures all tables and views of one schema.
	// Snapshots are cached per schema with a TTL.
	SchemaSnapshot(ctx context.Context, schema string) (*models.SchemaSnapshot, error)

	// DatabaseSnapshot captures every user-visible schema. For SQLite and
	// Oracle this equals the single reachable schema.
	DatabaseSnapshot(ctx context.Context) (*models.SchemaSnapshot, error)

	// TableInfo returns one table with its full column list.
	TableInfo(ctx context.Context, schema, table string) (*models.TableDescriptor, error)

	// Execute runs one SQL statement. SELECT returns serialized rows in
	// column order; non-SELECT commits and returns empty rows. Failures
	// return an *ExecutionError carrying the dialect's native message.
	Execute(ctx context.Context, query string) (*QueryResult, error)

	// Close releases the underlying driver pool.
	Close() error
}

// QueryResult holds the outcome of one executed statement.
// ElapsedSeconds covers only the database round-trip.
type QueryResult struct {
	Columns        []string         `json:"columns"`
	Rows           []map[string]any `json:"rows"`
	RowCount       int              `json:"row_count"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
}

// ExecutionError carries the dialect's native error message for the error
// analyzer. It wraps the driver error for errors.Is/As.
type ExecutionError struct {
	Dialect Dialect
	Native  string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return e.Native
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError builds an ExecutionError from a driver failure.
func NewExecutionError(d Dialect, cause error) *ExecutionError {
	return &ExecutionError{Dialect: d, Native: cause.Error(), Cause: cause}
}
