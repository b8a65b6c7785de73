package models

import (
	"time"
)

// MaxSampleRows caps the number of example rows carried per table in a
// schema snapshot.
const MaxSampleRows = 3

// SchemaSnapshot is a versioned description of one database at a point in
// time. Tables carry the wire (list) form; NormalizeTables in the schema
// service produces the canonical map keyed by full name.
type SchemaSnapshot struct {
	DatabaseName string            `json:"database_name"`
	DatabaseType string            `json:"database_type"`
	CapturedAt   time.Time         `json:"captured_at"`
	Tables       []TableDescriptor `json:"tables"`
	Views        []ViewDescriptor  `json:"views,omitempty"`
}

// TableDescriptor describes one table with its columns and relationships.
type TableDescriptor struct {
	SchemaName  string             `json:"schema_name"`
	TableName   string             `json:"table_name"`
	FullName    string             `json:"full_name"`
	Columns     []ColumnDescriptor `json:"columns"`
	ForeignKeys []ForeignKey       `json:"foreign_keys,omitempty"`
	SampleRows  []map[string]any   `json:"sample_rows,omitempty"`
}

// ColumnDescriptor describes one column.
type ColumnDescriptor struct {
	Name       string  `json:"name"`
	DataType   string  `json:"data_type"`
	Nullable   bool    `json:"nullable"`
	Default    *string `json:"default,omitempty"`
	PrimaryKey bool    `json:"primary_key"`
	Unique     bool    `json:"unique"`
}

// ForeignKey describes an outgoing reference from a table column.
// ReferencesTable is a full name (schema.table).
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
	OnDelete         string `json:"on_delete,omitempty"`
}

// ViewDescriptor describes one view.
type ViewDescriptor struct {
	SchemaName string `json:"schema_name"`
	ViewName   string `json:"view_name"`
	FullName   string `json:"full_name"`
}

// SchemaSummary is one row of a ListSchemas result.
type SchemaSummary struct {
	SchemaName string `json:"schema_name"`
	TableCount int    `json:"table_count"`
	ViewCount  int    `json:"view_count"`
}

// ServerInfo carries the identity returned by a successful connection test.
type ServerInfo struct {
	Database     string `json:"database"`
	User         string `json:"user"`
	Version      string `json:"version"`
	DatabaseType string `json:"database_type"`
}

// TableNames returns the full names of all tables in snapshot order.
func (s *SchemaSnapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.FullName)
	}
	return names
}

// FindTable locates a table by full name, then by bare table name.
// Returns nil when no table matches.
func (s *SchemaSnapshot) FindTable(name string) *TableDescriptor {
	for i := range s.Tables {
		if s.Tables[i].FullName == name {
			return &s.Tables[i]
		}
	}
	for i := range s.Tables {
		if s.Tables[i].TableName == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// ColumnNames returns the column names of the table in declaration order.
func (t *TableDescriptor) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// FindColumn returns the column with the given name, or nil.
func (t *TableDescriptor) FindColumn(name string) *ColumnDescriptor {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}
