package datasource

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// IsRowReturning reports whether a statement produces a result set.
// WITH counts: modifying CTEs are rejected upstream by the guard.
func IsRowReturning(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// decimalTypeNames are driver type names whose []byte representation is an
// arbitrary-precision decimal rather than a blob.
var decimalTypeNames = map[string]bool{
	"DECIMAL": true,
	"NUMERIC": true,
	"NUMBER":  true,
	"DEC":     true,
}

// ScanRows drains a database/sql result set into serialized column→value
// maps. Values scan through any and are shaped by Serialize; DECIMAL-family
// columns that surface as bytes are parsed into floats.
func ScanRows(rows *sql.Rows) ([]string, []map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, fmt.Errorf("read column types: %w", err)
	}
	isDecimal := make([]bool, len(colTypes))
	for i, ct := range colTypes {
		isDecimal[i] = decimalTypeNames[strings.ToUpper(ct.DatabaseTypeName())]
	}

	out := make([]map[string]any, 0)
	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok && isDecimal[i] {
				if f, perr := strconv.ParseFloat(string(b), 64); perr == nil {
					row[col] = f
					continue
				}
			}
			row[col] = Serialize(v)
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}

	return columns, out, nil
}
