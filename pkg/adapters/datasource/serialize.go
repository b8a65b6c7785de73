package datasource

import (
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Serialize converts one database value into a JSON-encodable form, uniform
// across dialects: timestamps and dates become ISO-8601 strings,
// arbitrary-precision decimals become floats, byte sequences become UTF-8
// strings with invalid bytes replaced, nil stays nil. Scalars already
// JSON-encodable pass through unchanged. Serialize is idempotent.
func Serialize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.Format(time.RFC3339)
	case []byte:
		return strings.ToValidUTF8(string(val), "�")
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if f, err := val.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return nil
	case *big.Int:
		if val == nil {
			return nil
		}
		f, _ := new(big.Float).SetInt(val).Float64()
		return f
	case *big.Float:
		if val == nil {
			return nil
		}
		f, _ := val.Float64()
		return f
	case big.Rat:
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}

// SerializeRow applies Serialize to every value of a row in place.
func SerializeRow(row map[string]any) map[string]any {
	for k, v := range row {
		row[k] = Serialize(v)
	}
	return row
}
