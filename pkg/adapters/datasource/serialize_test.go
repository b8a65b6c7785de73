package datasource

import (
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestSerialize(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  any
	}{
		{"nil", nil, nil},
		{"string passthrough", "hello", "hello"},
		{"int passthrough", int64(42), int64(42)},
		{"float passthrough", 3.14, 3.14},
		{"bool passthrough", true, true},
		{"timestamp", ts, "2025-03-14T09:26:53Z"},
		{"timestamp pointer", &ts, "2025-03-14T09:26:53Z"},
		{"nil time pointer", (*time.Time)(nil), nil},
		{"bytes", []byte("plain"), "plain"},
		{"invalid utf8 bytes", []byte{0x66, 0xff, 0x6f}, "f�o"},
		{"big int", big.NewInt(12345), float64(12345)},
		{"nil numeric", pgtype.Numeric{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Serialize(tt.input))
		})
	}
}

func TestSerialize_Numeric(t *testing.T) {
	n := pgtype.Numeric{Int: big.NewInt(123456), Exp: -2, Valid: true}
	assert.InDelta(t, 1234.56, Serialize(n), 0.001)
}

// Serializing an already serialized value must not change it again.
func TestSerialize_Idempotent(t *testing.T) {
	inputs := []any{
		time.Now(),
		[]byte("bytes"),
		big.NewInt(7),
		"text",
		nil,
	}
	for _, v := range inputs {
		once := Serialize(v)
		assert.Equal(t, once, Serialize(once))
	}
}

func TestSerializeRow(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	row := map[string]any{
		"created_at": ts,
		"name":       []byte("ada"),
		"count":      int64(3),
	}

	got := SerializeRow(row)
	assert.Equal(t, "2024-01-02T03:04:05Z", got["created_at"])
	assert.Equal(t, "ada", got["name"])
	assert.Equal(t, int64(3), got["count"])
}
