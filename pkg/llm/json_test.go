package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare object",
			response: `{"sql": "SELECT 1"}`,
			want:     `{"sql": "SELECT 1"}`,
		},
		{
			name:     "fenced json",
			response: "Here you go:\n```json\n{\"sql\": \"SELECT 1\"}\n```",
			want:     `{"sql": "SELECT 1"}`,
		},
		{
			name:     "prose around object",
			response: `Sure! The answer is {"sql": "SELECT 1"} as requested.`,
			want:     `{"sql": "SELECT 1"}`,
		},
		{
			name:     "think tags stripped",
			response: "<think>reasoning here</think>{\"sql\": \"SELECT 1\"}",
			want:     `{"sql": "SELECT 1"}`,
		},
		{
			name:     "nested braces inside strings",
			response: `{"sql": "SELECT '{}' FROM t", "explanation": "braces {in} strings"}`,
			want:     `{"sql": "SELECT '{}' FROM t", "explanation": "braces {in} strings"}`,
		},
		{
			name:     "array",
			response: `notes [1, 2, 3] end`,
			want:     `[1, 2, 3]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("I cannot answer that question.")
	assert.Error(t, err)
}

func TestParseJSONResponse(t *testing.T) {
	gen, err := ParseJSONResponse[SQLGeneration]("```json\n{\"sql\": \"SELECT 1\", \"explanation\": \"trivial\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", gen.SQL)
	assert.Equal(t, "trivial", gen.Explanation)
}

func TestStripDecorations(t *testing.T) {
	assert.Equal(t, "SELECT 1", StripDecorations("```sql\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", StripDecorations("<think>hmm</think>\nSELECT 1"))
	assert.Equal(t, "SELECT 1", StripDecorations("  SELECT 1  "))
}
