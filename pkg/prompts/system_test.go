package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLSystemPrompt_Tiers(t *testing.T) {
	minimal := SQLSystemPrompt("postgresql", TierMinimal)
	full := SQLSystemPrompt("postgresql", TierFull)

	assert.Contains(t, minimal, "Return SQL only")
	assert.Contains(t, full, "GROUP BY")
	assert.Greater(t, len(full), len(minimal))

	// Every tier carries the response contract and the dialect sheet.
	for _, tier := range []Tier{TierMinimal, TierStandard, TierExpanded, TierFull} {
		p := SQLSystemPrompt("postgresql", tier)
		assert.Contains(t, p, `"sql"`)
		assert.Contains(t, p, "LIMIT n")
	}
}

func TestDialectRules_Oracle(t *testing.T) {
	rules := DialectRules("oracle")
	assert.Contains(t, rules, "ROWNUM")
	assert.Contains(t, rules, "Never use LIMIT")
	assert.NotContains(t, SQLSystemPrompt("oracle", TierFull), "Limit rows with LIMIT n")
}

func TestDialectRules_Unknown(t *testing.T) {
	assert.Equal(t, "Use ANSI SQL.", DialectRules("db2"))
}

func TestSQLSystemPrompt_MentionsDialect(t *testing.T) {
	for _, d := range []string{"postgresql", "mysql", "oracle", "sqlite"} {
		assert.True(t, strings.Contains(SQLSystemPrompt(d, TierStandard), d), d)
	}
}
