package prompts

import (
	"fmt"
	"strings"
)

// Tier selects how much instruction rides in the SQL system prompt. The
// context builder picks the tier from its token strategy: tight budgets get
// the bare "return SQL only" form, large budgets get the full rule set.
type Tier int

const (
	TierMinimal Tier = iota
	TierStandard
	TierExpanded
	TierFull
)

// ResponseShape is appended to every SQL system prompt. The generation
// parser depends on this exact JSON contract.
const ResponseShape = `Respond with exactly one JSON object and nothing else:
{"sql": "<the SQL query>", "explanation": "<one short sentence>"}
Do not wrap the JSON in markdown fences. Do not add commentary.`

// fullRules escalate beyond the dialect sheet: schema adherence, joins,
// casting, recovery, optimization, nulls, aggregation, ambiguity.
var fullRules = []string{
	"Use only tables and columns that appear in the provided schema. Never invent names.",
	"Join tables through the foreign keys shown in the schema; prefer explicit JOIN ... ON.",
	"Cast explicitly when comparing columns of different types.",
	"If a previous attempt failed, the error section explains why; fix that exact problem.",
	"Prefer the simplest query that answers the question; avoid unnecessary subqueries.",
	"Account for NULL values in filters and aggregates.",
	"When aggregating, include every non-aggregated selected column in GROUP BY.",
	"If the question is ambiguous, choose the most common-sense reading and note it in the explanation.",
}

// SQLSystemPrompt builds the dialect-aware system prompt for SQL
// generation at the given tier.
func SQLSystemPrompt(dialect string, tier Tier) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert %s engineer. Translate the user's question into a single %s query.\n\n",
		dialect, dialect)
	b.WriteString(DialectRules(dialect))
	b.WriteString("\n")

	switch tier {
	case TierMinimal:
		b.WriteString("\nReturn SQL only.\n")
	case TierStandard:
		b.WriteString("\n" + fullRules[0] + "\n" + fullRules[1] + "\n")
	case TierExpanded:
		for _, r := range fullRules[:5] {
			b.WriteString("\n" + r)
		}
		b.WriteString("\n")
	default:
		for _, r := range fullRules {
			b.WriteString("\n" + r)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n" + ResponseShape)
	return b.String()
}
