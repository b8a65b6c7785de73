package services

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/config"
	"github.com/indaba-ai/indaba-engine/pkg/models"
	"github.com/indaba-ai/indaba-engine/pkg/prompts"
)

// ContextStrategy names one of the four prompt-sizing regimes.
type ContextStrategy string

const (
	StrategyConcise  ContextStrategy = "concise"
	StrategySemi     ContextStrategy = "semi"
	StrategyExpanded ContextStrategy = "expanded"
	StrategyLarge    ContextStrategy = "large"
)

// StrategyForTokens derives the regime from the model's context budget.
func StrategyForTokens(maxTokens int) ContextStrategy {
	switch {
	case maxTokens < 3000:
		return StrategyConcise
	case maxTokens <= 6000:
		return StrategySemi
	case maxTokens <= 10000:
		return StrategyExpanded
	default:
		return StrategyLarge
	}
}

// budgetRatios are percentages of max_tokens allotted per prompt section.
// The reserve column absorbs hints and rounding.
type budgetRatios struct {
	system  int
	schema  int
	history int
	err     int
	reserve int
}

var ratiosByStrategy = map[ContextStrategy]budgetRatios{
	StrategyConcise:  {system: 15, schema: 40, history: 20, err: 15, reserve: 10},
	StrategySemi:     {system: 12, schema: 45, history: 20, err: 13, reserve: 10},
	StrategyExpanded: {system: 10, schema: 50, history: 20, err: 10, reserve: 10},
	StrategyLarge:    {system: 8, schema: 55, history: 20, err: 10, reserve: 7},
}

var tierByStrategy = map[ContextStrategy]prompts.Tier{
	StrategyConcise:  prompts.TierMinimal,
	StrategySemi:     prompts.TierStandard,
	StrategyExpanded: prompts.TierExpanded,
	StrategyLarge:    prompts.TierFull,
}

// tableCapByStrategy bounds how many tables the schema section carries when
// no focused set is given. Zero means no cap.
var tableCapByStrategy = map[ContextStrategy]int{
	StrategyConcise:  10,
	StrategySemi:     20,
	StrategyExpanded: 40,
	StrategyLarge:    0,
}

const truncationMarker = "..."

// EstimateTokens approximates token count as ceil(chars/4).
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// TruncateToTokens cuts s to fit the token budget, keeping a prefix and
// appending the truncation marker. A non-positive budget yields "".
func TruncateToTokens(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(s) <= budget {
		return s
	}
	keep := budget*4 - len(truncationMarker)
	if keep <= 0 {
		return truncationMarker[:budget*4]
	}
	return s[:keep] + truncationMarker
}

// PromptContext is the assembled, budget-conforming prompt material. The
// section token counts always sum to at most the builder's max_tokens.
type PromptContext struct {
	Strategy       ContextStrategy
	SystemPrompt   string
	SchemaSection  string
	HistorySection string
	ErrorSection   string
	HintsSection   string
}

// UserPrompt joins the non-system sections with the question into the final
// user message.
func (p *PromptContext) UserPrompt(question string) string {
	var b strings.Builder
	if p.SchemaSection != "" {
		b.WriteString(p.SchemaSection)
		b.WriteString("\n\n")
	}
	if p.HintsSection != "" {
		b.WriteString(p.HintsSection)
		b.WriteString("\n\n")
	}
	if p.HistorySection != "" {
		b.WriteString(p.HistorySection)
		b.WriteString("\n\n")
	}
	if p.ErrorSection != "" {
		b.WriteString(p.ErrorSection)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// TotalTokens estimates the token footprint of every section.
func (p *PromptContext) TotalTokens() int {
	return EstimateTokens(p.SystemPrompt) +
		EstimateTokens(p.SchemaSection) +
		EstimateTokens(p.HistorySection) +
		EstimateTokens(p.ErrorSection) +
		EstimateTokens(p.HintsSection)
}

// BuildInput carries everything the builder folds into one prompt.
type BuildInput struct {
	Question      string
	Dialect       datasource.Dialect
	Snapshot      *models.SchemaSnapshot
	History       []models.ConversationTurn
	Hints         *models.Hints
	Analysis      *models.ErrorAnalysis
	LastError     string
	PreviousSQL   string
	FocusedTables []string
	Attempt       int
}

// ContextBuilder sizes prompt sections to the model's token budget.
type ContextBuilder struct {
	maxTokens int
	strategy  ContextStrategy
	logger    *zap.Logger
}

// NewContextBuilder picks the strategy from config: "auto" derives it from
// max_tokens, a named strategy pins it.
func NewContextBuilder(cfg config.LLMConfig, logger *zap.Logger) *ContextBuilder {
	strategy := StrategyForTokens(cfg.MaxTokens)
	if cfg.ContextStrategy != "" && cfg.ContextStrategy != "auto" {
		strategy = ContextStrategy(cfg.ContextStrategy)
	}
	return &ContextBuilder{
		maxTokens: cfg.MaxTokens,
		strategy:  strategy,
		logger:    logger.Named("context-builder"),
	}
}

// Strategy returns the active sizing regime.
func (b *ContextBuilder) Strategy() ContextStrategy { return b.strategy }

// Tier maps the strategy onto the system-prompt rule tier.
func (b *ContextBuilder) Tier() prompts.Tier { return tierByStrategy[b.strategy] }

// Build assembles the prompt sections, each truncated to its budget so the
// total never exceeds max_tokens.
func (b *ContextBuilder) Build(in BuildInput) *PromptContext {
	ratios := ratiosByStrategy[b.strategy]
	budget := func(pct int) int { return b.maxTokens * pct / 100 }

	out := &PromptContext{Strategy: b.strategy}

	out.SystemPrompt = TruncateToTokens(
		prompts.SQLSystemPrompt(string(in.Dialect), b.Tier()), budget(ratios.system))
	out.SchemaSection = TruncateToTokens(
		b.renderSchema(in), budget(ratios.schema))
	out.HistorySection = b.renderHistory(in.History, budget(ratios.history))
	out.ErrorSection = TruncateToTokens(
		b.renderError(in), budget(ratios.err))
	out.HintsSection = TruncateToTokens(
		renderHints(in.Hints), budget(ratios.reserve))

	b.logger.Debug("prompt context built",
		zap.String("strategy", string(b.strategy)),
		zap.Int("attempt", in.Attempt),
		zap.Int("total_tokens", out.TotalTokens()),
		zap.Int("max_tokens", b.maxTokens))
	return out
}

// schemaShape selects how much detail each table line carries.
type schemaShape int

const (
	shapeNamesOnly schemaShape = iota
	shapeTypesPK
	shapeTypesFK
	shapeFull
)

var shapeByStrategy = map[ContextStrategy]schemaShape{
	StrategyConcise:  shapeNamesOnly,
	StrategySemi:     shapeTypesPK,
	StrategyExpanded: shapeTypesFK,
	StrategyLarge:    shapeFull,
}

func (b *ContextBuilder) renderSchema(in BuildInput) string {
	if in.Snapshot == nil || len(in.Snapshot.Tables) == 0 {
		return ""
	}

	tables := b.selectTables(in)
	if len(tables) == 0 {
		return ""
	}
	return RenderSchemaTables(tables, shapeByStrategy[b.strategy])
}

// selectTables honors the focused set when given, else ranks by question
// relevance under the strategy cap.
func (b *ContextBuilder) selectTables(in BuildInput) []models.TableDescriptor {
	if len(in.FocusedTables) > 0 {
		focused := make([]models.TableDescriptor, 0, len(in.FocusedTables))
		for _, name := range in.FocusedTables {
			if t := in.Snapshot.FindTable(name); t != nil {
				focused = append(focused, *t)
			}
		}
		if len(focused) > 0 {
			return focused
		}
	}
	return RelevantTables(in.Snapshot, in.Question, tableCapByStrategy[b.strategy])
}

// RenderSchemaTables renders tables at the requested detail level.
func RenderSchemaTables(tables []models.TableDescriptor, shape schemaShape) string {
	var b strings.Builder
	b.WriteString("Database schema:\n")

	for _, t := range tables {
		switch shape {
		case shapeNamesOnly:
			fmt.Fprintf(&b, "- %s (%s)\n", t.FullName, strings.Join(t.ColumnNames(), ", "))
		default:
			fmt.Fprintf(&b, "Table %s:\n", t.FullName)
			for _, c := range t.Columns {
				b.WriteString("  - ")
				b.WriteString(c.Name)
				b.WriteString(" ")
				b.WriteString(c.DataType)
				if c.PrimaryKey {
					b.WriteString(" PRIMARY KEY")
				}
				if shape == shapeFull {
					if !c.Nullable && !c.PrimaryKey {
						b.WriteString(" NOT NULL")
					}
					if c.Unique && !c.PrimaryKey {
						b.WriteString(" UNIQUE")
					}
					if c.Default != nil {
						fmt.Fprintf(&b, " DEFAULT %s", *c.Default)
					}
				}
				b.WriteString("\n")
			}
			if shape >= shapeTypesFK {
				for _, fk := range t.ForeignKeys {
					fmt.Fprintf(&b, "  FK: %s -> %s.%s\n",
						fk.Column, fk.ReferencesTable, fk.ReferencesColumn)
				}
			}
			if shape == shapeFull && len(t.SampleRows) > 0 {
				fmt.Fprintf(&b, "  Sample rows: %s\n", renderSampleRows(t))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSampleRows(t models.TableDescriptor) string {
	parts := make([]string, 0, len(t.SampleRows))
	for _, row := range t.SampleRows {
		fields := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			if v, ok := row[c.Name]; ok {
				fields = append(fields, fmt.Sprintf("%s=%v", c.Name, v))
			}
		}
		parts = append(parts, "{"+strings.Join(fields, ", ")+"}")
	}
	return strings.Join(parts, "; ")
}

// renderHistory walks turns newest-first, keeping whole turns until the
// budget is spent; the oldest surviving turn may be truncated. Output order
// is newest first.
func (b *ContextBuilder) renderHistory(history []models.ConversationTurn, budget int) string {
	if len(history) == 0 || budget <= 0 {
		return ""
	}

	const header = "Conversation so far (most recent first):\n"
	remaining := budget - EstimateTokens(header)
	if remaining <= 0 {
		return ""
	}

	var lines []string
	for i := len(history) - 1; i >= 0; i-- {
		line := history[i].Role + ": " + history[i].Content
		cost := EstimateTokens(line + "\n")
		if cost > remaining {
			if truncated := TruncateToTokens(line, remaining-1); truncated != "" {
				lines = append(lines, truncated)
			}
			break
		}
		lines = append(lines, line)
		remaining -= cost
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimRight(header+strings.Join(lines, "\n"), "\n")
}

// renderError folds the previous failure into the prompt. Concise and semi
// regimes carry the message and the first hint; expanded and large add the
// failed SQL, cited identifiers, and suggestions.
func (b *ContextBuilder) renderError(in BuildInput) string {
	if in.LastError == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("The previous attempt failed with: ")
	sb.WriteString(in.LastError)
	sb.WriteString("\n")

	expanded := b.strategy == StrategyExpanded || b.strategy == StrategyLarge

	if in.Analysis != nil {
		hints := in.Analysis.Hints
		if !expanded && len(hints) > 1 {
			hints = hints[:1]
		}
		for _, h := range hints {
			sb.WriteString("Hint: ")
			sb.WriteString(h)
			sb.WriteString("\n")
		}
		if expanded {
			if len(in.Analysis.OffendingIdentifiers) > 0 {
				fmt.Fprintf(&sb, "Identifiers cited: %s\n",
					strings.Join(in.Analysis.OffendingIdentifiers, ", "))
			}
			for _, s := range in.Analysis.Suggestions {
				sb.WriteString("Suggestion: ")
				sb.WriteString(s)
				sb.WriteString("\n")
			}
		}
	}

	if expanded && in.PreviousSQL != "" {
		sb.WriteString("Failed SQL:\n")
		sb.WriteString(in.PreviousSQL)
		sb.WriteString("\n")
	}
	sb.WriteString("Generate a corrected query.")
	return sb.String()
}

func renderHints(h *models.Hints) string {
	if h.IsEmpty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("Semantic hints:\n")
	for _, c := range h.DetectedConcepts {
		fmt.Fprintf(&b, "- %q refers to concept %s", c.MatchedTerm, c.Name)
		if c.Table != "" {
			fmt.Fprintf(&b, " (table %s)", c.Table)
		}
		b.WriteString("\n")
	}
	for _, table := range sortedKeys(h.SuggestedColumns) {
		names := make([]string, 0, len(h.SuggestedColumns[table]))
		for _, s := range h.SuggestedColumns[table] {
			names = append(names, s.Column)
		}
		fmt.Fprintf(&b, "- Relevant columns on %s: %s\n", table, strings.Join(names, ", "))
	}
	for _, j := range h.SuggestedJoins {
		fmt.Fprintf(&b, "- Join %s.%s = %s.%s\n", j.FromTable, j.FromColumn, j.ToTable, j.ToColumn)
	}
	if len(h.RelatedTables) > 0 {
		fmt.Fprintf(&b, "- Related tables: %s\n", strings.Join(h.RelatedTables, ", "))
	}
	for _, q := range h.SimilarPastPairs {
		fmt.Fprintf(&b, "- A similar question %q was answered by: %s\n", q.Question, q.SQL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string][]models.ColumnSuggestion) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
