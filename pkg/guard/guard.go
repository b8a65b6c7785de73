package guard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/corazawaf/libinjection-go"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
)

// Violation explains why a generated statement was rejected. Dangerous
// violations are fatal for the request; others force a retry.
type Violation struct {
	Reason    string
	Dangerous bool
}

func (v *Violation) Error() string {
	return fmt.Sprintf("sql validation failed: %s", v.Reason)
}

func (v *Violation) Unwrap() error {
	if v.Dangerous {
		return apperrors.ErrDangerousOperation
	}
	return apperrors.ErrValidationFailed
}

// proseMarkers betray a model answering in prose instead of SQL. The
// generation parser strips fences, so any marker left means no query.
var proseMarkers = []string{
	"here is",
	"here's",
	"i cannot",
	"i can't",
	"i'm sorry",
	"as an ai",
	"unfortunately",
	"to answer this",
}

// modificationIntents maps question words to the operations they license.
var modificationIntents = map[string][]StatementType{
	"insert":   {StatementInsert},
	"add":      {StatementInsert},
	"create":   {StatementInsert, StatementDDL},
	"update":   {StatementUpdate},
	"change":   {StatementUpdate},
	"modify":   {StatementUpdate},
	"set":      {StatementUpdate},
	"delete":   {StatementDelete},
	"remove":   {StatementDelete},
	"drop":     {StatementDDL},
	"truncate": {StatementDDL},
	"alter":    {StatementDDL},
}

// ValidateGenerated checks one generated statement against the question
// that produced it. Empty output, prose, unknown statement types, and
// unrequested modifications are rejected.
func ValidateGenerated(sql, question string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &Violation{Reason: "empty statement"}
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range proseMarkers {
		if strings.Contains(lower, marker) {
			return &Violation{Reason: fmt.Sprintf("response contains prose (%q)", marker)}
		}
	}

	stmtType := DetectStatementType(trimmed)
	if stmtType == StatementUnknown {
		return &Violation{Reason: "statement does not start with a recognized SQL keyword"}
	}

	if IsModifying(stmtType) && !questionRequestsModification(question, stmtType) {
		return &Violation{
			Reason:    fmt.Sprintf("%s generated but the question did not ask for a data modification", stmtType),
			Dangerous: true,
		}
	}

	return nil
}

// questionRequestsModification reports whether the question explicitly
// licenses the given modifying statement type.
func questionRequestsModification(question string, stmtType StatementType) bool {
	lower := strings.ToLower(question)
	for word, licensed := range modificationIntents {
		if !containsWord(lower, word) {
			continue
		}
		for _, t := range licensed {
			if t == stmtType {
				return true
			}
		}
	}
	return false
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(s[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(s) || !isWordChar(s[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// ScreenQuestion rejects questions carrying SQL injection payloads before
// they reach the model.
func ScreenQuestion(question string) error {
	if isSQLi, fingerprint := libinjection.IsSQLi(question); isSQLi {
		return &Violation{
			Reason:    fmt.Sprintf("question matches injection fingerprint %s", fingerprint),
			Dangerous: true,
		}
	}
	return nil
}

// UnqualifiedTables returns the known table names sql references without
// the schema prefix. Callers turn a non-empty result into a retry hint.
func UnqualifiedTables(sql, schema string, tableNames []string) []string {
	var unqualified []string
	for _, table := range tableNames {
		bare := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(table) + `\b`)
		qualified := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(schema+"."+table) + `\b`)
		if bare.MatchString(sql) && !qualified.MatchString(sql) {
			unqualified = append(unqualified, table)
		}
	}
	return unqualified
}
