// Package guard implements the fast, token-level rejection pass that
// runs before parsing and again after serialization. It never inspects
// the AST; it only ever looks at raw SQL text.
package guard

import (
	"regexp"
	"strings"

	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

var disallowedKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "truncate", "create",
	"grant", "revoke", "exec", "execute", "copy", "call", "do", "merge",
	"replace", "upsert", "vacuum", "analyze", "reindex", "cluster",
	"discard", "checkpoint",
}

var keywordRe = regexp.MustCompile(`(?i)\b(` + strings.Join(disallowedKeywords, "|") + `)\b`)

var rowLockRe = regexp.MustCompile(`(?i)\bfor\s+(update|share|no\s+key\s+update|key\s+share)\b`)

var sideEffectFnRe = regexp.MustCompile(`(?i)\b(nextval|setval|pg_advisory_lock|pg_advisory_xact_lock|pg_sleep)\s*\(`)

// Check runs the lexical guard over sql and returns a *sqlerr.Error on
// the first violation found, scanning in this order: semicolon, comment,
// row lock, disallowed keyword, side-effect function. Row locks are
// checked before keywords so that FOR UPDATE / FOR NO KEY UPDATE report
// ROW_LOCK rather than matching the "update" keyword.
func Check(sql string) *sqlerr.Error {
	if strings.Contains(sql, ";") {
		return sqlerr.New(sqlerr.CodeSemicolon, "statement contains a semicolon")
	}
	if strings.Contains(sql, "--") || strings.Contains(sql, "/*") {
		return sqlerr.New(sqlerr.CodeComment, "statement contains a comment marker")
	}
	if rowLockRe.MatchString(sql) {
		return sqlerr.New(sqlerr.CodeRowLock, "row-locking clause is not allowed")
	}
	if m := keywordRe.FindString(sql); m != "" {
		return sqlerr.Newf(sqlerr.CodeDisallowedKeyword, "disallowed keyword %q", strings.ToLower(m))
	}
	if m := sideEffectFnRe.FindString(sql); m != "" {
		return sqlerr.Newf(sqlerr.CodeSideEffectFn, "side-effecting function call %q", strings.ToLower(m))
	}
	return nil
}
