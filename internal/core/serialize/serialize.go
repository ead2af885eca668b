// Package serialize turns a rewritten AST back into SQL text and
// re-runs the lexical guard against the emitted string, so that no
// rewriting stage can silently introduce something the guard would
// have rejected on the way in.
package serialize

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/nl2sql-gateway/sqlgate/internal/core/guard"
	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

// Emit deparses tree and re-applies the guard to the result. A guard
// failure at this point means a rewriting stage produced something it
// shouldn't have — it is reported as an internal error, not a
// validation failure of the caller's input.
func Emit(tree *pg_query.ParseResult) (string, *sqlerr.Error) {
	sql, err := pg_query.Deparse(tree)
	if err != nil {
		return "", sqlerr.Wrap(sqlerr.CodeInternalRewriteLeak, "failed to deparse rewritten SQL", err)
	}
	if violation := guard.Check(sql); violation != nil {
		return "", sqlerr.Wrap(sqlerr.CodeInternalRewriteLeak, "rewritten SQL failed the post-serialize guard", violation)
	}
	return sql, nil
}
