// Package sqlparse wraps pg_query_go's PostgreSQL parser, rejecting
// everything except a single plain SELECT before handing the AST to
// later stages.
package sqlparse

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

// Parse validates sql as a single, bare SELECT statement and returns its
// SelectStmt node along with the full parse tree (needed later by
// serialize.Emit, which deparses the whole tree).
func Parse(sql string) (*pg_query.ParseResult, *pg_query.SelectStmt, *sqlerr.Error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, nil, sqlerr.Wrap(sqlerr.CodeParseError, "could not parse candidate SQL", err)
	}

	if len(tree.GetStmts()) != 1 {
		return nil, nil, sqlerr.Newf(sqlerr.CodeMultiStatement, "expected exactly one statement, found %d", len(tree.GetStmts()))
	}

	sel := tree.GetStmts()[0].GetStmt().GetSelectStmt()
	if sel == nil {
		return nil, nil, sqlerr.New(sqlerr.CodeNotSelect, "only SELECT statements are allowed")
	}

	if sel.GetOp() != pg_query.SetOperation_SETOP_NONE {
		return nil, nil, sqlerr.New(sqlerr.CodeNotSelect, "compound SELECT (UNION/INTERSECT/EXCEPT) is not allowed")
	}

	if sel.GetWithClause() != nil {
		return nil, nil, sqlerr.New(sqlerr.CodeCTENotSupported, "WITH clauses are not supported")
	}

	if sel.GetIntoClause() != nil {
		return nil, nil, sqlerr.New(sqlerr.CodeSelectInto, "SELECT INTO is not allowed")
	}

	return tree, sel, nil
}
