// Package tenant injects tenant-identity predicates into a resolved
// SELECT AST: into the top-level WHERE for the leading table and any
// INNER-joined table, or into a LEFT JOIN's ON clause so the predicate
// can't silently collapse the outer join.
package tenant

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/nl2sql-gateway/sqlgate/internal/core/resolve"
)

// ParamIndex is the positional parameter index always allocated to the
// tenant identifier — it is the only parameter the core ever injects.
const ParamIndex = 1

// Inject mutates sel in place, adding one predicate per tenant target,
// each comparing against the placeholder at ParamIndex. It returns
// nothing and does not read tenantID: binding the tenant identifier to
// that placeholder is left to the caller. With no targets, sel is left
// unchanged.
func Inject(sel *pg_query.SelectStmt, targets []*resolve.TenantTarget, tenantID string) {
	for _, target := range targets {
		predicate := buildPredicate(target.Alias, target.TenantColumn)
		if target.OwningJoin != nil {
			target.OwningJoin.Quals = and(target.OwningJoin.Quals, predicate)
			continue
		}
		sel.WhereClause = and(sel.WhereClause, predicate)
	}
}

func buildPredicate(alias, column string) *pg_query.Node {
	colRef := &pg_query.Node{
		Node: &pg_query.Node_ColumnRef{
			ColumnRef: &pg_query.ColumnRef{
				Fields: []*pg_query.Node{strNode(alias), strNode(column)},
			},
		},
	}
	paramRef := &pg_query.Node{
		Node: &pg_query.Node_ParamRef{
			ParamRef: &pg_query.ParamRef{Number: int32(ParamIndex)},
		},
	}
	return &pg_query.Node{
		Node: &pg_query.Node_AExpr{
			AExpr: &pg_query.A_Expr{
				Kind:  pg_query.A_Expr_Kind_AEXPR_OP,
				Name:  []*pg_query.Node{strNode("=")},
				Lexpr: colRef,
				Rexpr: paramRef,
			},
		},
	}
}

func and(existing, addition *pg_query.Node) *pg_query.Node {
	if existing == nil {
		return addition
	}
	return &pg_query.Node{
		Node: &pg_query.Node_BoolExpr{
			BoolExpr: &pg_query.BoolExpr{
				Boolop: pg_query.BoolExprType_AND_EXPR,
				Args:   []*pg_query.Node{existing, addition},
			},
		},
	}
}

func strNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}
