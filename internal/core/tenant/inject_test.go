package tenant

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/nl2sql-gateway/sqlgate/internal/core/resolve"
)

func parseSelect(t *testing.T, sql string) *pg_query.SelectStmt {
	t.Helper()
	tree, err := pg_query.Parse(sql)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tree.GetStmts()[0].GetStmt().GetSelectStmt()
}

func TestInjectIntoWhere(t *testing.T) {
	sel := parseSelect(t, `SELECT u.id FROM users u WHERE u.id > 1`)
	Inject(sel, []*resolve.TenantTarget{{Alias: "u", TenantColumn: "organizationId"}}, "org_1")
	be := sel.GetWhereClause().GetBoolExpr()
	if be == nil || be.GetBoolop() != pg_query.BoolExprType_AND_EXPR {
		t.Fatalf("expected AND-combined WHERE, got %+v", sel.GetWhereClause())
	}
}

func TestInjectIntoJoinOn(t *testing.T) {
	sel := parseSelect(t, `SELECT u.id, p.amount FROM users u LEFT JOIN payments p ON p.userId = u.id`)
	je := sel.GetFromClause()[0].GetJoinExpr()
	target := &resolve.TenantTarget{Alias: "p", TenantColumn: "organizationId", OwningJoin: je}
	Inject(sel, []*resolve.TenantTarget{target}, "org_1")
	if sel.GetWhereClause() != nil {
		t.Fatalf("expected no WHERE clause added, got %+v", sel.GetWhereClause())
	}
	be := je.GetQuals().GetBoolExpr()
	if be == nil || be.GetBoolop() != pg_query.BoolExprType_AND_EXPR {
		t.Fatalf("expected AND-combined ON clause, got %+v", je.GetQuals())
	}
}

func TestInjectNoTargets(t *testing.T) {
	sel := parseSelect(t, `SELECT 1`)
	Inject(sel, nil, "org_1")
	if sel.GetWhereClause() != nil {
		t.Fatalf("expected no WHERE clause, got %+v", sel.GetWhereClause())
	}
}
