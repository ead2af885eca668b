package resolve

import (
	"testing"
	"time"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/nl2sql-gateway/sqlgate/internal/core/schema"
	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

func testSnapshot() *schema.Snapshot {
	users := schema.NewTable("public", "users", false, []string{"id", "name", "organizationId", "password"})
	payments := schema.NewTable("public", "payments", false, []string{"id", "userId", "amount", "organizationId"})
	return schema.NewSnapshot(schema.DialectPostgres, []*schema.Table{users, payments}, time.Time{})
}

func parseSelect(t *testing.T, sql string) *pg_query.SelectStmt {
	t.Helper()
	tree, err := pg_query.Parse(sql)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel := tree.GetStmts()[0].GetStmt().GetSelectStmt()
	if sel == nil {
		t.Fatalf("not a select")
	}
	return sel
}

func TestResolveCanonicalizesCase(t *testing.T) {
	sel := parseSelect(t, `SELECT u.organizationid FROM users u ORDER BY u.organizationid`)
	res, err := Resolve(sel, testSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rt := sel.GetTargetList()[0].GetResTarget()
	cr := rt.GetVal().GetColumnRef()
	got := cr.GetFields()[len(cr.GetFields())-1].GetString_().GetSval()
	if got != "organizationId" {
		t.Fatalf("expected canonical case organizationId, got %s", got)
	}
	if len(res.TenantTargets) != 1 {
		t.Fatalf("expected one tenant target, got %d", len(res.TenantTargets))
	}
}

func TestResolveLeftJoinTenantTarget(t *testing.T) {
	sel := parseSelect(t, `SELECT u.id, p.amount FROM users u LEFT JOIN payments p ON p.userId = u.id ORDER BY u.id`)
	res, err := Resolve(sel, testSnapshot())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.TenantTargets) != 2 {
		t.Fatalf("expected two tenant targets, got %d", len(res.TenantTargets))
	}
	var sawOwning, sawPlain bool
	for _, tt := range res.TenantTargets {
		if tt.OwningJoin != nil {
			sawOwning = true
		} else {
			sawPlain = true
		}
	}
	if !sawOwning || !sawPlain {
		t.Fatalf("expected one owned-by-join and one plain target, got %+v", res.TenantTargets)
	}
}

func TestResolveWildcardRejected(t *testing.T) {
	sel := parseSelect(t, `SELECT * FROM users`)
	_, err := Resolve(sel, testSnapshot())
	if err == nil || err.Code != sqlerr.CodeWildcard {
		t.Fatalf("expected WILDCARD, got %v", err)
	}
}

func TestResolveSensitiveColumnRejected(t *testing.T) {
	sel := parseSelect(t, `SELECT u.password FROM users u`)
	_, err := Resolve(sel, testSnapshot())
	if err == nil || err.Code != sqlerr.CodeSensitiveColumn {
		t.Fatalf("expected SENSITIVE_COLUMN, got %v", err)
	}
}

func TestResolveRightJoinRejected(t *testing.T) {
	sel := parseSelect(t, `SELECT p.id FROM users u RIGHT JOIN payments p ON p.userId = u.id`)
	_, err := Resolve(sel, testSnapshot())
	if err == nil || err.Code != sqlerr.CodeJoinUnsupported {
		t.Fatalf("expected JOIN_UNSUPPORTED, got %v", err)
	}
}

func TestResolveCommaJoinRejected(t *testing.T) {
	sel := parseSelect(t, `SELECT id FROM users u, payments p WHERE id = 1`)
	_, err := Resolve(sel, testSnapshot())
	if err == nil {
		t.Fatalf("expected error for implicit comma join")
	}
}

func TestResolveUnknownAlias(t *testing.T) {
	sel := parseSelect(t, `SELECT x.id FROM users u`)
	_, err := Resolve(sel, testSnapshot())
	if err == nil || err.Code != sqlerr.CodeAliasUnknown {
		t.Fatalf("expected ALIAS_UNKNOWN, got %v", err)
	}
}
