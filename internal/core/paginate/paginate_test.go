package paginate

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

func parseSelect(t *testing.T, sql string) *pg_query.SelectStmt {
	t.Helper()
	tree, err := pg_query.Parse(sql)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tree.GetStmts()[0].GetStmt().GetSelectStmt()
}

func TestApplyDefaultsToPageSize(t *testing.T) {
	sel := parseSelect(t, `SELECT u.id FROM users u ORDER BY u.id`)
	res, err := Apply(sel, Params{Page: 1, PageSize: 2, HardCap: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DisplayLimit != 2 || res.FetchLimit != 3 || res.Offset != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestApplyModelLimitWins(t *testing.T) {
	sel := parseSelect(t, `SELECT u.id FROM users u LIMIT 1`)
	res, err := Apply(sel, Params{Page: 1, PageSize: 100, HardCap: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DisplayLimit != 1 || res.FetchLimit != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestApplyOffsetRejected(t *testing.T) {
	sel := parseSelect(t, `SELECT u.id FROM users u LIMIT 10 OFFSET 20`)
	_, err := Apply(sel, Params{Page: 1, PageSize: 100, HardCap: 100})
	if err == nil || err.Code != sqlerr.CodeOffsetNotAllowed {
		t.Fatalf("expected OFFSET_NOT_ALLOWED, got %v", err)
	}
}

func TestApplyNonNumericLimit(t *testing.T) {
	sel := parseSelect(t, `SELECT u.id FROM users u LIMIT 'x'::int`)
	_, err := Apply(sel, Params{Page: 1, PageSize: 100, HardCap: 100})
	if err == nil || err.Code != sqlerr.CodeLimitNotNumeric {
		t.Fatalf("expected LIMIT_NOT_NUMERIC, got %v", err)
	}
}

func TestApplyZeroLimitInvalid(t *testing.T) {
	sel := parseSelect(t, `SELECT u.id FROM users u LIMIT 0`)
	_, err := Apply(sel, Params{Page: 1, PageSize: 100, HardCap: 100})
	if err == nil || err.Code != sqlerr.CodeLimitInvalid {
		t.Fatalf("expected LIMIT_INVALID, got %v", err)
	}
}

func TestApplyOverridesOffset(t *testing.T) {
	sel := parseSelect(t, `SELECT u.id FROM users u ORDER BY u.id`)
	_, err := Apply(sel, Params{Page: 3, PageSize: 10, HardCap: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ival := sel.GetLimitOffset().GetAConst().GetVal().(*pg_query.A_Const_Ival)
	if ival.Ival.GetIval() != 20 {
		t.Fatalf("expected offset 20, got %d", ival.Ival.GetIval())
	}
}
