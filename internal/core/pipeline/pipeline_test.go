package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/nl2sql-gateway/sqlgate/internal/core/schema"
	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

func testSnapshot() *schema.Snapshot {
	users := schema.NewTable("public", "users", false, []string{"id", "name", "organizationId", "password"})
	payments := schema.NewTable("public", "payments", false, []string{"id", "userId", "amount", "organizationId"})
	return schema.NewSnapshot(schema.DialectPostgres, []*schema.Table{users, payments}, time.Time{})
}

func TestValidateAndRewriteScenario1(t *testing.T) {
	out, err := ValidateAndRewrite(Request{
		CandidateSQL: `SELECT u.id, u.name FROM users u ORDER BY u.id`,
		Snapshot:     testSnapshot(),
		TenantID:     "org_1",
		Page:         1,
		PageSize:     2,
		HardCap:      100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.SQL, `"organizationId"`) {
		t.Fatalf("expected tenant predicate in output, got %s", out.SQL)
	}
	if !strings.HasSuffix(strings.TrimSpace(out.SQL), "LIMIT 3 OFFSET 0") {
		t.Fatalf("expected LIMIT 3 OFFSET 0 suffix, got %s", out.SQL)
	}
	if len(out.Params) != 1 || out.Params[0] != "org_1" {
		t.Fatalf("unexpected params: %+v", out.Params)
	}
	if out.DisplayLimit != 2 || out.FetchLimit != 3 {
		t.Fatalf("unexpected limits: %+v", out)
	}
}

func TestValidateAndRewriteWildcardRejected(t *testing.T) {
	_, err := ValidateAndRewrite(Request{
		CandidateSQL: `SELECT * FROM users`,
		Snapshot:     testSnapshot(),
		TenantID:     "org_1",
		Page:         1,
		PageSize:     10,
		HardCap:      100,
	})
	if err == nil || err.Code != sqlerr.CodeWildcard {
		t.Fatalf("expected WILDCARD, got %v", err)
	}
}

func TestValidateAndRewriteSideEffectFn(t *testing.T) {
	_, err := ValidateAndRewrite(Request{
		CandidateSQL: `SELECT nextval('public.seq_users') FROM users`,
		Snapshot:     testSnapshot(),
		TenantID:     "org_1",
		Page:         1,
		PageSize:     10,
		HardCap:      100,
	})
	if err == nil || err.Code != sqlerr.CodeSideEffectFn {
		t.Fatalf("expected SIDE_EFFECT_FN, got %v", err)
	}
}

func TestValidateAndRewriteLeftJoin(t *testing.T) {
	out, err := ValidateAndRewrite(Request{
		CandidateSQL: `SELECT u.id, p.amount FROM users u LEFT JOIN payments p ON p.userId = u.id ORDER BY u.id`,
		Snapshot:     testSnapshot(),
		TenantID:     "org_1",
		Page:         1,
		PageSize:     10,
		HardCap:      100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(out.SQL, `"organizationId" = $1`) != 2 {
		t.Fatalf("expected two tenant predicates, got %s", out.SQL)
	}
}
