package schema_test

import (
	"strings"
	"testing"
	"time"

	"github.com/nl2sql-gateway/sqlgate/internal/core/schema"
)

func testSnapshot() *schema.Snapshot {
	users := schema.NewTable("public", "users", false, []string{"id", "name", "organizationId", "password"})
	payments := schema.NewTable("public", "payments", false, []string{"id", "userId", "amount", "organizationId"})
	return schema.NewSnapshot(schema.DialectPostgres, []*schema.Table{users, payments}, time.Unix(0, 0))
}

func TestResolveTableByBareName(t *testing.T) {
	snap := testSnapshot()
	table, ok := schema.ResolveTable(snap, "users", "")
	if !ok {
		t.Fatalf("expected to resolve users")
	}
	if table.TableName != "users" {
		t.Fatalf("got table %q", table.TableName)
	}
}

func TestResolveTableUnknown(t *testing.T) {
	snap := testSnapshot()
	if _, ok := schema.ResolveTable(snap, "orders", ""); ok {
		t.Fatalf("expected orders to be unresolved")
	}
}

func TestHasTenantKey(t *testing.T) {
	snap := testSnapshot()
	users, _ := schema.ResolveTable(snap, "users", "")
	if !users.HasTenantKey {
		t.Fatalf("expected users to carry the tenant key")
	}
}

func TestCanonicalColumnCaseFolds(t *testing.T) {
	snap := testSnapshot()
	users, _ := schema.ResolveTable(snap, "users", "")
	orig, ok := schema.CanonicalColumn(users, "organizationid")
	if !ok || orig != "organizationId" {
		t.Fatalf("want organizationId, got %q ok=%v", orig, ok)
	}
}

func TestFormatForPromptListsTablesWithColumns(t *testing.T) {
	snap := testSnapshot()
	out := schema.FormatForPrompt(snap)
	if !strings.Contains(out, "public.users (id, name, organizationId, password)") {
		t.Fatalf("unexpected prompt format: %q", out)
	}
}
