//go:build integration

package richcatalog_test

import (
	"context"
	"database/sql"
	"embed"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nl2sql-gateway/sqlgate/internal/core/schema"
	"github.com/nl2sql-gateway/sqlgate/pkg/fixgres"
	"github.com/nl2sql-gateway/sqlgate/pkg/richcatalog"
)

//go:embed all:testdata/migrations
var migrationsFS embed.FS

func TestMain(m *testing.M) {
	m.Run()
}

func TestToSnapshotReflectsTenantKeyAndViews(t *testing.T) {
	fixgres.BootOnce(t, fixgres.WithGooseUp(migrationsFS))
	sbx := fixgres.NewSandbox(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", sbx.DSN)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE VIEW active_users AS SELECT * FROM users`); err != nil {
		t.Fatalf("create view: %v", err)
	}

	// The migrations run once at boot into public; the view lands in the
	// sandbox schema, the first entry of the sandbox search_path.
	catalog, err := richcatalog.New(db, richcatalog.Options{Schemas: []string{sbx.Schema, "public"}})
	if err != nil {
		t.Fatalf("richcatalog.New: %v", err)
	}
	if err := catalog.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	snap := catalog.ToSnapshot()
	users, ok := schema.ResolveTable(snap, "users", "public")
	if !ok {
		t.Fatalf("expected users table in snapshot")
	}
	if !users.HasTenantKey {
		t.Fatalf("expected users to carry the tenant key")
	}

	view, ok := schema.ResolveTable(snap, "active_users", sbx.Schema)
	if !ok {
		t.Fatalf("expected active_users view in snapshot")
	}
	if !view.IsView {
		t.Fatalf("expected active_users to be marked as a view")
	}
}
