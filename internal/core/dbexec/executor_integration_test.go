//go:build integration

package dbexec_test

import (
	"context"
	"embed"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nl2sql-gateway/sqlgate/internal/core/dbexec"
	"github.com/nl2sql-gateway/sqlgate/pkg/fixgres"
)

//go:embed all:testdata/migrations
var migrationsFS embed.FS

func TestMain(m *testing.M) {
	m.Run()
}

func TestExecuteReadOnly(t *testing.T) {
	fixgres.BootOnce(t, fixgres.WithGooseUp(migrationsFS))
	sbx := fixgres.NewSandbox(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, sbx.DSN)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()

	if _, err := sbx.DB.ExecContext(ctx, `INSERT INTO users (name, organizationid) VALUES ('ada', 'org_1')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	exec := dbexec.New(pool, 5*time.Second)
	rows, execErr := exec.Execute(ctx, `SELECT "name" FROM "users" WHERE "organizationid" = $1`, []any{"org_1"})
	if execErr != nil {
		t.Fatalf("execute: %v", execErr)
	}
	if len(rows) != 1 || rows[0]["name"] != "ada" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
