// Command server runs the guarded NL2SQL gateway: it serves the
// query/schema/audit HTTP surface, introspects the configured database
// on a fixed interval, and executes validated, rewritten SQL read-only
// against it.
package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/nl2sql-gateway/sqlgate/internal/api"
	"github.com/nl2sql-gateway/sqlgate/internal/audit"
	"github.com/nl2sql-gateway/sqlgate/internal/config"
	"github.com/nl2sql-gateway/sqlgate/internal/core/dbexec"
	"github.com/nl2sql-gateway/sqlgate/internal/core/pipeline"
	"github.com/nl2sql-gateway/sqlgate/internal/logutil"
	"github.com/nl2sql-gateway/sqlgate/internal/modelclient"
	"github.com/nl2sql-gateway/sqlgate/internal/schemareg"
	"github.com/nl2sql-gateway/sqlgate/pkg/richcatalog"
)

// migrationsDir is resolved relative to the process's working
// directory, which is expected to be the repository root in both local
// development and the container image build.
const migrationsDir = "db/migrations"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logutil.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(cfg.DatabaseURL, os.DirFS(migrationsDir)); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	// richcatalog speaks database/sql; the executor speaks pgxpool. They
	// are two handles onto the same database over two different
	// drivers — lib/pq for the low-traffic introspection connection,
	// pgx for the hot execution path.
	introspectDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer introspectDB.Close()

	catalog, err := richcatalog.New(introspectDB, richcatalog.Options{Schemas: []string{"public"}})
	if err != nil {
		return err
	}

	reg := schemareg.New()
	if err := catalog.Refresh(ctx); err != nil {
		return err
	}
	reg.Replace(catalog.ToSnapshot())

	stopRefresh := catalog.StartAutoRefresh(ctx, richcatalog.AutoRefresh{Interval: cfg.SchemaRefreshPeriod})
	defer stopRefresh()
	stopPropagate := propagateSnapshots(ctx, catalog, reg, cfg.SchemaRefreshPeriod)
	defer stopPropagate()

	executor := dbexec.New(pool, cfg.StatementTimeout)
	pl := pipeline.New(executor)
	auditHub := audit.NewHub()
	model := modelclient.NewStub()

	handler := &api.Handler{
		Pipeline:        pl,
		Model:           model,
		Schema:          reg,
		AuditHub:        auditHub,
		Log:             log,
		HardRowCap:      cfg.HardRowCap,
		DefaultPageSize: cfg.DefaultPageSize,
	}

	router := api.SetupRoutes(handler)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// propagateSnapshots polls the catalog's own refresh cadence and pushes
// any new snapshot into reg. richcatalog only tracks its own rich
// model; the registry is the core's narrower view of it.
func propagateSnapshots(ctx context.Context, catalog *richcatalog.DBCatalog, reg *schemareg.Registry, period time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reg.Replace(catalog.ToSnapshot())
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func runMigrations(databaseURL string, migFS fs.FS) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}
