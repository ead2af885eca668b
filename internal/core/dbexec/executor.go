// Package dbexec runs an already-rewritten, already-guarded SELECT
// inside a read-only, timeout-bounded transaction and returns the
// result rows as column-name-to-value maps.
package dbexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nl2sql-gateway/sqlgate/internal/core/guard"
	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

// schemaErrorCodes are the PostgreSQL SQLSTATE codes that indicate the
// rewritten query referenced something that doesn't exist or is
// malformed, as opposed to a transient or server-side failure.
var schemaErrorCodes = map[string]struct{}{
	"42703": {}, // undefined_column
	"42P01": {}, // undefined_table
	"42702": {}, // ambiguous_column
	"42883": {}, // undefined_function
	"42P10": {}, // invalid_column_reference
	"42601": {}, // syntax_error
}

// Executor runs read-only queries against a pgx connection pool.
type Executor struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

// New builds an Executor bound to pool, applying statementTimeout to
// every query it runs.
func New(pool *pgxpool.Pool, statementTimeout time.Duration) *Executor {
	return &Executor{pool: pool, statementTimeout: statementTimeout}
}

// Row is one result row, keyed by column name.
type Row map[string]any

// Execute runs sql with params inside a read-only transaction and
// returns the resulting rows. It re-applies the lexical guard to sql as
// a defense-in-depth check regardless of the caller's provenance.
func (e *Executor) Execute(ctx context.Context, sql string, params []any) ([]Row, *sqlerr.Error) {
	if violation := guard.Check(sql); violation != nil {
		return nil, sqlerr.Wrap(sqlerr.CodeInternalRewriteLeak, "executor guard re-check failed", violation)
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, sqlerr.Wrap(sqlerr.CodeDBOther, "failed to acquire connection", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, sqlerr.Wrap(sqlerr.CodeDBOther, "failed to begin read-only transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	timeoutMs := e.statementTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeoutMs)); err != nil {
		return nil, sqlerr.Wrap(sqlerr.CodeDBOther, "failed to set statement timeout", err)
	}

	rows, err := tx.Query(ctx, sql, params...)
	if err != nil {
		return nil, classify(err)
	}

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			rows.Close()
			return nil, classify(err)
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = vals[i]
		}
		out = append(out, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, sqlerr.Wrap(sqlerr.CodeDBOther, "failed to commit read-only transaction", err)
	}

	return out, nil
}

func classify(err error) *sqlerr.Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := schemaErrorCodes[pgErr.Code]; ok {
			return sqlerr.Wrap(sqlerr.CodeDBSchemaError, "query referenced an invalid schema object", err)
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "column") || strings.Contains(msg, "relation") || strings.Contains(msg, "syntax error") {
		return sqlerr.Wrap(sqlerr.CodeDBSchemaError, "query referenced an invalid schema object", err)
	}
	return sqlerr.Wrap(sqlerr.CodeDBOther, "query execution failed", err)
}
