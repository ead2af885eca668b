// Package pipeline composes the guard, parser, resolver, tenant
// injector, pagination rewriter, serializer, and executor into the two
// operations external callers use: validate-and-rewrite, then execute.
package pipeline

import (
	"context"

	"github.com/nl2sql-gateway/sqlgate/internal/core/dbexec"
	"github.com/nl2sql-gateway/sqlgate/internal/core/guard"
	"github.com/nl2sql-gateway/sqlgate/internal/core/paginate"
	"github.com/nl2sql-gateway/sqlgate/internal/core/resolve"
	"github.com/nl2sql-gateway/sqlgate/internal/core/schema"
	"github.com/nl2sql-gateway/sqlgate/internal/core/serialize"
	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlparse"
	"github.com/nl2sql-gateway/sqlgate/internal/core/tenant"
)

// RewriteOutput is the result of a successful validate-and-rewrite
// call: everything needed to execute the query and everything needed
// to report on it afterward.
type RewriteOutput struct {
	SQL              string
	Params           []any
	DisplayLimit     int
	FetchLimit       int
	ReferencedTables []string
}

// Request bundles everything ValidateAndRewrite needs from a caller.
type Request struct {
	CandidateSQL string
	Snapshot     *schema.Snapshot
	TenantID     string
	Page         int
	PageSize     int
	HardCap      int
}

// Pipeline is stateless; it holds only the executor it will eventually
// hand a RewriteOutput to.
type Pipeline struct {
	executor *dbexec.Executor
}

// New builds a Pipeline bound to executor.
func New(executor *dbexec.Executor) *Pipeline {
	return &Pipeline{executor: executor}
}

// ValidateAndRewrite runs the guard, parse, resolve, tenant-injection,
// pagination, and serialize stages in order, producing a RewriteOutput
// or a structured error. It performs no I/O and is safe to call without
// a database connection.
func ValidateAndRewrite(req Request) (*RewriteOutput, *sqlerr.Error) {
	if err := guard.Check(req.CandidateSQL); err != nil {
		return nil, err
	}

	tree, sel, err := sqlparse.Parse(req.CandidateSQL)
	if err != nil {
		return nil, err
	}

	resolution, err := resolve.Resolve(sel, req.Snapshot)
	if err != nil {
		return nil, err
	}

	var params []any
	if len(resolution.TenantTargets) > 0 {
		tenant.Inject(sel, resolution.TenantTargets, req.TenantID)
		params = []any{req.TenantID}
	}

	pageResult, err := paginate.Apply(sel, paginate.Params{
		Page:     req.Page,
		PageSize: req.PageSize,
		HardCap:  req.HardCap,
	})
	if err != nil {
		return nil, err
	}

	sqlOut, err := serialize.Emit(tree)
	if err != nil {
		return nil, err
	}

	return &RewriteOutput{
		SQL:              sqlOut,
		Params:           params,
		DisplayLimit:     pageResult.DisplayLimit,
		FetchLimit:       pageResult.FetchLimit,
		ReferencedTables: resolution.ReferencedTables,
	}, nil
}

// Execute runs a previously produced RewriteOutput and reports whether
// more rows exist beyond DisplayLimit (the fetch-limit overshoot row).
func (p *Pipeline) Execute(ctx context.Context, out *RewriteOutput) ([]dbexec.Row, bool, *sqlerr.Error) {
	rows, err := p.executor.Execute(ctx, out.SQL, out.Params)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(rows) > out.DisplayLimit
	if hasMore {
		rows = rows[:out.DisplayLimit]
	}
	return rows, hasMore, nil
}
