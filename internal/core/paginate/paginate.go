// Package paginate enforces and rewrites the LIMIT/OFFSET clause of a
// resolved SELECT: the model may suggest a LIMIT, the caller supplies
// page/pageSize, and the rewritten clause always asks the database for
// one row more than it will show, so truncation is detectable.
package paginate

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

// Result carries the limits the caller needs to slice and report on the
// returned rows.
type Result struct {
	DisplayLimit int
	FetchLimit   int
	Offset       int
}

// Params are the caller-supplied pagination inputs.
type Params struct {
	Page     int
	PageSize int
	HardCap  int
}

// Apply validates sel's model-supplied LIMIT/OFFSET, computes the
// effective pagination window, and overwrites sel's LIMIT clause with
// the enforced fetch window.
func Apply(sel *pg_query.SelectStmt, p Params) (*Result, *sqlerr.Error) {
	if sel.GetLimitOffset() != nil {
		return nil, sqlerr.New(sqlerr.CodeOffsetNotAllowed, "candidate SQL may not specify OFFSET")
	}

	modelLimit := p.PageSize
	if sel.GetLimitCount() != nil {
		n, err := intLiteral(sel.GetLimitCount())
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, sqlerr.Newf(sqlerr.CodeLimitInvalid, "LIMIT must be positive, got %d", n)
		}
		modelLimit = n
	}

	displayLimit := min3(modelLimit, p.PageSize, p.HardCap)
	if displayLimit <= 0 {
		return nil, sqlerr.Newf(sqlerr.CodeLimitInvalid, "computed display limit is not positive: %d", displayLimit)
	}

	offset := (p.Page - 1) * displayLimit
	fetchLimit := displayLimit + 1

	sel.LimitCount = intNode(fetchLimit)
	sel.LimitOffset = intNode(offset)
	sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT

	return &Result{DisplayLimit: displayLimit, FetchLimit: fetchLimit, Offset: offset}, nil
}

func intLiteral(n *pg_query.Node) (int, *sqlerr.Error) {
	ac := n.GetAConst()
	if ac == nil {
		return 0, sqlerr.New(sqlerr.CodeLimitNotNumeric, "LIMIT must be a numeric literal")
	}
	ival, ok := ac.GetVal().(*pg_query.A_Const_Ival)
	if !ok {
		return 0, sqlerr.New(sqlerr.CodeLimitNotNumeric, "LIMIT must be a numeric literal")
	}
	return int(ival.Ival.GetIval()), nil
}

func intNode(n int) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val: &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(n)}},
			},
		},
	}
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
