// Package resolve walks a validated SELECT AST against a schema
// snapshot: it resolves every table reference in the FROM list,
// canonicalizes every column reference's case, and records where
// tenant-filter predicates must later be injected.
package resolve

import (
	"regexp"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/nl2sql-gateway/sqlgate/internal/core/schema"
	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

var sensitiveColumnRe = regexp.MustCompile(`(?i)(password|token|secret|apikey|api_key|refresh|salt|hash|credential|ssn|aadhaar|pan)`)

// TenantTarget is one place in the query where a tenant predicate must
// be injected: the alias carrying the predicate, the canonical tenant
// column name on that alias's table, and — when the alias was brought
// in by a LEFT JOIN — the join node whose ON clause must carry the
// predicate instead of the top-level WHERE.
type TenantTarget struct {
	Alias        string
	TenantColumn string
	OwningJoin   *pg_query.JoinExpr
}

// Result is everything later stages need from resolution.
type Result struct {
	TenantTargets    []*TenantTarget
	ReferencedTables []string
}

// fromRef is one resolved FROM-list entry.
type fromRef struct {
	alias      string
	table      *schema.Table
	owningJoin *pg_query.JoinExpr // non-nil when brought in by a LEFT JOIN
}

type resolver struct {
	snap *schema.Snapshot

	// refsByLowerAlias indexes every resolved FROM entry by lower-cased
	// alias, for qualifier resolution (rule 4). refsInOrder keeps FROM
	// order and drives the bare-name fallback and ambiguity checks
	// (rule 6).
	refsByLowerAlias map[string]*fromRef
	refsInOrder      []*fromRef

	selectAliases map[string]struct{}
}

// Resolve validates sel's FROM list and canonicalizes every column
// reference in place, returning the tenant targets and referenced
// tables a successful resolution produced.
func Resolve(sel *pg_query.SelectStmt, snap *schema.Snapshot) (*Result, *sqlerr.Error) {
	if len(sel.GetFromClause()) == 0 {
		return nil, sqlerr.New(sqlerr.CodeTableMissing, "query has no FROM clause")
	}
	if len(sel.GetFromClause()) > 1 {
		return nil, sqlerr.New(sqlerr.CodeJoinUnsupported, "comma-separated FROM items (implicit cross join) are not supported")
	}

	r := &resolver{
		snap:             snap,
		refsByLowerAlias: make(map[string]*fromRef),
		selectAliases:    make(map[string]struct{}),
	}

	if err := r.collectFrom(sel.GetFromClause()[0], nil); err != nil {
		return nil, err
	}

	for _, rt := range sel.GetTargetList() {
		if t := rt.GetResTarget(); t != nil && t.GetName() != "" {
			r.selectAliases[strings.ToLower(t.GetName())] = struct{}{}
		}
	}

	if err := r.walkTargetList(sel.GetTargetList()); err != nil {
		return nil, err
	}
	if err := r.walk(sel.GetWhereClause()); err != nil {
		return nil, err
	}
	for _, g := range sel.GetGroupClause() {
		if err := r.walk(g); err != nil {
			return nil, err
		}
	}
	if err := r.walk(sel.GetHavingClause()); err != nil {
		return nil, err
	}
	for _, s := range sel.GetSortClause() {
		if sb := s.GetSortBy(); sb != nil {
			if err := r.walk(sb.GetNode()); err != nil {
				return nil, err
			}
		}
	}
	if err := r.walkJoinQuals(sel.GetFromClause()[0]); err != nil {
		return nil, err
	}

	return r.result(), nil
}

func (r *resolver) result() *Result {
	seenTenant := make(map[string]struct{})
	var targets []*TenantTarget
	tableSet := make(map[string]struct{})
	for _, ref := range r.refsInOrder {
		tableSet[ref.table.FullyQualifiedName()] = struct{}{}
		if !ref.table.HasTenantKey {
			continue
		}
		key := strings.ToLower(ref.alias)
		if _, dup := seenTenant[key]; dup {
			continue
		}
		seenTenant[key] = struct{}{}
		canonical, _ := schema.CanonicalColumn(ref.table, schema.TenantColumn)
		targets = append(targets, &TenantTarget{
			Alias:        ref.alias,
			TenantColumn: canonical,
			OwningJoin:   ref.owningJoin,
		})
	}
	tables := make([]string, 0, len(tableSet))
	for t := range tableSet {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return &Result{TenantTargets: targets, ReferencedTables: tables}
}

// collectFrom walks one FROM-list item, registering every resolved
// table reference. nullableBy is non-nil when an ancestor LEFT JOIN
// already makes this subtree's rows nullable.
func (r *resolver) collectFrom(node *pg_query.Node, nullableBy *pg_query.JoinExpr) *sqlerr.Error {
	switch {
	case node.GetRangeVar() != nil:
		return r.collectRangeVar(node.GetRangeVar(), nullableBy)

	case node.GetJoinExpr() != nil:
		je := node.GetJoinExpr()
		if je.GetIsNatural() {
			return sqlerr.New(sqlerr.CodeJoinUnsupported, "NATURAL joins are not supported")
		}
		switch je.GetJointype() {
		case pg_query.JoinType_JOIN_INNER:
			if je.GetQuals() == nil && len(je.GetUsingClause()) == 0 {
				return sqlerr.New(sqlerr.CodeJoinUnsupported, "CROSS JOIN is not supported")
			}
		case pg_query.JoinType_JOIN_LEFT:
			// accepted
		default:
			return sqlerr.New(sqlerr.CodeJoinUnsupported, "only INNER and LEFT joins are supported")
		}

		if err := r.collectFrom(je.GetLarg(), nullableBy); err != nil {
			return err
		}
		rightNullableBy := nullableBy
		if je.GetJointype() == pg_query.JoinType_JOIN_LEFT {
			rightNullableBy = je
		}
		if err := r.collectFrom(je.GetRarg(), rightNullableBy); err != nil {
			return err
		}
		return nil

	case node.GetRangeSubselect() != nil:
		return sqlerr.New(sqlerr.CodeSubqueryNotSupported, "subqueries in FROM are not supported")

	default:
		return sqlerr.New(sqlerr.CodeFromUnsupported, "unsupported FROM clause item")
	}
}

func (r *resolver) collectRangeVar(rv *pg_query.RangeVar, nullableBy *pg_query.JoinExpr) *sqlerr.Error {
	table, ok := schema.ResolveTable(r.snap, rv.GetRelname(), rv.GetSchemaname())
	if !ok {
		return sqlerr.Newf(sqlerr.CodeTableUnknown, "unknown table %q", rv.GetRelname())
	}
	alias := rv.GetRelname()
	if a := rv.GetAlias(); a != nil && a.GetAliasname() != "" {
		alias = a.GetAliasname()
	}
	ref := &fromRef{alias: alias, table: table, owningJoin: nullableBy}
	r.refsByLowerAlias[strings.ToLower(alias)] = ref
	r.refsInOrder = append(r.refsInOrder, ref)
	return nil
}

// walkJoinQuals recurses through the FROM tree a second time, walking
// each JoinExpr's ON clause now that every alias in the query is known.
func (r *resolver) walkJoinQuals(node *pg_query.Node) *sqlerr.Error {
	je := node.GetJoinExpr()
	if je == nil {
		return nil
	}
	if err := r.walkJoinQuals(je.GetLarg()); err != nil {
		return err
	}
	if err := r.walkJoinQuals(je.GetRarg()); err != nil {
		return err
	}
	return r.walk(je.GetQuals())
}

func (r *resolver) walkTargetList(targets []*pg_query.Node) *sqlerr.Error {
	for _, n := range targets {
		rt := n.GetResTarget()
		if rt == nil {
			continue
		}
		if err := r.walk(rt.GetVal()); err != nil {
			return err
		}
	}
	return nil
}

// walk recurses through an expression tree, canonicalizing every
// ColumnRef it finds in place and rejecting wildcards and model-supplied
// parameters.
func (r *resolver) walk(node *pg_query.Node) *sqlerr.Error {
	if node == nil {
		return nil
	}

	if node.GetParamRef() != nil {
		return sqlerr.New(sqlerr.CodeParameterNotAllowed, "candidate SQL may not supply its own parameters")
	}

	if cr := node.GetColumnRef(); cr != nil {
		return r.resolveColumnRef(cr)
	}

	switch {
	case node.GetAExpr() != nil:
		ae := node.GetAExpr()
		if err := r.walk(ae.GetLexpr()); err != nil {
			return err
		}
		return r.walk(ae.GetRexpr())

	case node.GetBoolExpr() != nil:
		for _, a := range node.GetBoolExpr().GetArgs() {
			if err := r.walk(a); err != nil {
				return err
			}
		}
		return nil

	case node.GetFuncCall() != nil:
		for _, a := range node.GetFuncCall().GetArgs() {
			if err := r.walk(a); err != nil {
				return err
			}
		}
		return nil

	case node.GetTypeCast() != nil:
		return r.walk(node.GetTypeCast().GetArg())

	case node.GetCaseExpr() != nil:
		ce := node.GetCaseExpr()
		if err := r.walk(ce.GetArg()); err != nil {
			return err
		}
		for _, w := range ce.GetArgs() {
			if cw := w.GetCaseWhen(); cw != nil {
				if err := r.walk(cw.GetExpr()); err != nil {
					return err
				}
				if err := r.walk(cw.GetResult()); err != nil {
					return err
				}
			}
		}
		return r.walk(ce.GetDefresult())

	case node.GetCoalesceExpr() != nil:
		for _, a := range node.GetCoalesceExpr().GetArgs() {
			if err := r.walk(a); err != nil {
				return err
			}
		}
		return nil

	case node.GetNullIfExpr() != nil:
		for _, a := range node.GetNullIfExpr().Args {
			if err := r.walk(a); err != nil {
				return err
			}
		}
		return nil

	case node.GetMinMaxExpr() != nil:
		for _, a := range node.GetMinMaxExpr().GetArgs() {
			if err := r.walk(a); err != nil {
				return err
			}
		}
		return nil

	case node.GetNullTest() != nil:
		return r.walk(node.GetNullTest().GetArg())

	case node.GetSubLink() != nil:
		return sqlerr.New(sqlerr.CodeSubqueryNotSupported, "subqueries are not supported")

	case node.GetList() != nil:
		for _, item := range node.GetList().GetItems() {
			if err := r.walk(item); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}

func (r *resolver) resolveColumnRef(cr *pg_query.ColumnRef) *sqlerr.Error {
	fields := cr.GetFields()
	if len(fields) == 0 {
		return nil
	}
	if fields[len(fields)-1].GetAStar() != nil {
		return sqlerr.New(sqlerr.CodeWildcard, "wildcard column references are not allowed")
	}
	if len(fields) > 2 {
		return sqlerr.New(sqlerr.CodeColumnUnsupported, "catalog- or schema-qualified column references are not supported")
	}

	if len(fields) == 2 {
		qualifier := fields[0].GetString_().GetSval()
		colName := fields[1].GetString_().GetSval()
		return r.resolveQualified(cr, qualifier, colName)
	}

	colName := fields[0].GetString_().GetSval()
	return r.resolveUnqualified(cr, colName)
}

func (r *resolver) resolveQualified(cr *pg_query.ColumnRef, qualifier, colName string) *sqlerr.Error {
	lowerCol := strings.ToLower(colName)
	if sensitiveColumnRe.MatchString(lowerCol) {
		return sqlerr.Newf(sqlerr.CodeSensitiveColumn, "column %q is not allowed", colName)
	}

	ref, ok := r.refsByLowerAlias[strings.ToLower(qualifier)]
	if !ok {
		ref, ok = r.refByBareTableName(qualifier)
	}
	if !ok {
		return sqlerr.Newf(sqlerr.CodeAliasUnknown, "unknown table qualifier %q", qualifier)
	}

	canonical, ok := schema.CanonicalColumn(ref.table, lowerCol)
	if !ok {
		return sqlerr.Newf(sqlerr.CodeColumnUnknown, "unknown column %q on %q", colName, qualifier)
	}
	cr.Fields[len(cr.Fields)-1] = strNode(canonical)
	return nil
}

// refByBareTableName resolves a qualifier against referenced tables'
// bare names when it doesn't match any alias, per rule 4's fallback.
func (r *resolver) refByBareTableName(qualifier string) (*fromRef, bool) {
	var match *fromRef
	count := 0
	lowerQualifier := strings.ToLower(qualifier)
	for _, ref := range r.refsInOrder {
		if strings.ToLower(ref.table.TableName) == lowerQualifier {
			match = ref
			count++
		}
	}
	if count != 1 {
		return nil, false
	}
	return match, true
}

func (r *resolver) resolveUnqualified(cr *pg_query.ColumnRef, colName string) *sqlerr.Error {
	lowerCol := strings.ToLower(colName)
	if sensitiveColumnRe.MatchString(lowerCol) {
		return sqlerr.Newf(sqlerr.CodeSensitiveColumn, "column %q is not allowed", colName)
	}

	if _, ok := r.selectAliases[lowerCol]; ok {
		return nil
	}

	if len(r.refsInOrder) == 0 {
		return sqlerr.Newf(sqlerr.CodeColumnNoSource, "column %q has no table in scope", colName)
	}

	var owner *fromRef
	matches := 0
	for _, ref := range r.refsInOrder {
		if ref.table.HasColumn(lowerCol) {
			owner = ref
			matches++
		}
	}
	switch matches {
	case 0:
		return sqlerr.Newf(sqlerr.CodeColumnUnknown, "unknown column %q", colName)
	case 1:
		canonical, _ := schema.CanonicalColumn(owner.table, lowerCol)
		cr.Fields[len(cr.Fields)-1] = strNode(canonical)
		return nil
	default:
		return sqlerr.Newf(sqlerr.CodeColumnAmbiguous, "column %q is ambiguous across referenced tables", colName)
	}
}

func strNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}
