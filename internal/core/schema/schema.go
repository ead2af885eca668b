// Package schema is the in-memory representation of the live database
// schema the safety pipeline validates candidate SQL against: tables,
// columns, tenant-bearing tables, and case-folded lookup indices.
//
// Everything here is immutable once built. The schema introspector (an
// external collaborator — see pkg/richcatalog) builds a new Snapshot on
// every refresh and hands it to the core as a read-only value; the core
// never mutates a Snapshot it was given.
package schema

import (
	"sort"
	"strings"
	"time"
)

// TenantColumn is the well-known column whose presence on a table marks
// it as multi-tenant.
const TenantColumn = "organizationid"

// Dialect identifies the SQL dialect a Snapshot was introspected for.
type Dialect string

const DialectPostgres Dialect = "PostgreSQL"

// Table is the metadata for one physical table or view.
type Table struct {
	SchemaName string
	TableName  string
	IsView     bool

	// ColumnNames holds the columns in original declared case and order.
	ColumnNames []string

	// lowerToOriginal maps a lower-cased column name to its original-case
	// spelling. Its keys are the table's lower-cased column set.
	lowerToOriginal map[string]string

	// HasTenantKey is true iff the table carries TenantColumn.
	HasTenantKey bool
}

// NewTable builds a Table from its declared columns, deriving the
// case-folded indices and the tenant-key flag.
func NewTable(schemaName, tableName string, isView bool, columnNames []string) *Table {
	t := &Table{
		SchemaName:      schemaName,
		TableName:       tableName,
		IsView:          isView,
		ColumnNames:     append([]string(nil), columnNames...),
		lowerToOriginal: make(map[string]string, len(columnNames)),
	}
	for _, c := range columnNames {
		t.lowerToOriginal[strings.ToLower(c)] = c
	}
	_, t.HasTenantKey = t.lowerToOriginal[TenantColumn]
	return t
}

// FullyQualifiedName returns "schema.table" in original case.
func (t *Table) FullyQualifiedName() string {
	return t.SchemaName + "." + t.TableName
}

// HasColumn reports whether the table declares lowerName (already
// lower-cased by the caller).
func (t *Table) HasColumn(lowerName string) bool {
	_, ok := t.lowerToOriginal[lowerName]
	return ok
}

// Snapshot is an immutable collection of Table values, indexed for lookup
// by the schema model's pure functions.
type Snapshot struct {
	Dialect     Dialect
	RefreshedAt time.Time

	tables          []*Table
	byFullyQualified map[string]*Table   // lower "schema.table" -> table
	byBareName      map[string][]*Table // lower "table" -> tables across schemas
}

// NewSnapshot builds a Snapshot from an ordered list of tables. Order is
// preserved for FormatForPrompt.
func NewSnapshot(dialect Dialect, tables []*Table, refreshedAt time.Time) *Snapshot {
	s := &Snapshot{
		Dialect:          dialect,
		RefreshedAt:      refreshedAt,
		tables:           append([]*Table(nil), tables...),
		byFullyQualified: make(map[string]*Table, len(tables)),
		byBareName:       make(map[string][]*Table, len(tables)),
	}
	for _, t := range tables {
		fq := strings.ToLower(t.SchemaName) + "." + strings.ToLower(t.TableName)
		s.byFullyQualified[fq] = t
		bare := strings.ToLower(t.TableName)
		s.byBareName[bare] = append(s.byBareName[bare], t)
	}
	return s
}

// Tables returns the snapshot's tables in their original order.
func (s *Snapshot) Tables() []*Table {
	return append([]*Table(nil), s.tables...)
}

// ResolveTable looks up a table by name, optionally schema-qualified.
// When schemaName is empty, ambiguous bare names (same table name across
// more than one non-public schema) resolve to nothing — callers must
// qualify.
func ResolveTable(snap *Snapshot, name string, schemaName string) (*Table, bool) {
	if snap == nil {
		return nil, false
	}
	if schemaName != "" {
		t, ok := snap.byFullyQualified[strings.ToLower(schemaName)+"."+strings.ToLower(name)]
		return t, ok
	}
	candidates := snap.byBareName[strings.ToLower(name)]
	switch len(candidates) {
	case 0:
		return nil, false
	case 1:
		return candidates[0], true
	default:
		for _, c := range candidates {
			if strings.EqualFold(c.SchemaName, "public") {
				return c, true
			}
		}
		return nil, false
	}
}

// CanonicalColumn returns the column's original-case spelling, if table
// declares it.
func CanonicalColumn(t *Table, lowerName string) (string, bool) {
	if t == nil {
		return "", false
	}
	orig, ok := t.lowerToOriginal[lowerName]
	return orig, ok
}

// FormatForPrompt renders "schema.table (col1, col2, ...)" lines, views
// first then base tables, preserving the snapshot's table order within
// each group. This is the prompt fed to the model layer — an external
// collaborator — alongside the caller's question.
func FormatForPrompt(snap *Snapshot) string {
	if snap == nil {
		return ""
	}
	var views, base []*Table
	for _, t := range snap.tables {
		if t.IsView {
			views = append(views, t)
		} else {
			base = append(base, t)
		}
	}
	var b strings.Builder
	for _, t := range append(views, base...) {
		b.WriteString(t.FullyQualifiedName())
		b.WriteString(" (")
		b.WriteString(strings.Join(t.ColumnNames, ", "))
		b.WriteString(")\n")
	}
	return b.String()
}

// SortedFullyQualifiedNames is a small helper for callers that need a
// deterministic audit trail of referenced tables.
func SortedFullyQualifiedNames(tables []*Table) []string {
	names := make([]string, 0, len(tables))
	seen := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		fq := t.FullyQualifiedName()
		if _, dup := seen[fq]; dup {
			continue
		}
		seen[fq] = struct{}{}
		names = append(names, fq)
	}
	sort.Strings(names)
	return names
}
