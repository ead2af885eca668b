package serialize

import (
	"strings"
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

func TestEmitRoundTrips(t *testing.T) {
	tree, err := pg_query.Parse(`SELECT u.id FROM users u WHERE u.id = $1 LIMIT 3 OFFSET 0`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sql, serr := Emit(tree)
	if serr != nil {
		t.Fatalf("unexpected error: %v", serr)
	}
	if !strings.Contains(sql, "LIMIT") {
		t.Fatalf("expected LIMIT in output, got %s", sql)
	}
}
