package sqlparse

import (
	"testing"

	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		code sqlerr.Code
	}{
		{"valid select", `SELECT u.id FROM users u`, ""},
		{"not select", `DROP TABLE users`, sqlerr.CodeNotSelect},
		{"with clause", `WITH x AS (SELECT 1) SELECT * FROM x`, sqlerr.CodeCTENotSupported},
		{"select into", `SELECT * INTO newtable FROM users`, sqlerr.CodeSelectInto},
		{"bad syntax", `SELEC u.id FROM users u`, sqlerr.CodeParseError},
		{"union", `SELECT id FROM users UNION SELECT id FROM payments`, sqlerr.CodeNotSelect},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, sel, err := Parse(c.sql)
			if c.code == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if sel == nil {
					t.Fatalf("expected a SelectStmt")
				}
				return
			}
			if err == nil {
				t.Fatalf("expected code %s, got nil", c.code)
			}
			if err.Code != c.code {
				t.Fatalf("expected code %s, got %s (%v)", c.code, err.Code, err)
			}
		})
	}
}
