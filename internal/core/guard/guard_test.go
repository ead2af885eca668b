package guard

import (
	"testing"

	"github.com/nl2sql-gateway/sqlgate/internal/core/sqlerr"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		code sqlerr.Code
	}{
		{"clean", `SELECT u.id FROM users u WHERE u.id = $1`, ""},
		{"semicolon", `SELECT u.id FROM users u;`, sqlerr.CodeSemicolon},
		{"line comment", `SELECT u.id FROM users u -- comment`, sqlerr.CodeComment},
		{"block comment", `SELECT u.id /* x */ FROM users u`, sqlerr.CodeComment},
		{"keyword after semicolon", `SELECT u.id FROM users u; DROP TABLE users`, sqlerr.CodeSemicolon},
		{"drop bare", `DROP TABLE users`, sqlerr.CodeDisallowedKeyword},
		{"word boundary ok", `SELECT u.create_time FROM users u`, ""},
		{"row lock", `SELECT u.id FROM users u FOR UPDATE`, sqlerr.CodeRowLock},
		{"row lock spaced", `SELECT u.id FROM users u FOR   NO KEY UPDATE`, sqlerr.CodeRowLock},
		{"side effect", `SELECT nextval('seq') FROM users u`, sqlerr.CodeSideEffectFn},
		{"pg_sleep", `SELECT pg_sleep(5) FROM users u`, sqlerr.CodeSideEffectFn},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Check(c.sql)
			if c.code == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected code %s, got nil", c.code)
			}
			if err.Code != c.code {
				t.Fatalf("expected code %s, got %s", c.code, err.Code)
			}
		})
	}
}
