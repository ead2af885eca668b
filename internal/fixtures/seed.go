// Package fixtures generates deterministic demo data for local
// development and integration tests: a handful of users and payments
// spread across a couple of tenants, inserted with go-faker using a
// seeded PRNG so repeated runs produce the same rows.
package fixtures

import (
	"context"
	"fmt"

	faker "github.com/go-faker/faker/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nl2sql-gateway/sqlgate/pkg/prng"
)

// User is the shape go-faker populates for one demo user row.
type User struct {
	Name           string `faker:"name"`
	OrganizationID string `faker:"-"`
	Password       string `faker:"-"`
}

// Seed inserts demoUsersPerTenant users and demoPaymentsPerUser payments
// per user into the given tenants, using seed to drive a deterministic
// PRNG so the generated names are stable across runs.
func Seed(ctx context.Context, pool *pgxpool.Pool, tenantIDs []string, seed int64) error {
	faker.SetCryptoSource(prng.New(seed))

	for _, tenantID := range tenantIDs {
		for i := 0; i < demoUsersPerTenant; i++ {
			var u User
			if err := faker.FakeData(&u); err != nil {
				return fmt.Errorf("fixtures: generate user: %w", err)
			}
			u.OrganizationID = tenantID
			u.Password = "unused"

			var userID int
			err := pool.QueryRow(ctx,
				`INSERT INTO users (name, organizationid, password) VALUES ($1, $2, $3) RETURNING id`,
				u.Name, u.OrganizationID, u.Password,
			).Scan(&userID)
			if err != nil {
				return fmt.Errorf("fixtures: insert user: %w", err)
			}

			for j := 0; j < demoPaymentsPerUser; j++ {
				amount := float64((j+1)*1000) / 100
				if _, err := pool.Exec(ctx,
					`INSERT INTO payments (userid, amount, organizationid) VALUES ($1, $2, $3)`,
					userID, amount, tenantID,
				); err != nil {
					return fmt.Errorf("fixtures: insert payment: %w", err)
				}
			}
		}
	}
	return nil
}

const (
	demoUsersPerTenant  = 5
	demoPaymentsPerUser = 2
)
