package infra

import (
	"context"
	"fmt"
	"os"

	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PGContainer wraps the throwaway Postgres container backing a stress run.
// The zero value stands for an externally provided database that the run
// must not terminate.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 provisions a Postgres 16 container for the stress run and
// returns its DSN. overrideDSN or STRESS_TEST_PG_DSN short-circuit the
// container and reuse an existing database instead.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv("STRESS_TEST_PG_DSN"); dsn != "" {
		return &PGContainer{}, dsn, nil
	}

	pgC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16"),
		postgres.WithDatabase("disputeflow"),
		postgres.WithUsername("disputeflow"),
		postgres.WithPassword("disputeflow"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("infra: start postgres: %w", err)
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", fmt.Errorf("infra: connection string: %w", err)
	}
	return &PGContainer{C: pgC}, dsn, nil
}

// Terminate stops the container, if this run owns one.
func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
