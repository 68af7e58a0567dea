package helper

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabase = "storygraph"
	testUsername = "postgres"
	testPassword = "postgres"
)

// MustStartPostgresContainer starts a pgvector-enabled PostgreSQL
// container for tests and returns a teardown function and the mapped
// host port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUsername),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", NewError("start postgres container", err)
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return pgContainer.Terminate, "", NewError("get mapped port", err)
	}

	return pgContainer.Terminate, mappedPort.Port(), nil
}

// SetTestDatabaseConfigEnvs sets the environment variables the
// database configuration reads, pointing at the test container.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("STORYGRAPH_DB_HOST", "localhost")
	t.Setenv("STORYGRAPH_DB_PORT", port)
	t.Setenv("STORYGRAPH_DB_DATABASE", testDatabase)
	t.Setenv("STORYGRAPH_DB_USERNAME", testUsername)
	t.Setenv("STORYGRAPH_DB_PASSWORD", testPassword)
	t.Setenv("STORYGRAPH_DB_SCHEMA", "public")
}
