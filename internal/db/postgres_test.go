package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a throwaway Postgres container, applies the embedded
// migrations and returns a connected DB. Skipped with -short.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "password", "POSTGRES_DB": "rewind_test", "POSTGRES_USER": "postgres"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp"),
	}

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:password@%s:%d/rewind_test?sslmode=disable", host, port.Int())

	var sqlDB *sql.DB
	for i := 0; i < 10; i++ {
		sqlDB, err = sql.Open("pgx", dsn)
		if err == nil && sqlDB.Ping() == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err)
	require.NoError(t, Migrate(sqlDB))
	require.NoError(t, sqlDB.Close())

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewFromPool(pool)
}

// createTestUser inserts a user with a unique username/email.
func createTestUser(t *testing.T, database *DB, username string) *User {
	t.Helper()

	user := &User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, database.Users().Create(context.Background(), user))
	return user
}
