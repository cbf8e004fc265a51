package testutils

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // PGX v5 driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer represents a PostgreSQL container for testing purposes.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string

	User     string
	Password string
	Name     string
	Host     string
	Port     string
}

// StartPostgresContainer starts a PostgreSQL container that is terminated at the end of the test.
//
// The test is skipped in short mode, on non Linux hosts, or when no container provider is reachable.
func StartPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	const (
		defaultUser     = "postgres"
		defaultPassword = "postgres"
		defaultName     = "testdb"
	)

	if testing.Short() {
		t.Skip("Skipping PostgreSQL container test in short mode")
	}
	if runtime.GOOS != "linux" {
		t.Skip("Skipping PostgreSQL container test on non-Linux OS")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     defaultUser,
			"POSTGRES_PASSWORD": defaultPassword,
			"POSTGRES_DB":       defaultName,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}
	ctx := t.Context()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Setup: failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Teardown: failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Setup: failed to get container host")

	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err, "Setup: failed to get mapped port")

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		defaultUser,
		defaultPassword,
		host,
		port.Port(),
		defaultName,
	)

	pc := &PostgresContainer{
		Container: container,
		DSN:       dsn,

		User:     defaultUser,
		Password: defaultPassword,
		Name:     defaultName,
		Host:     host,
		Port:     port.Port(),
	}
	require.NoError(t, pc.IsReady(t, 5*time.Second, 10), "Setup: PostgreSQL container is not ready")

	return pc
}

// IsReady checks if the PostgreSQL database is connectable.
// It will attempt to connect to the database multiple times, each attempt being timeout long at most.
func (pc PostgresContainer) IsReady(t *testing.T, timeout time.Duration, attempts int) error {
	t.Helper()

	config, err := pgx.ParseConfig(pc.DSN)
	if err != nil {
		return fmt.Errorf("failed to parse DSN: %w", err)
	}

	for i := range attempts {
		ctx, cancel := context.WithTimeout(t.Context(), timeout)
		conn, cErr := pgx.ConnectConfig(ctx, config)
		cancel()

		if cErr != nil {
			err = cErr
			t.Logf("Attempt %d: failed to connect to database: %v", i+1, err)
			time.Sleep(time.Second)
			continue
		}

		ctx, cancel = context.WithTimeout(t.Context(), 2*time.Second)
		defer cancel()
		return conn.Close(ctx)
	}

	return fmt.Errorf("database did not become ready after %d attempts: %v", attempts, err)
}

// ApplyMigrations applies migrations from the specified directory to the database using the PGX v5 driver.
func ApplyMigrations(t *testing.T, dsn string, migrationsDir string) {
	t.Helper()

	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsDir),
		"pgx5://"+strings.TrimPrefix(dsn, "postgres://"),
	)
	require.NoError(t, err, "Setup: failed to create migration instance")
	defer m.Close()

	if err := m.Up(); err != nil {
		require.ErrorIs(t, err, migrate.ErrNoChange, "Setup: failed to apply migrations")
	}
}

// DBListTables lists all the tables of the public schema, excluding a blacklist.
func DBListTables(t *testing.T, dsn string, blacklist ...string) []string {
	t.Helper()

	blacklistMap := make(map[string]bool)
	for _, table := range blacklist {
		blacklistMap[table] = true
	}

	conn, err := pgx.Connect(t.Context(), dsn)
	require.NoError(t, err, "failed to connect to the database")
	defer func() {
		require.NoError(t, conn.Close(t.Context()), "failed to close the database connection")
	}()

	rows, err := conn.Query(t.Context(), `
        SELECT table_name
        FROM information_schema.tables
        WHERE table_schema = 'public'
          AND table_type = 'BASE TABLE';`)
	require.NoError(t, err, "failed to execute query")

	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	require.NoError(t, err, "failed to read table names")

	var filtered []string
	for _, table := range tables {
		if !blacklistMap[table] {
			filtered = append(filtered, table)
		}
	}
	return filtered
}
