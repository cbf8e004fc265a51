package daemon_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/public-data-space/zenodo-adapter/cmd/zenodo-adapter/daemon"
	"github.com/public-data-space/zenodo-adapter/internal/common/testutils"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fakeMigration := filepath.Join(dir, "fake.sql")
	require.NoError(t, os.WriteFile(fakeMigration, []byte(""), 0600), "Setup: couldn't write fake migration file")
	migrationsDir := testutils.MigrationsDir()

	tests := map[string]struct {
		args               []string
		noDatabase         bool
		preApplyMigrations bool

		wantTables   []string
		wantErr      bool
		wantUsageErr bool
	}{
		"Basic migration": {
			args:       []string{migrationsDir},
			wantTables: []string{"accessinformation"},
		},
		"Pre-applied migrations": {
			args:               []string{migrationsDir},
			preApplyMigrations: true,
			wantTables:         []string{"accessinformation"},
		},

		// Usage Error Cases
		"No path": {
			wantErr:      true,
			wantUsageErr: true,
		},
		"Non-existent path": {
			args:         []string{filepath.Join(dir, "non-existent-folder")},
			wantErr:      true,
			wantUsageErr: true,
		},
		"Path to file": {
			args:         []string{fakeMigration},
			wantErr:      true,
			wantUsageErr: true,
		},

		// Error Cases
		"No database": {
			args:       []string{migrationsDir},
			noDatabase: true,
			wantErr:    true,
		},
		"Empty migrations directory": {
			args:    []string{t.TempDir()},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			db := &testutils.PostgresContainer{}
			args := append([]string{"migrate"}, tc.args...)
			if tc.noDatabase {
				args = append(args, "--db-host", "127.0.0.1", "--db-port", "1", "-vv")
			} else {
				db = testutils.StartPostgresContainer(t)
				args = append(args,
					"--db-host", db.Host,
					"--db-port", db.Port,
					"--db-user", db.User,
					"--db-password", db.Password,
					"--db-name", db.Name,
					"-vv")

				if tc.preApplyMigrations {
					testutils.ApplyMigrations(t, db.DSN, migrationsDir)
				}
			}

			a, err := daemon.New()
			require.NoError(t, err, "Setup: New should not return an error")
			a.SetArgs(args...)

			err = a.Run()
			require.Equal(t, tc.wantUsageErr, a.UsageError(), "Run should return a usage error if expected")
			if tc.wantErr {
				require.Error(t, err, "Run should return an error")
				return
			}
			require.NoError(t, err, "Run should not return an error")

			got := testutils.DBListTables(t, db.DSN, "schema_migrations")
			require.ElementsMatch(t, tc.wantTables, got, "Run should create the expected tables in the database")
		})
	}
}
