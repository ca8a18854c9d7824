package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joseph-ayodele/pdftables/constants"
	"github.com/joseph-ayodele/pdftables/internal/common"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), common.DatabaseConfig{SQLitePath: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func exerciseRuns(t *testing.T, db *DB) {
	ctx := context.Background()
	repo := NewRunRepository(db, nil)

	first, err := repo.Start(ctx, "survey", "input_pdfs/survey.pdf", []string{"Species", "Status"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := repo.Start(ctx, "atlas", "input_pdfs/atlas.pdf", []string{"Species"})
	require.NoError(t, err)

	require.NoError(t, repo.Finish(ctx, first, RunOutcome{
		Status:         constants.RunStatusSucceeded,
		OutputPath:     "extracted_tables/survey_Spe_Sta_enhanced.xlsx",
		Rows:           3,
		PagesTotal:     3,
		PagesProcessed: 3,
		PagesWithData:  2,
		Resumed:        true,
	}))

	runs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, constants.RunStatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)

	done := runs[1]
	assert.Equal(t, first, done.ID)
	assert.Equal(t, constants.RunStatusSucceeded, done.Status)
	assert.Equal(t, []string{"Species", "Status"}, done.Columns)
	assert.Equal(t, 3, done.Rows)
	assert.Equal(t, 2, done.PagesWithData)
	assert.True(t, done.Resumed)
	require.NotNil(t, done.FinishedAt)

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	err = repo.Finish(ctx, uuid.New(), RunOutcome{Status: constants.RunStatusFailed})
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunRepositorySQLite(t *testing.T) {
	db := openMemory(t)
	exerciseRuns(t, db)
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, isPostgresDSN("postgres://u:p@localhost:5432/db"))
	assert.True(t, isPostgresDSN("postgresql://localhost/db"))
	assert.False(t, isPostgresDSN(""))
	assert.False(t, isPostgresDSN("runs.db"))
}

// requireDocker skips when no Docker host is reachable. Provider lookup
// panics without one, so the panic is turned into a skip.
func requireDocker(t *testing.T) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("docker not available: %v", r)
		}
	}()
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

func TestCreateRunsTableDialects(t *testing.T) {
	pg := createRunsTable(dialect.Postgres)
	assert.Contains(t, pg, `CREATE TABLE IF NOT EXISTS "extraction_runs" (`)
	assert.Contains(t, pg, `"columns" TEXT NOT NULL`)
	assert.Contains(t, pg, `"resumed" BOOLEAN NOT NULL DEFAULT FALSE`)
	assert.Contains(t, pg, `PRIMARY KEY ("id"))`)

	lite := createRunsTable(dialect.SQLite)
	assert.Contains(t, lite, "CREATE TABLE IF NOT EXISTS `extraction_runs` (")
	assert.Contains(t, lite, "`resumed` BOOLEAN NOT NULL DEFAULT 0")
	assert.NotContains(t, lite, "DEFAULT FALSE")
}

func TestRunRepositoryPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	requireDocker(t)
	ctx := context.Background()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pdftables_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pg.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := Open(ctx, common.DatabaseConfig{
		DSN:         fmt.Sprintf("postgres://test:test@%s:%s/pdftables_test?sslmode=disable", host, port.Port()),
		MaxConns:    4,
		DialTimeout: 10 * time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	exerciseRuns(t, db)
}
