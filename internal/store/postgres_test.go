package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresStore(mock), mock
}

func TestRebind(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "SELECT 1", rebind("SELECT 1"))
	assert.Equal(t, "WHERE a = $1 AND b IN ($2, $3)", rebind("WHERE a = ? AND b IN (?, ?)"))
}

func TestPostgresStore_GetTask_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, task_type, status, .* FROM tasks WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetTask(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "postgres: get task")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountTasksSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tasks WHERE created_by = \$1 AND created_at >= \$2`).
		WithArgs("user-1", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.CountTasksSince(context.Background(), "user-1", since)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountUsageSince_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM usage_logs WHERE created_at >= \$1 AND function_type = \$2 AND ip_address = \$3`).
		WithArgs(since, "verify", "9.9.9.9").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(50))

	n, err := s.CountUsageSince(context.Background(), model.UsageFilter{
		FunctionType: model.FunctionVerify,
		IPAddress:    "9.9.9.9",
		Since:        since,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateTask_Guarded(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	done := time.Now().UTC()

	mock.ExpectExec(`UPDATE tasks SET status = \$1, updated_at = \$2, result_summary = \$3, completed_at = \$4 WHERE id = \$5 AND status IN \(\$6, \$7, \$8\)`).
		WithArgs("completed", pgxmock.AnyArg(), "done", pgxmock.AnyArg(), "task-1", "pending", "scheduled", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.UpdateTask(context.Background(), "task-1", model.PredecessorsOf(model.TaskCompleted), model.TaskUpdate{
		Status:        model.TaskCompleted,
		ResultSummary: "done",
		CompletedAt:   &done,
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimContribution(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE usage_logs SET is_contributed = \$1 WHERE id = \$2 AND is_contributed = \$3`).
		WithArgs(true, "log-1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE usage_logs SET is_contributed`).
		WithArgs(true, "log-1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	won, err := s.ClaimContribution(context.Background(), "log-1")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.ClaimContribution(context.Background(), "log-1")
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IsAdmin_NoProfile(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT is_admin FROM user_profiles WHERE id = \$1`).
		WithArgs("user-1").
		WillReturnError(pgx.ErrNoRows)

	admin, err := s.IsAdmin(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, admin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteParticipations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM politician_elections WHERE id IN \(\$1, \$2\)`).
		WithArgs("a", "b").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.DeleteParticipations(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddPolicySources_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_policy_sources"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_policy_sources"}, []string{"id", "policy_id", "url", "title", "source_name", "published_date", "created_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "policy_sources" .* ON CONFLICT \("policy_id", "url"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	sources := []model.PolicySource{
		{URL: " https://news.example/1 "},
		{URL: "https://news.example/2"},
	}
	n, err := s.AddPolicySources(context.Background(), "policy-1", sources)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "policy-1", sources[0].PolicyID)
	assert.Equal(t, "https://news.example/1", sources[0].URL)
	assert.NotEmpty(t, sources[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateAndPing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS elections`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\) FROM \(.*HAVING COUNT\(\*\) > 1`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS uq_politician_elections_pair`).
		WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateDefersPairIndexWithDuplicates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS elections`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\) FROM \(.*HAVING COUNT\(\*\) > 1`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet(), "no index is created while duplicates remain")
}

func TestPostgresStore_UsageTotalsSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\),.*FROM usage_logs WHERE created_at >= \$1`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"count", "failures", "tokens", "cost"}).AddRow(12, 3, 4800, 0.42))

	got, err := s.UsageTotalsSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, UsageTotals{Calls: 12, Failures: 3, Tokens: 4800, EstimatedUSD: 0.42}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TaskStatusCounts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM tasks WHERE created_at >= \$1 GROUP BY status`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).AddRow("completed", 8).AddRow("failed", 2))

	got, err := s.TaskStatusCounts(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, map[model.TaskStatus]int{model.TaskCompleted: 8, model.TaskFailed: 2}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
