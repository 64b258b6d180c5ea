package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourcesBatch() Batch {
	return Batch{
		Table:        "policy_sources",
		Columns:      []string{"id", "policy_id", "url", "title"},
		ConflictKeys: []string{"policy_id", "url"},
		SkipExisting: true,
	}
}

func TestUpsert_EmptyRows(t *testing.T) {
	n, err := Upsert(context.Background(), nil, sourcesBatch(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_Validation(t *testing.T) {
	_, err := Upsert(context.Background(), nil, Batch{Table: "t", ConflictKeys: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns")

	_, err = Upsert(context.Background(), nil, Batch{Table: "t", Columns: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no conflict keys")
}

func TestUpsert_SkipExisting(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	rows := [][]any{
		{"s1", "p1", "https://a.example/1", "一"},
		{"s2", "p1", "https://a.example/2", "二"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_policy_sources" \(LIKE "policy_sources" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_policy_sources"}, []string{"id", "policy_id", "url", "title"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "policy_sources" .* ON CONFLICT \("policy_id", "url"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := Upsert(context.Background(), mock, sourcesBatch(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_policy_sources"}, []string{"id", "policy_id", "url", "title"}).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = Upsert(context.Background(), mock, sourcesBatch(), [][]any{{"s1", "p1", "u", "t"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictAction(t *testing.T) {
	t.Parallel()

	b := Batch{Columns: []string{"id", "name", "votes"}, ConflictKeys: []string{"id"}}
	assert.Equal(t, `DO UPDATE SET "name" = EXCLUDED."name", "votes" = EXCLUDED."votes"`, b.conflictAction())

	b.UpdateCols = []string{"votes"}
	assert.Equal(t, `DO UPDATE SET "votes" = EXCLUDED."votes"`, b.conflictAction())

	b.SkipExisting = true
	assert.Equal(t, "DO NOTHING", b.conflictAction())
}

func TestTableIdent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `"policies"`, tableIdent("policies"))
	assert.Equal(t, `"public"."policies"`, tableIdent("public.policies"))
	assert.Equal(t, `"id", "url"`, columnList([]string{"id", "url"}))
}
