package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st), st
}

func createTask(t *testing.T, l *Ledger, owner string) *model.Task {
	t.Helper()
	task := &model.Task{
		Type:       model.TaskCandidateSearch,
		Priority:   7,
		Parameters: model.TaskParams{ElectionYear: 2026, Regions: []string{"台北市"}},
		Region:     "台北市",
		CreatedBy:  owner,
	}
	require.NoError(t, l.Create(context.Background(), task))
	return task
}

func TestCreate(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	task := createTask(t, l, "user-1")
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, model.TaskPending, task.Status)

	err := l.Create(ctx, &model.Task{Type: "bogus"})
	var ve *model.ValidationError
	assert.True(t, errors.As(err, &ve))

	err = l.Create(ctx, &model.Task{Type: model.TaskPolicySearch, Status: model.TaskCompleted})
	assert.True(t, errors.As(err, &ve))

	scheduled := &model.Task{Type: model.TaskCandidateSearch, Status: model.TaskScheduled}
	require.NoError(t, l.Create(ctx, scheduled))
	assert.Equal(t, model.TaskScheduled, scheduled.Status)
}

func TestGet_AccessControl(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := createTask(t, l, "owner")

	got, err := l.Get(ctx, task.ID, Viewer{UserID: "owner"})
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, []string{"台北市"}, got.Parameters.Regions)

	_, err = l.Get(ctx, task.ID, Viewer{UserID: "admin", IsAdmin: true})
	require.NoError(t, err)

	_, err = l.Get(ctx, task.ID, Viewer{UserID: "stranger"})
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = l.Get(ctx, task.ID, Viewer{})
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = l.Get(ctx, "missing", Viewer{IsAdmin: true})
	assert.True(t, IsNotFound(err))
}

func TestTransition_ForwardOnly(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	task := createTask(t, l, "owner")

	require.NoError(t, l.Transition(ctx, task.ID, model.TaskProcessing), "skipping scheduled is allowed")

	err := l.Transition(ctx, task.ID, model.TaskScheduled)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	require.NoError(t, l.Complete(ctx, task.ID, "找到 3 位候選人", json.RawMessage(`{"count":3}`)))

	for _, to := range []model.TaskStatus{model.TaskFailed, model.TaskProcessing, model.TaskCompleted} {
		err := l.Transition(ctx, task.ID, to)
		assert.True(t, errors.Is(err, ErrInvalidTransition), "terminal -> %s", to)
	}

	got, err := l.Get(ctx, task.ID, Viewer{IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status)
	assert.Equal(t, "找到 3 位候選人", got.ResultSummary)
	assert.JSONEq(t, `{"count":3}`, string(got.ResultData))
	assert.NotNil(t, got.CompletedAt)

	err = l.Transition(ctx, "missing", model.TaskProcessing)
	assert.True(t, IsNotFound(err))
}

func TestFinish(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	err := l.Finish(ctx, "", model.TaskCompleted, "", nil, "")
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "Missing prompt_id", ve.Error())

	task := createTask(t, l, "owner")
	err = l.Finish(ctx, task.ID, "done", "", nil, "")
	assert.True(t, errors.As(err, &ve))

	err = l.Finish(ctx, task.ID, model.TaskCompleted, "", json.RawMessage(`{broken`), "")
	assert.True(t, errors.As(err, &ve))

	require.NoError(t, l.Finish(ctx, task.ID, model.TaskProcessing, "", nil, ""))
	got, err := l.Get(ctx, task.ID, Viewer{UserID: "owner"})
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, l.Fail(ctx, task.ID, "AI 服務逾時"))
	got, err = l.Get(ctx, task.ID, Viewer{UserID: "owner"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Equal(t, "AI 服務逾時", StatusMessage(got))
	assert.NotNil(t, got.CompletedAt)
}

func TestStatusMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		task model.Task
		want string
	}{
		{model.Task{Status: model.TaskPending}, "任務等待處理中"},
		{model.Task{Status: model.TaskScheduled}, "任務已排程"},
		{model.Task{Status: model.TaskProcessing}, "任務處理中"},
		{model.Task{Status: model.TaskCompleted}, "任務已完成"},
		{model.Task{Status: model.TaskFailed}, "任務失敗"},
		{model.Task{Status: model.TaskFailed, ErrorMessage: "quota"}, "quota"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusMessage(&tt.task))
	}
}
