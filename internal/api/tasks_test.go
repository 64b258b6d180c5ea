package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/classify"
	"github.com/sells-group/policy-tracker/internal/model"
)

func TestClassify_CreatesTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.st.CreateElection(ctx, &model.Election{
		Name:         "2026 地方選舉",
		ShortName:    "2026 地方",
		ElectionDate: time.Date(2026, 11, 28, 0, 0, 0, 0, time.UTC),
	}))

	status, body := f.do(t, call{
		path:  "/api/classify",
		body:  map[string]string{"input": "  請幫我找 2026 年台北市長候選人  "},
		token: f.token(t, "user-1"),
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, string(model.TaskCandidateSearch), body["task_type"])
	assert.InDelta(t, 0.9, body["confidence"], 1e-9)
	assert.Equal(t, false, body["requires_review"])
	assert.Equal(t, "正在搜尋候選人資訊，請稍候...", body["message"])

	id, _ := body["prompt_id"].(string)
	require.NotEmpty(t, id)
	task, err := f.st.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, classify.PriorityStandard, task.Priority)
	assert.Equal(t, "user-1", task.CreatedBy)
	assert.Equal(t, "請幫我找 2026 年台北市長候選人", task.Parameters.OriginalInput)
	assert.NotNil(t, task.ElectionID)
}

func TestClassify_AdminPriority(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, call{
		path:  "/api/classify",
		body:  map[string]string{"input": "這是某人的政見", "url": "https://example.org/a"},
		token: f.token(t, adminID),
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["requires_review"])

	task, err := f.st.GetTask(context.Background(), body["prompt_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, classify.PriorityAdmin, task.Priority)
	assert.Nil(t, task.ElectionID)
}

func TestClassify_ShortInput(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, call{
		path:  "/api/classify",
		body:  map[string]string{"input": " 台北市長 "},
		token: f.token(t, "user-1"),
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "請輸入至少 5 個字元", body["message"])
}

func TestClassify_DailyLimit(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "user-1")
	in := map[string]string{"input": "請幫我找 2026 年台北市長候選人"}

	for range 2 {
		status, _ := f.do(t, call{path: "/api/classify", body: in, token: tok})
		require.Equal(t, http.StatusOK, status)
	}
	status, body := f.do(t, call{path: "/api/classify", body: in, token: tok})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "已達今日上限（2 個任務），請明天再試", body["message"])

	// Admins are never limited.
	admin := f.token(t, adminID)
	for range 3 {
		status, _ := f.do(t, call{path: "/api/classify", body: in, token: admin})
		assert.Equal(t, http.StatusOK, status)
	}
}

func TestPromptStatus(t *testing.T) {
	f := newFixture(t)
	owner := f.token(t, "user-1")
	_, created := f.do(t, call{
		path:  "/api/classify",
		body:  map[string]string{"input": "請幫我找 2026 年台北市長候選人"},
		token: owner,
	})
	id := created["prompt_id"].(string)

	t.Run("owner by query", func(t *testing.T) {
		status, body := f.do(t, call{method: http.MethodGet, path: "/api/prompt-status?prompt_id=" + id, token: owner})
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, "任務等待處理中", body["status_message"])
		prompt := body["prompt"].(map[string]any)
		assert.Equal(t, id, prompt["id"])
		assert.Equal(t, "pending", prompt["status"])
	})
	t.Run("owner by body", func(t *testing.T) {
		status, _ := f.do(t, call{path: "/api/prompt-status", body: map[string]string{"prompt_id": id}, token: owner})
		assert.Equal(t, http.StatusOK, status)
	})
	t.Run("admin", func(t *testing.T) {
		status, _ := f.do(t, call{method: http.MethodGet, path: "/api/prompt-status?prompt_id=" + id, token: f.token(t, adminID)})
		assert.Equal(t, http.StatusOK, status)
	})
	t.Run("other user", func(t *testing.T) {
		status, body := f.do(t, call{method: http.MethodGet, path: "/api/prompt-status?prompt_id=" + id, token: f.token(t, "user-2")})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "您沒有權限查看此任務", body["message"])
	})
	t.Run("missing id", func(t *testing.T) {
		status, body := f.do(t, call{method: http.MethodGet, path: "/api/prompt-status", token: owner})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "請提供 prompt_id", body["message"])
	})
	t.Run("unknown id", func(t *testing.T) {
		status, body := f.do(t, call{method: http.MethodGet, path: "/api/prompt-status?prompt_id=nope", token: owner})
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "找不到指定的任務", body["message"])
	})
}

func TestAdminSearch(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, adminID)

	status, body := f.do(t, call{
		path:  "/api/admin/search",
		body:  map[string]any{"election_year": 2026, "region": "臺北市", "position": "市長", "name": "王小明"},
		token: admin,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "搜尋任務已建立，請等待處理", body["message"])

	task, err := f.st.GetTask(context.Background(), body["prompt_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, model.TaskCandidateSearch, task.Type)
	assert.Equal(t, classify.PriorityAdmin, task.Priority)
	assert.Equal(t, "搜尋 2026 年台灣臺北市市長，特定人物：王小明", task.Prompt)

	status, body = f.do(t, call{path: "/api/admin/search", body: map[string]any{"region": "臺北市"}, token: admin})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "請指定選舉年份", body["message"])
}

func TestSearchPrompt(t *testing.T) {
	assert.Equal(t, "搜尋 2026 年台灣高雄市議員選舉候選人名單",
		searchPrompt(adminSearchRequest{ElectionYear: 2026, Region: "高雄市", Position: "議員"}))
}
