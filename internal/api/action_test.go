package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/model"
)

// act calls the automation endpoint with the body key set.
func (f *fixture) act(t *testing.T, action string, fields map[string]any) (int, map[string]any) {
	t.Helper()
	body := map[string]any{"action": action, "api_key": testAgentKey}
	for k, v := range fields {
		body[k] = v
	}
	return f.do(t, call{path: "/api/action", body: body})
}

func TestAction_Auth(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, call{path: "/api/action", body: map[string]any{"action": "query_candidates", "api_key": "wrong"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid API key", body["error"])

	status, _ = f.do(t, call{
		path:    "/api/action",
		body:    map[string]any{"action": "query_candidates"},
		headers: map[string]string{AgentKeyHeader: testAgentKey},
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestAction_Unknown(t *testing.T) {
	f := newFixture(t)
	status, body := f.act(t, "drop_tables", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Unknown action: drop_tables", body["error"])
}

func TestAction_Candidates(t *testing.T) {
	f := newFixture(t)

	status, body := f.act(t, "import_candidate", map[string]any{
		"prompt_id":     "0123456789abcdef",
		"election_year": 2026,
		"candidate": map[string]any{
			"name":       "陳大文",
			"party":      "民進黨",
			"position":   "市長",
			"region":     "臺北市",
			"confidence": 0.9,
		},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "created", body["action"])
	assert.NotEmpty(t, body["politician_id"])

	status, body = f.act(t, "import_candidate", map[string]any{
		"election_year": 2026,
		"candidate":     map[string]any{"name": "林小華"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "skipped", body["action"])

	status, body = f.act(t, "import_candidate", map[string]any{"candidate": map[string]any{"name": "陳大文"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing election_year or candidate.name", body["error"])

	status, body = f.act(t, "query_candidates", map[string]any{"election_year": 2026, "region": "臺北市"})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "找到 1 位現有候選人", body["message"])

	status, body = f.act(t, "deduplicate_candidates", map[string]any{"election_year": 2026})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["dry_run"])
	assert.EqualValues(t, 0, body["total_duplicates"])
}

func TestAction_PolicyLifecycle(t *testing.T) {
	f := newFixture(t)
	pol := f.seedPolitician(t, "王小明")

	status, body := f.act(t, "add_policy", map[string]any{
		"politician_name": "王小明",
		"policy":          map[string]any{"title": "社會住宅倍增", "category": "居住", "description": "八年兩萬戶"},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "created", body["action"])
	policyID := body["policy_id"].(string)

	status, body = f.act(t, "add_policy", map[string]any{
		"politician_name": "王小明",
		"policy":          map[string]any{"title": "社會住宅倍增"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "exists", body["action"])

	status, body = f.act(t, "add_policy", map[string]any{"politician_name": "查無此人", "policy": map[string]any{"title": "x"}})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["error"], "查無此人")

	status, body = f.act(t, "query_policies", map[string]any{"politician_id": pol.ID, "keywords": []string{"住宅"}})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = f.act(t, "update_policy", map[string]any{
		"prompt_id":       "abcdef0123456789",
		"politician_name": "王小明",
		"policy_title":    "社會住宅",
		"new_status":      "進行中",
		"new_progress":    40,
		"progress_note":   "第一期動工",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, policyID, body["policy_id"])

	p, err := f.st.GetPolicy(context.Background(), policyID)
	require.NoError(t, err)
	assert.Equal(t, model.PolicyInProgress, p.Status)
	assert.Equal(t, 40, p.Progress)

	status, body = f.act(t, "add_tracking_log", map[string]any{
		"policy_id": policyID,
		"log":       map[string]any{"content": "完成第一期招標", "date": "2026-10-01"},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["log_id"])

	status, body = f.act(t, "add_tracking_log", map[string]any{
		"policy_id": "nope",
		"log":       map[string]any{"content": "不存在的政見"},
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "找不到政見: nope", body["error"])

	logs, err := f.st.TrackingLogs(context.Background(), policyID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	status, body = f.act(t, "add_policy_source", map[string]any{
		"policy_id": policyID,
		"sources": []map[string]any{
			{"url": "https://news.example.tw/1", "title": "動工"},
			{"url": "https://news.example.tw/1"},
			{"url": "https://news.example.tw/2", "published_date": "2026-09-30"},
		},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["inserted_count"])

	status, body = f.act(t, "query_policy_sources", map[string]any{"policy_id": policyID, "limit": 1})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = f.act(t, "query_policy_sources", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing policy_id", body["error"])
}

func TestAction_UpdatePolitician(t *testing.T) {
	f := newFixture(t)
	pol := f.seedPolitician(t, "王小明")

	status, body := f.act(t, "update_politician", map[string]any{
		"politician_id": pol.ID,
		"updates":       map[string]any{"education": "臺大法律系、哈佛大學", "birth_year": 1970, "shoe_size": 42},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body["updated_fields"], "education")
	assert.Contains(t, body["rejected_fields"], "shoe_size")

	got, err := f.st.GetPolitician(context.Background(), pol.ID)
	require.NoError(t, err)
	require.NotNil(t, got.BirthYear)
	assert.Equal(t, 1970, *got.BirthYear)
}

func TestAction_UpdatePrompt(t *testing.T) {
	f := newFixture(t)
	_, created := f.do(t, call{
		path:  "/api/classify",
		body:  map[string]string{"input": "請幫我找 2026 年台北市長候選人"},
		token: f.token(t, "user-1"),
	})
	id := created["prompt_id"].(string)

	status, body := f.act(t, "update_prompt", map[string]any{"prompt_id": id, "status": "processing"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Prompt "+id+" updated to processing", body["message"])

	status, _ = f.act(t, "update_prompt", map[string]any{
		"prompt_id":      id,
		"status":         "completed",
		"result_summary": "找到 3 位候選人",
		"result_data":    map[string]any{"imported": 3},
	})
	require.Equal(t, http.StatusOK, status)

	task, err := f.st.GetTask(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Equal(t, "找到 3 位候選人", task.ResultSummary)
	assert.JSONEq(t, `{"imported":3}`, string(task.ResultData))
	assert.NotNil(t, task.CompletedAt)

	status, _ = f.act(t, "update_prompt", map[string]any{"prompt_id": id, "status": "processing"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = f.act(t, "update_prompt", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing prompt_id", body["error"])

	status, _ = f.act(t, "update_prompt", map[string]any{"prompt_id": "nope", "status": "completed"})
	assert.Equal(t, http.StatusNotFound, status)
}
