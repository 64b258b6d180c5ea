package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "以下是結果：{\"a\":1} 謝謝", `{"a":1}`},
		{"no object", "抱歉，我無法判斷", "抱歉，我無法判斷"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestParseAnalysis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("full answer in fence", func(t *testing.T) {
		t.Parallel()
		text := "```json\n" + `{
  "is_election_related": true,
  "is_policy_content": true,
  "politician_name": "蘇巧慧",
  "election_year": 2026,
  "position": "縣市長",
  "policies": [{"title": "社會住宅政策", "description": "興建2萬戶社會住宅", "category": "居住正義", "tags": ["住宅"]}],
  "summary": "包含具體政見",
  "confidence": 0.92
}` + "\n```"
		a, ok := parseAnalysis(ctx, text)
		require.True(t, ok)
		assert.True(t, a.IsPolicyContent)
		assert.Equal(t, "蘇巧慧", a.PoliticianName)
		assert.Equal(t, 2026, a.ElectionYear)
		require.Len(t, a.Policies, 1)
		assert.Equal(t, "居住正義", a.Policies[0].Category)
		assert.InDelta(t, 0.92, a.Confidence, 0.0001)
	})

	t.Run("nulls accepted", func(t *testing.T) {
		t.Parallel()
		a, ok := parseAnalysis(ctx, `{"is_election_related": false, "is_policy_content": false, "politician_name": null, "policies": null, "summary": null, "confidence": null}`)
		require.True(t, ok)
		assert.Equal(t, "分析完成", a.Summary)
		assert.Zero(t, a.Confidence)
	})

	t.Run("election year as string", func(t *testing.T) {
		t.Parallel()
		years := map[string]int{
			`"2026"`:    2026,
			`"2026年"`:   2026,
			`"民國115年"`: 2026,
			`2026.0`:    2026,
			`"unknown"`: 0,
			`"2026-27"`: 0,
			`null`:      0,
		}
		for in, want := range years {
			a, ok := parseAnalysis(ctx, `{"is_election_related": true, "is_policy_content": true, "election_year": `+in+`, "confidence": 0.8}`)
			require.True(t, ok, in)
			assert.Equal(t, want, a.ElectionYear, in)
			assert.InDelta(t, 0.8, a.Confidence, 0.0001, in)
		}
	})

	t.Run("confidence clamped", func(t *testing.T) {
		t.Parallel()
		a, ok := parseAnalysis(ctx, `{"is_election_related": true, "is_policy_content": false, "confidence": 7}`)
		require.True(t, ok)
		assert.InDelta(t, 1.0, a.Confidence, 0.0001)
	})

	t.Run("blank policy titles dropped", func(t *testing.T) {
		t.Parallel()
		a, ok := parseAnalysis(ctx, `{"is_election_related": true, "is_policy_content": true, "policies": [{"title": "  "}, {"title": "免費營養午餐"}]}`)
		require.True(t, ok)
		require.Len(t, a.Policies, 1)
		assert.Equal(t, "免費營養午餐", a.Policies[0].Title)
	})

	bad := map[string]string{
		"prose":        "I cannot help with that",
		"broken json":  `{"is_election_related": true,`,
		"wrong type":   `{"is_election_related": "yes", "is_policy_content": false}`,
		"missing keys": `{"summary": "ok"}`,
		"array":        `[1, 2, 3]`,
	}
	for name, text := range bad {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			a, ok := parseAnalysis(ctx, text)
			assert.False(t, ok)
			assert.Equal(t, Unparseable(), a)
			assert.Equal(t, UnparseableSummary, a.Summary)
			assert.False(t, a.IsElectionRelated)
			assert.Zero(t, a.Confidence)
		})
	}
}

func TestBuildVerifyPrompt(t *testing.T) {
	t.Parallel()

	p := buildVerifyPrompt("  某候選人承諾興建捷運  ", "", 5)
	assert.Contains(t, p, "某候選人承")
	assert.NotContains(t, p, "承諾")
	assert.NotContains(t, p, "相關網址內容")

	p = buildVerifyPrompt("訊息", "新聞全文內容很長很長", 4)
	assert.Contains(t, p, "相關網址內容：\n新聞全文")
	assert.NotContains(t, p, "新聞全文內")
	assert.Contains(t, p, "is_policy_content")
}
