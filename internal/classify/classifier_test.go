package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/model"
)

func TestClassify_Decisions(t *testing.T) {
	t.Parallel()
	c := MustDefault()

	tests := []struct {
		name       string
		in         Input
		wantType   model.TaskType
		wantConf   float64
		wantReview bool
	}{
		{
			name:     "candidate search with region and position",
			in:       Input{Text: "請幫我找 2026 年台北市長候選人"},
			wantType: model.TaskCandidateSearch,
			wantConf: 0.9,
		},
		{
			name:       "news url",
			in:         Input{Text: "這是蔣萬安的政見新聞", URL: "https://udn.com/news/story/7314/123"},
			wantType:   model.TaskPolicyImport,
			wantConf:   0.8,
			wantReview: true,
		},
		{
			name:     "quoted name with profile keyword",
			in:       Input{Text: "請更新「蔡易餘」的學歷與經歷"},
			wantType: model.TaskPoliticianUpdate,
			wantConf: 0.9,
		},
		{
			name:     "explicit politician id with profile keyword",
			in:       Input{Text: "補上照片", PoliticianID: "p-1"},
			wantType: model.TaskPoliticianUpdate,
			wantConf: 0.9,
		},
		{
			name:     "profile keyword without politician falls through",
			in:       Input{Text: "這個人的背景是不是真的"},
			wantType: model.TaskPolicyVerify,
			wantConf: 0.85,
		},
		{
			name:     "search keyword without place falls through",
			in:       Input{Text: "誰說要兌現承諾"},
			wantType: model.TaskProgressTracking,
			wantConf: 0.75,
		},
		{
			name:     "verify",
			in:       Input{Text: "捷運延伸的政見是否屬實"},
			wantType: model.TaskPolicyVerify,
			wantConf: 0.85,
		},
		{
			name:     "progress",
			in:       Input{Text: "社會住宅的政見目前進度如何"},
			wantType: model.TaskProgressTracking,
			wantConf: 0.75,
		},
		{
			name:       "non-news url is a contribution",
			in:         Input{Text: "這是某人的政見", URL: "https://example.org/a"},
			wantType:   model.TaskUserContribution,
			wantConf:   0.6,
			wantReview: true,
		},
		{
			name:     "full-width digits are folded",
			in:       Input{Text: "列出２０２８年高雄議員"},
			wantType: model.TaskCandidateSearch,
			wantConf: 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(tt.in)
			assert.Equal(t, tt.wantType, got.TaskType)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
			assert.Equal(t, tt.wantReview, got.RequiresReview)
		})
	}
}

func TestClassify_QuotedNameAlwaysProfileUpdate(t *testing.T) {
	t.Parallel()
	c := MustDefault()

	for _, text := range []string{
		"「柯文哲」簡介",
		"幫我找『盧秀燕』的照片",
		"更新「黃國昌」維基背景",
		"「侯友宜」的個人資料有沒有更新",
	} {
		got := c.Classify(Input{Text: text})
		assert.Equal(t, model.TaskPoliticianUpdate, got.TaskType, text)
		assert.InDelta(t, 0.9, got.Confidence, 1e-9, text)
		assert.False(t, got.RequiresReview, text)
	}
}

func TestClassify_ExtractsParams(t *testing.T) {
	t.Parallel()
	c := MustDefault()

	got := c.Classify(Input{Text: "列出 2028 年台北市、新北市長與台中議員候選人"})
	assert.Equal(t, []string{"台北市", "新北市", "台中"}, got.Regions)
	assert.Equal(t, []string{"市長", "議員"}, got.Positions)
	assert.Equal(t, 2028, got.Year)

	got = c.Classify(Input{Text: "找高雄市長候選人 2035"})
	assert.Equal(t, 2026, got.Year, "out of window falls back to default")
}

func TestApplyAdmin(t *testing.T) {
	t.Parallel()
	c := MustDefault()

	res := c.Classify(Input{Text: "隨便寫寫一些東西"})
	require.True(t, res.RequiresReview)
	res.ApplyAdmin()
	assert.False(t, res.RequiresReview)
	assert.Equal(t, model.TaskUserContribution, res.TaskType)
}

func TestIsNewsURL(t *testing.T) {
	t.Parallel()
	c := MustDefault()

	assert.True(t, c.IsNewsURL("https://news.ltn.com.tw/news/politics/1"))
	assert.True(t, c.IsNewsURL("https://tw.news.yahoo.com/x"))
	assert.False(t, c.IsNewsURL("https://example.com/udn"))
	assert.False(t, c.IsNewsURL("not a url"))
	assert.False(t, c.IsNewsURL(""))
}

func TestQuotedName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "蔡易餘", QuotedName("請查「蔡易餘」的經歷"))
	assert.Equal(t, "盧秀燕", QuotedName("『盧秀燕』"))
	assert.Equal(t, "", QuotedName("沒有引號"))
}
