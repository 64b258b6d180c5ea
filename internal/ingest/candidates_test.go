package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/gate"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

func TestImportCandidate_SkipsWriteNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		candidate  CandidateInput
		wantReason string
		wantMsg    string
	}{
		{
			name:       "low confidence",
			candidate:  CandidateInput{Name: "陳其邁", Confidence: ptr(0.5)},
			wantReason: gate.ReasonLowConfidence,
			wantMsg:    "跳過低信心度候選人: 陳其邁 (confidence: 0.5, 需要 >= 0.7)",
		},
		{
			name:       "missing confidence defaults below threshold",
			candidate:  CandidateInput{Name: "陳其邁"},
			wantReason: gate.ReasonLowConfidence,
		},
		{
			name:       "placeholder name",
			candidate:  CandidateInput{Name: "國民黨人選未定", Confidence: ptr(0.95)},
			wantReason: gate.ReasonInvalidName,
			wantMsg:    "跳過無效名稱: 國民黨人選未定",
		},
		{
			name:       "latin name",
			candidate:  CandidateInput{Name: "John", Confidence: ptr(0.95)},
			wantReason: gate.ReasonInvalidName,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.eng.ImportCandidate(ctx, ImportRequest{TaskID: "task-1", ElectionYear: 2026, Candidate: tt.candidate})
			require.NoError(t, err)
			assert.True(t, res.Skipped())
			assert.Equal(t, tt.wantReason, res.Reason)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, res.Message)
			}
		})
	}

	pols, err := f.st.ListPoliticians(ctx)
	require.NoError(t, err)
	assert.Empty(t, pols)
	elections, err := f.st.ListElections(ctx)
	require.NoError(t, err)
	assert.Empty(t, elections)
	assert.Zero(t, f.invalidated)
}

func TestImportCandidate_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.ImportCandidate(context.Background(), ImportRequest{Candidate: CandidateInput{Name: "陳其邁"}})
	requireValidation(t, err, "Missing election_year or candidate.name")
}

func TestImportCandidate_CreateThenUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := CandidateInput{
		Name:       "陳其邁",
		Party:      "民進黨",
		Position:   "高雄市長",
		Region:     "高雄市",
		Confidence: ptr(0.9),
	}
	res, err := f.eng.ImportCandidate(ctx, ImportRequest{TaskID: "0123456789abcdef", ElectionYear: 2026, Candidate: in})
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)
	assert.Equal(t, "陳其邁", res.Name)
	require.NotEmpty(t, res.PoliticianID)

	election, err := f.eng.ResolveElection(ctx, 2026)
	require.NoError(t, err)
	pe, err := f.st.GetParticipation(ctx, res.PoliticianID, election.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CandidateRumored, pe.CandidateStatus)
	assert.Equal(t, "縣市長", pe.ElectionType)
	assert.Equal(t, "AI(01234567)", pe.SourceNote)
	assert.False(t, pe.Verified)

	in.Status = model.CandidateConfirmed
	again, err := f.eng.ImportCandidate(ctx, ImportRequest{ElectionYear: 2026, Candidate: in})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, again.Action)
	assert.Equal(t, res.PoliticianID, again.PoliticianID)

	pe, err = f.st.GetParticipation(ctx, res.PoliticianID, election.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CandidateConfirmed, pe.CandidateStatus)
	assert.Equal(t, "AI(-)", pe.SourceNote)

	pols, err := f.st.ListPoliticians(ctx)
	require.NoError(t, err)
	assert.Len(t, pols, 1)
	assert.GreaterOrEqual(t, f.invalidated, 2)
}

func TestQueryCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.eng.QueryCandidates(ctx, CandidateQuery{ElectionYear: 2026})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.NotNil(t, empty.Candidates)
	assert.Equal(t, "沒有找到符合條件的候選人", empty.Message)

	for _, c := range []CandidateInput{
		{Name: "盧秀燕", Region: "台中市", Position: "市長", Confidence: ptr(0.9)},
		{Name: "蔣萬安", Region: "台北市", Position: "市長", Confidence: ptr(0.9)},
	} {
		_, err := f.eng.ImportCandidate(ctx, ImportRequest{ElectionYear: 2026, Candidate: c})
		require.NoError(t, err)
	}

	got, err := f.eng.QueryCandidates(ctx, CandidateQuery{ElectionYear: 2026, Region: "台中"})
	require.NoError(t, err)
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "盧秀燕", got.Candidates[0].Name)
	assert.Equal(t, "找到 1 位現有候選人", got.Message)

	other, err := f.eng.QueryCandidates(ctx, CandidateQuery{ElectionYear: 2022})
	require.NoError(t, err)
	assert.Equal(t, 0, other.Count)
}

func TestDeduplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.eng.Deduplicate(ctx, 2026, true)
	require.NoError(t, err)
	assert.Equal(t, "找不到該年份的選舉", report.Message)

	_, err = f.eng.Deduplicate(ctx, 0, true)
	requireValidation(t, err, "Missing election_year")

	election, err := f.eng.ResolveElection(ctx, 2026)
	require.NoError(t, err)
	report, err = f.eng.Deduplicate(ctx, 2026, true)
	require.NoError(t, err)
	assert.Equal(t, "沒有參選記錄", report.Message)

	// Legacy data predates the unique pair index.
	_, err = f.st.DB().ExecContext(ctx, `DROP INDEX uq_politician_elections_pair`)
	require.NoError(t, err)

	dup := &model.Politician{Name: "黃偉哲", Region: "台南市"}
	single := &model.Politician{Name: "張善政", Region: "桃園市"}
	require.NoError(t, f.st.CreatePolitician(ctx, dup))
	require.NoError(t, f.st.CreatePolitician(ctx, single))

	var ids []string
	for i := 0; i < 3; i++ {
		pe := &model.Participation{PoliticianID: dup.ID, ElectionID: election.ID}
		require.NoError(t, f.st.CreateParticipation(ctx, pe))
		ids = append(ids, pe.ID)
	}
	require.NoError(t, f.st.CreateParticipation(ctx, &model.Participation{PoliticianID: single.ID, ElectionID: election.ID}))

	// Every command migrates on start; duplicates must survive that.
	require.NoError(t, f.st.Migrate(ctx))

	preview, err := f.eng.Deduplicate(ctx, 2026, true)
	require.NoError(t, err)
	assert.True(t, preview.DryRun)
	assert.Equal(t, 1, preview.DuplicateGroups)
	assert.Equal(t, 2, preview.TotalDuplicates)
	assert.Equal(t, "找到 1 組重複資料（預覽模式，未刪除）", preview.Message)
	require.Len(t, preview.Duplicates, 1)
	g := preview.Duplicates[0]
	assert.Equal(t, "黃偉哲", g.Name)
	assert.Equal(t, "台南市", g.Region)
	assert.Equal(t, ids[0], g.Kept)
	assert.ElementsMatch(t, ids[1:], g.Removed)
	assert.Equal(t, 3, g.Count)

	recs, err := f.st.ParticipationsInYear(ctx, 2026)
	require.NoError(t, err)
	assert.Len(t, recs, 4, "dry run deletes nothing")

	done, err := f.eng.Deduplicate(ctx, 2026, false)
	require.NoError(t, err)
	assert.Equal(t, 2, done.Deleted)
	assert.Equal(t, "已刪除 2 筆重複資料", done.Message)

	recs, err = f.st.ParticipationsInYear(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	kept, err := f.st.GetParticipation(ctx, dup.ID, election.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[0], kept.ID)

	// The commit restores the unique pair key.
	err = f.st.CreateParticipation(ctx, &model.Participation{PoliticianID: dup.ID, ElectionID: election.ID})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestGroupDuplicates_Cap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	election, err := f.eng.ResolveElection(ctx, 2026)
	require.NoError(t, err)
	_, err = f.st.DB().ExecContext(ctx, `DROP INDEX uq_politician_elections_pair`)
	require.NoError(t, err)

	for i := 0; i < maxReportedGroups+5; i++ {
		p := &model.Politician{Name: "候選人"}
		require.NoError(t, f.st.CreatePolitician(ctx, p))
		for j := 0; j < 2; j++ {
			require.NoError(t, f.st.CreateParticipation(ctx, &model.Participation{PoliticianID: p.ID, ElectionID: election.ID}))
		}
	}

	report, err := f.eng.Deduplicate(ctx, 2026, true)
	require.NoError(t, err)
	assert.Equal(t, maxReportedGroups+5, report.DuplicateGroups)
	assert.Len(t, report.Duplicates, maxReportedGroups)
}
