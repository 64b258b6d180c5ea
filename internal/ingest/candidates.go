package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/gate"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

// Actions reported by write operations.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
	ActionExists  = "exists"
	ActionAdded   = "added"
)

// ImportRequest proposes one candidate for an election year.
type ImportRequest struct {
	TaskID       string         `json:"prompt_id,omitempty"`
	ElectionYear int            `json:"election_year"`
	Candidate    CandidateInput `json:"candidate"`
}

// CandidateResult is the outcome of ImportCandidate.
type CandidateResult struct {
	Action        string   `json:"action"`
	Name          string   `json:"name,omitempty"`
	CandidateName string   `json:"candidate_name,omitempty"`
	PoliticianID  string   `json:"politician_id,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// Skipped reports whether the gate turned the candidate away.
func (r *CandidateResult) Skipped() bool { return r.Action == ActionSkipped }

// ImportCandidate gates a proposed candidate and upserts its participation
// in the year's election. Skipped candidates write nothing.
func (e *Engine) ImportCandidate(ctx context.Context, req ImportRequest) (*CandidateResult, error) {
	name := strings.TrimSpace(req.Candidate.Name)
	if req.ElectionYear <= 0 || name == "" {
		return nil, model.Invalid("", "Missing election_year or candidate.name")
	}

	d := e.gate.Candidate(name, req.Candidate.Confidence)
	if !d.Admit {
		metrics.Candidates.WithLabelValues(d.Reason).Inc()
		res := &CandidateResult{Action: ActionSkipped, CandidateName: name, Reason: d.Reason}
		switch d.Reason {
		case gate.ReasonLowConfidence:
			c := d.Confidence
			res.Confidence = &c
			res.Message = fmt.Sprintf("跳過低信心度候選人: %s (confidence: %s, 需要 >= %s)",
				name, formatScore(c), formatScore(e.gate.CandidateMin))
		default:
			res.Message = "跳過無效名稱: " + name
		}
		zap.L().Info("ingest: candidate skipped",
			zap.String("name", name),
			zap.String("reason", d.Reason),
			zap.Float64("confidence", d.Confidence),
		)
		return res, nil
	}

	election, err := e.ResolveElection(ctx, req.ElectionYear)
	if err != nil {
		return nil, err
	}
	req.Candidate.Name = name
	pol, _, err := e.ResolvePolitician(ctx, req.Candidate)
	if err != nil {
		return nil, err
	}

	status := req.Candidate.Status
	if !status.Valid() {
		status = model.CandidateRumored
	}
	note := model.SourceNote(req.TaskID)

	action, err := e.upsertParticipation(ctx, pol.ID, election.ID, func(pe *model.Participation, isNew bool) {
		pe.CandidateStatus = status
		pe.SourceNote = note
		if isNew {
			pe.Position = strings.TrimSpace(req.Candidate.Position)
			pe.Region = strings.TrimSpace(req.Candidate.Region)
			pe.ElectionType = PositionToType(req.Candidate.Position)
		}
	})
	if err != nil {
		return nil, err
	}

	metrics.Candidates.WithLabelValues(action).Inc()
	e.changed()
	return &CandidateResult{Action: action, Name: name, PoliticianID: pol.ID}, nil
}

// upsertParticipation applies fn to the existing (politician, election) row
// or to a fresh one and writes it back.
func (e *Engine) upsertParticipation(ctx context.Context, politicianID, electionID string, fn func(pe *model.Participation, isNew bool)) (string, error) {
	existing, err := e.store.GetParticipation(ctx, politicianID, electionID)
	switch {
	case err == nil:
		fn(existing, false)
		if err := e.store.UpdateParticipation(ctx, existing); err != nil {
			return "", eris.Wrap(err, "ingest: update participation")
		}
		return ActionUpdated, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", eris.Wrap(err, "ingest: get participation")
	}

	pe := &model.Participation{PoliticianID: politicianID, ElectionID: electionID}
	fn(pe, true)
	err = e.store.CreateParticipation(ctx, pe)
	if errors.Is(err, store.ErrConflict) {
		existing, err = e.store.GetParticipation(ctx, politicianID, electionID)
		if err != nil {
			return "", eris.Wrap(err, "ingest: re-read participation")
		}
		fn(existing, false)
		if err := e.store.UpdateParticipation(ctx, existing); err != nil {
			return "", eris.Wrap(err, "ingest: update participation")
		}
		return ActionUpdated, nil
	}
	if err != nil {
		return "", eris.Wrap(err, "ingest: create participation")
	}
	return ActionCreated, nil
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// CandidateQuery filters QueryCandidates.
type CandidateQuery struct {
	ElectionYear int    `json:"election_year,omitempty"`
	Region       string `json:"region,omitempty"`
	Position     string `json:"position,omitempty"`
	Name         string `json:"name,omitempty"`
}

// CandidateList is the QueryCandidates response.
type CandidateList struct {
	Count      int                  `json:"count"`
	Candidates []model.CandidateRow `json:"candidates"`
	Message    string               `json:"message"`
}

// QueryCandidates lists existing candidates so callers can avoid
// re-importing them.
func (e *Engine) QueryCandidates(ctx context.Context, q CandidateQuery) (*CandidateList, error) {
	rows, err := e.store.ListCandidates(ctx, store.CandidateFilter{
		Year:     q.ElectionYear,
		Region:   strings.TrimSpace(q.Region),
		Position: strings.TrimSpace(q.Position),
		Name:     strings.TrimSpace(q.Name),
		Limit:    store.DefaultQueryLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: query candidates")
	}
	if rows == nil {
		rows = []model.CandidateRow{}
	}
	msg := "沒有找到符合條件的候選人"
	if len(rows) > 0 {
		msg = fmt.Sprintf("找到 %d 位現有候選人", len(rows))
	}
	return &CandidateList{Count: len(rows), Candidates: rows, Message: msg}, nil
}

// DuplicateGroup describes one (politician, election) pair with more than
// one participation row.
type DuplicateGroup struct {
	Name    string   `json:"name"`
	Region  string   `json:"region"`
	Kept    string   `json:"kept"`
	Removed []string `json:"removed"`
	Count   int      `json:"count"`
}

// DedupeReport is the Deduplicate response.
type DedupeReport struct {
	Message         string           `json:"message"`
	DryRun          bool             `json:"dry_run"`
	DuplicateGroups int              `json:"duplicate_groups"`
	TotalDuplicates int              `json:"total_duplicates"`
	Deleted         int              `json:"deleted,omitempty"`
	Duplicates      []DuplicateGroup `json:"duplicates"`
}

const maxReportedGroups = 20

// Deduplicate keeps the earliest participation of every (politician,
// election) pair in the year and removes the rest unless dryRun is set.
func (e *Engine) Deduplicate(ctx context.Context, year int, dryRun bool) (*DedupeReport, error) {
	if year <= 0 {
		return nil, model.Invalid("", "Missing election_year")
	}
	elections, err := e.store.ElectionsInYear(ctx, year)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: elections in %d", year)
	}
	if len(elections) == 0 {
		return &DedupeReport{Message: "找不到該年份的選舉", DryRun: dryRun, Duplicates: []DuplicateGroup{}}, nil
	}

	recs, err := e.store.ParticipationsInYear(ctx, year)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: participations in %d", year)
	}
	if len(recs) == 0 {
		return &DedupeReport{Message: "沒有參選記錄", DryRun: dryRun, Duplicates: []DuplicateGroup{}}, nil
	}

	groups := groupDuplicates(recs)
	var remove []string
	for _, g := range groups {
		remove = append(remove, g.Removed...)
	}

	report := &DedupeReport{
		DryRun:          dryRun,
		DuplicateGroups: len(groups),
		TotalDuplicates: len(remove),
		Duplicates:      groups,
	}
	if len(report.Duplicates) > maxReportedGroups {
		report.Duplicates = report.Duplicates[:maxReportedGroups]
	}

	if dryRun || len(remove) == 0 {
		report.Message = fmt.Sprintf("找到 %d 組重複資料（預覽模式，未刪除）", len(groups))
		return report, nil
	}

	n, err := e.store.DeleteParticipations(ctx, remove)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: delete duplicates")
	}
	report.Deleted = n
	report.Message = fmt.Sprintf("已刪除 %d 筆重複資料", n)
	zap.L().Info("ingest: removed duplicate participations", zap.Int("year", year), zap.Int("deleted", n))
	e.changed()

	// Other years may still hold duplicates; the key waits for those.
	if _, err := e.store.EnsurePairIndex(ctx); err != nil {
		zap.L().Warn("ingest: participation pair index", zap.Error(err))
	}
	return report, nil
}

// groupDuplicates expects records ordered by pair then created_at, id.
func groupDuplicates(recs []store.ParticipationRecord) []DuplicateGroup {
	type key struct{ politician, election string }
	var (
		order  []key
		byPair = make(map[key]*DuplicateGroup)
	)
	for _, r := range recs {
		k := key{r.PoliticianID, r.ElectionID}
		g, ok := byPair[k]
		if !ok {
			g = &DuplicateGroup{Name: r.PoliticianName, Region: r.PoliticianRegion, Kept: r.ID, Removed: []string{}}
			byPair[k] = g
			order = append(order, k)
		} else {
			g.Removed = append(g.Removed, r.ID)
		}
		g.Count++
	}

	out := []DuplicateGroup{}
	for _, k := range order {
		if g := byPair[k]; g.Count > 1 {
			out = append(out, *g)
		}
	}
	return out
}
