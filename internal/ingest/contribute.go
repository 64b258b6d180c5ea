package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

// ContributeRequest turns a verified analysis into a published policy.
type ContributeRequest struct {
	AnalysisID   string
	UserID       string
	IPAddress    string
	PoliticianID string
	ElectionID   string
	Policy       ContributedPolicy
}

// ContributedPolicy is the policy a user submits with a contribution.
type ContributedPolicy struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Category     string             `json:"category"`
	Status       model.PolicyStatus `json:"status,omitempty"`
	ProposedDate string             `json:"proposed_date,omitempty"`
	SourceURL    string             `json:"source_url,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
}

// ContributeResult is the Contribute response.
type ContributeResult struct {
	PolicyID string `json:"policy_id"`
	Message  string `json:"message"`
}

// Contribute publishes a policy backed by a high-confidence verify analysis.
// Each analysis can back at most one policy.
func (e *Engine) Contribute(ctx context.Context, req ContributeRequest) (*ContributeResult, error) {
	switch {
	case req.AnalysisID == "":
		return nil, model.Invalid("original_analysis_id", "缺少原始分析 ID")
	case req.PoliticianID == "":
		return nil, model.Invalid("politician_id", "請選擇關聯的政治人物")
	case strings.TrimSpace(req.Policy.Title) == "" ||
		strings.TrimSpace(req.Policy.Description) == "" ||
		strings.TrimSpace(req.Policy.Category) == "":
		return nil, model.Invalid("policy", "政見標題、描述和分類為必填欄位")
	}

	entry, err := e.store.GetUsageLog(ctx, req.AnalysisID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && entry.FunctionType != model.FunctionVerify) {
		return nil, notFound("找不到對應的分析記錄")
	}
	if err != nil {
		return nil, eris.Wrap(err, "ingest: get analysis")
	}

	var confidence float64
	if entry.Confidence != nil {
		confidence = *entry.Confidence
	}
	isPolicy, n := analysisFacts(entry.Result)
	if d := e.gate.Contribution(confidence, isPolicy, n); !d.Admit {
		return nil, model.Invalid("", "AI 信心度 (%s) 未達貢獻門檻 (%s)", formatScore(confidence), formatScore(e.gate.ContributeMin))
	}
	if entry.IsContributed {
		return nil, model.Invalid("", "此分析結果已被貢獻過")
	}

	pol, err := e.store.GetPolitician(ctx, req.PoliticianID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("找不到對應的政治人物")
	}
	if err != nil {
		return nil, eris.Wrap(err, "ingest: get politician")
	}

	proposed := e.today()
	if d := strings.TrimSpace(req.Policy.ProposedDate); d != "" {
		parsed, err := parseDate(d)
		if err != nil {
			return nil, model.Invalid("proposed_date", "expected YYYY-MM-DD, got %q", d)
		}
		proposed = parsed
	}

	won, err := e.store.ClaimContribution(ctx, entry.ID)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: claim analysis")
	}
	if !won {
		return nil, model.Invalid("", "此分析結果已被貢獻過")
	}

	p := &model.Policy{
		PoliticianID: pol.ID,
		Title:        strings.TrimSpace(req.Policy.Title),
		Description:  strings.TrimSpace(req.Policy.Description),
		Category:     strings.TrimSpace(req.Policy.Category),
		Status:       req.Policy.Status,
		ProposedDate: proposed,
		Tags:         req.Policy.Tags,
		SourceURL:    strings.TrimSpace(req.Policy.SourceURL),
		AIExtracted:  true,
		AIConfidence: &confidence,
	}
	if req.ElectionID != "" {
		p.ElectionID = &req.ElectionID
	}
	if err := e.createPolicy(ctx, p); err != nil {
		if rerr := e.store.ReleaseContribution(ctx, entry.ID); rerr != nil {
			zap.L().Error("ingest: release contribution claim", zap.String("log_id", entry.ID), zap.Error(rerr))
		}
		return nil, err
	}

	// The policy exists and the claim stays held, so the analysis cannot
	// back a second policy. Everything below is best effort.
	if err := e.store.LinkContribution(ctx, entry.ID, p.ID); err != nil {
		zap.L().Error("ingest: link contribution",
			zap.String("log_id", entry.ID), zap.String("policy_id", p.ID), zap.Error(err))
	}
	if err := e.store.AddTrackingLog(ctx, &model.TrackingLog{
		PolicyID:    p.ID,
		Date:        proposed,
		Event:       "公民貢獻",
		Description: "由公民透過 AI 輔助查核貢獻此政見資料",
		SourceURL:   p.SourceURL,
		AIExtracted: true,
	}); err != nil {
		zap.L().Warn("ingest: contribution tracking log", zap.String("policy_id", p.ID), zap.Error(err))
	}
	policyID := p.ID
	if err := e.store.CreateUsageLog(ctx, &model.UsageLog{
		UserID:              req.UserID,
		IPAddress:           req.IPAddress,
		FunctionType:        model.FunctionContribute,
		Success:             true,
		IsContributed:       true,
		ContributedPolicyID: &policyID,
		Confidence:          &confidence,
	}); err != nil {
		zap.L().Warn("ingest: contribution usage log", zap.String("policy_id", p.ID), zap.Error(err))
	}

	return &ContributeResult{
		PolicyID: p.ID,
		Message:  fmt.Sprintf("成功貢獻政見「%s」至 %s 的政見列表", p.Title, pol.Name),
	}, nil
}

// analysisFacts reads the gate inputs back out of a stored verify result.
func analysisFacts(raw json.RawMessage) (isPolicy bool, policies int) {
	var a struct {
		IsPolicyContent bool              `json:"is_policy_content"`
		Policies        []json.RawMessage `json:"policies"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &a) != nil {
		return false, 0
	}
	return a.IsPolicyContent, len(a.Policies)
}

var statusLabels = map[string]model.PolicyStatus{
	"已實現":  model.PolicyAchieved,
	"進行中":  model.PolicyInProgress,
	"停滯":   model.PolicyStalled,
	"失敗":   model.PolicyFailed,
	"提案中":  model.PolicyProposed,
	"競選承諾": model.PolicyCampaignPledge,
}

// NormalizeStatus maps a Chinese or English status label onto a policy
// status. It returns "" for unknown labels.
func NormalizeStatus(s string) model.PolicyStatus {
	s = strings.TrimSpace(s)
	if st, ok := statusLabels[s]; ok {
		return st
	}
	if st := model.PolicyStatus(s); st.Valid() {
		return st
	}
	return ""
}

// ProgressUpdate is one progress finding for a policy.
type ProgressUpdate struct {
	PolicyID         string   `json:"policy_id"`
	PolicyTitle      string   `json:"policy_title,omitempty"`
	NewStatus        string   `json:"new_status,omitempty"`
	NewProgress      *int     `json:"new_progress,omitempty"`
	EventDescription string   `json:"event_description"`
	SourceURL        string   `json:"source_url,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
}

// ProgressReport is the UpdateProgress response.
type ProgressReport struct {
	Updates []ProgressUpdate `json:"updates"`
	Summary string           `json:"summary"`
}

// UpdateProgress applies progress findings to policies. Findings below the
// candidate threshold, or with nothing to change, are ignored.
func (e *Engine) UpdateProgress(ctx context.Context, userID string, updates []ProgressUpdate) (*ProgressReport, error) {
	if len(updates) == 0 {
		return nil, model.Invalid("updates", "is required")
	}
	for _, u := range updates {
		if u.PolicyID == "" {
			return nil, model.Invalid("policy_id", "is required")
		}
		if u.NewProgress != nil && !model.ValidProgress(*u.NewProgress) {
			return nil, model.Invalid("new_progress", "must be between 0 and 100")
		}
		if u.NewStatus != "" && NormalizeStatus(u.NewStatus) == "" {
			return nil, model.Invalid("new_status", "unknown status %q", u.NewStatus)
		}
	}

	applied := []ProgressUpdate{}
	for _, u := range updates {
		if u.Confidence != nil && *u.Confidence < e.gate.CandidateMin {
			continue
		}
		status := NormalizeStatus(u.NewStatus)
		if status == "" && u.NewProgress == nil && strings.TrimSpace(u.EventDescription) == "" {
			continue
		}
		if err := e.store.UpdatePolicyStatus(ctx, u.PolicyID, status, u.NewProgress); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, notFound("找不到政見: %s", u.PolicyID)
			}
			return nil, eris.Wrapf(err, "ingest: update progress %s", u.PolicyID)
		}

		event := "進度更新"
		if status != "" {
			event = "狀態更新: " + string(status)
		}
		if err := e.store.AddTrackingLog(ctx, &model.TrackingLog{
			PolicyID:    u.PolicyID,
			Date:        e.today(),
			Event:       event,
			Description: strings.TrimSpace(u.EventDescription),
			SourceURL:   strings.TrimSpace(u.SourceURL),
			AIExtracted: true,
		}); err != nil {
			return nil, eris.Wrap(err, "ingest: progress tracking log")
		}
		u.NewStatus = string(status)
		applied = append(applied, u)
	}

	if err := e.store.CreateUsageLog(ctx, &model.UsageLog{
		UserID:       userID,
		FunctionType: model.FunctionUpdate,
		InputText:    fmt.Sprintf("Update progress for %d policies", len(updates)),
		Success:      true,
	}); err != nil {
		zap.L().Warn("ingest: progress usage log", zap.Error(err))
	}
	if len(applied) > 0 {
		e.changed()
	}
	return &ProgressReport{
		Updates: applied,
		Summary: fmt.Sprintf("處理了 %d 筆政見，更新了 %d 筆進度", len(updates), len(applied)),
	}, nil
}
