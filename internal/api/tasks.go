package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/classify"
	"github.com/sells-group/policy-tracker/internal/ledger"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/quota"
)

// minInputRunes is the shortest submission worth classifying.
const minInputRunes = 5

type classifyRequest struct {
	Input          string `json:"input"`
	URL            string `json:"url"`
	PoliticianID   string `json:"politician_id"`
	PoliticianName string `json:"politician_name"`
	PolicyID       string `json:"policy_id"`
}

type classifyResponse struct {
	PromptID       string         `json:"prompt_id"`
	TaskType       model.TaskType `json:"task_type"`
	Confidence     float64        `json:"confidence"`
	RequiresReview bool           `json:"requires_review"`
	Message        string         `json:"message"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var req classifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	input := strings.TrimSpace(req.Input)
	if model.RuneLen(input) < minInputRunes {
		fail(w, http.StatusBadRequest, "Invalid input", "請輸入至少 5 個字元")
		return
	}

	if _, err := s.limiter.CheckTask(r.Context(), id.UserID, id.IsAdmin); err != nil {
		metrics.RateLimited.WithLabelValues("classify").Inc()
		writeError(w, r, err)
		return
	}

	in := classify.Input{
		Text:           input,
		URL:            strings.TrimSpace(req.URL),
		PoliticianID:   strings.TrimSpace(req.PoliticianID),
		PoliticianName: strings.TrimSpace(req.PoliticianName),
		PolicyID:       strings.TrimSpace(req.PolicyID),
	}
	res := s.classifier.Classify(in)
	if id.IsAdmin {
		res.ApplyAdmin()
	}
	params := classify.BuildParams(in, res)

	t := &model.Task{
		Type:           res.TaskType,
		Priority:       classify.Priority(id.IsAdmin, res.RequiresReview),
		Parameters:     params,
		Region:         params.Region,
		Prompt:         classify.BuildPrompt(res.TaskType, params),
		ElectionID:     s.electionIDFor(r.Context(), params.ElectionYear),
		Confidence:     res.Confidence,
		RequiresReview: res.RequiresReview,
		CreatedBy:      id.UserID,
	}
	if err := s.ledger.Create(r.Context(), t); err != nil {
		writeError(w, r, err)
		return
	}
	s.logUsage(r.Context(), &model.UsageLog{
		UserID:       id.UserID,
		IPAddress:    quota.RemoteIP(r),
		FunctionType: model.FunctionSearch,
		InputText:    model.Truncate(input, 500),
		InputURL:     in.URL,
		Success:      true,
	})

	ok(w, classifyResponse{
		PromptID:       t.ID,
		TaskType:       t.Type,
		Confidence:     t.Confidence,
		RequiresReview: t.RequiresReview,
		Message:        classify.StatusMessage(t.Type, t.RequiresReview),
	})
}

// electionIDFor returns the first election dated in year, or nil. A
// missing election never blocks task creation.
func (s *Server) electionIDFor(ctx context.Context, year int) *string {
	if year <= 0 {
		return nil
	}
	els, err := s.store.ElectionsInYear(ctx, year)
	if err != nil {
		zap.L().Warn("api: election lookup", zap.Int("year", year), zap.Error(err))
		return nil
	}
	if len(els) == 0 {
		return nil
	}
	id := els[0].ID
	return &id
}

// logUsage records l and reports whether it was stored. Failures are
// logged and otherwise ignored.
func (s *Server) logUsage(ctx context.Context, l *model.UsageLog) bool {
	if err := s.store.CreateUsageLog(ctx, l); err != nil {
		zap.L().Warn("api: usage log",
			zap.String("function", string(l.FunctionType)),
			zap.Error(err),
		)
		return false
	}
	return true
}

type promptStatusResponse struct {
	Prompt        *model.Task `json:"prompt"`
	StatusMessage string      `json:"status_message"`
}

func (s *Server) handlePromptStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	promptID := strings.TrimSpace(r.URL.Query().Get("prompt_id"))
	if promptID == "" && r.Method == http.MethodPost {
		var body struct {
			PromptID string `json:"prompt_id"`
		}
		if err := decode(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		promptID = strings.TrimSpace(body.PromptID)
	}
	if promptID == "" {
		fail(w, http.StatusBadRequest, "Missing prompt_id", "請提供 prompt_id")
		return
	}

	t, err := s.ledger.Get(r.Context(), promptID, ledger.Viewer{UserID: id.UserID, IsAdmin: id.IsAdmin})
	if ledger.IsNotFound(err) {
		fail(w, http.StatusNotFound, "Not found", "找不到指定的任務")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, promptStatusResponse{Prompt: t, StatusMessage: ledger.StatusMessage(t)})
}

type adminSearchRequest struct {
	ElectionYear int    `json:"election_year"`
	Region       string `json:"region"`
	Position     string `json:"position"`
	Name         string `json:"name"`
}

type adminSearchResponse struct {
	PromptID string           `json:"prompt_id"`
	Status   model.TaskStatus `json:"status"`
	Message  string           `json:"message"`
}

// searchPrompt renders the instruction for an admin-requested search.
func searchPrompt(req adminSearchRequest) string {
	var b strings.Builder
	b.WriteString("搜尋 ")
	b.WriteString(strconv.Itoa(req.ElectionYear))
	b.WriteString(" 年台灣")
	b.WriteString(req.Region)
	b.WriteString(req.Position)
	if req.Name != "" {
		b.WriteString("，特定人物：")
		b.WriteString(req.Name)
	} else {
		b.WriteString("選舉候選人名單")
	}
	return b.String()
}

func (s *Server) handleAdminSearch(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var req adminSearchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ElectionYear <= 0 {
		fail(w, http.StatusBadRequest, "Missing election_year", "請指定選舉年份")
		return
	}
	req.Region = strings.TrimSpace(req.Region)
	req.Position = strings.TrimSpace(req.Position)
	req.Name = strings.TrimSpace(req.Name)

	params := model.TaskParams{
		ElectionYear:   req.ElectionYear,
		Region:         req.Region,
		PoliticianName: req.Name,
	}
	if req.Region != "" {
		params.Regions = []string{req.Region}
	}
	if req.Position != "" {
		params.Positions = []string{req.Position}
	}
	prompt := searchPrompt(req)
	t := &model.Task{
		Type:       model.TaskCandidateSearch,
		Priority:   classify.PriorityAdmin,
		Parameters: params,
		Region:     req.Region,
		Prompt:     prompt,
		ElectionID: s.electionIDFor(r.Context(), req.ElectionYear),
		Confidence: 1,
		CreatedBy:  id.UserID,
	}
	if err := s.ledger.Create(r.Context(), t); err != nil {
		writeError(w, r, err)
		return
	}
	s.logUsage(r.Context(), &model.UsageLog{
		UserID:       id.UserID,
		FunctionType: model.FunctionSearch,
		InputText:    prompt,
		Success:      true,
	})
	ok(w, adminSearchResponse{PromptID: t.ID, Status: t.Status, Message: "搜尋任務已建立，請等待處理"})
}
