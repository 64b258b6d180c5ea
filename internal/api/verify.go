package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/extract"
	"github.com/sells-group/policy-tracker/internal/ingest"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/quota"
)

// maxLoggedInput bounds the message text stored with a verify log.
const maxLoggedInput = 1000

type verifyRequest struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

type verifyResponse struct {
	Analysis      extract.Analysis `json:"analysis"`
	CanContribute bool             `json:"can_contribute"`
	PoliticianID  string           `json:"politician_id,omitempty"`
	LogID         string           `json:"log_id,omitempty"`
	Usage         extract.Usage    `json:"usage"`
	RateLimit     quota.Remaining  `json:"rate_limit"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	ip := quota.RemoteIP(r)

	var req verifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		fail(w, http.StatusBadRequest, "Message required", "請輸入要查核的內容")
		return
	}

	rem, err := s.limiter.CheckVerify(r.Context(), id.UserID, ip)
	if err != nil {
		metrics.RateLimited.WithLabelValues("verify").Inc()
		writeError(w, r, err)
		return
	}

	url := strings.TrimSpace(req.URL)
	var content string
	if url != "" && s.pages != nil {
		content, err = s.pages.Text(r.Context(), url)
		if err != nil {
			zap.L().Warn("api: fetch verify url", zap.String("url", url), zap.Error(err))
			content = ""
		}
	}

	res, err := s.analyzer.Analyze(r.Context(), extract.AnalyzeRequest{
		Message:    message,
		URL:        url,
		URLContent: content,
	})
	if err != nil {
		s.logUsage(r.Context(), &model.UsageLog{
			UserID:       id.UserID,
			IPAddress:    ip,
			FunctionType: model.FunctionVerify,
			InputText:    model.Truncate(message, maxLoggedInput),
			InputURL:     url,
			Success:      false,
		})
		writeError(w, r, err)
		return
	}

	a := res.Analysis
	var politicianID *string
	if name := strings.TrimSpace(a.PoliticianName); name != "" {
		matches, err := s.store.PoliticiansByName(r.Context(), name, true)
		if err != nil {
			zap.L().Warn("api: match politician", zap.String("name", name), zap.Error(err))
		} else if len(matches) > 0 {
			politicianID = &matches[0].ID
		}
	}

	raw, err := json.Marshal(a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	confidence := a.Confidence
	entry := &model.UsageLog{
		UserID:        id.UserID,
		IPAddress:     ip,
		FunctionType:  model.FunctionVerify,
		InputText:     model.Truncate(message, maxLoggedInput),
		InputURL:      url,
		InputTokens:   res.Usage.InputTokens,
		OutputTokens:  res.Usage.OutputTokens,
		EstimatedCost: res.Usage.EstimatedCost,
		Success:       true,
		Confidence:    &confidence,
		Result:        raw,
		PoliticianID:  politicianID,
	}
	resp := verifyResponse{
		Analysis:      a,
		CanContribute: s.gate.Contributable(a.Confidence, a.IsPolicyContent, len(a.Policies)),
		Usage:         res.Usage,
		RateLimit:     rem.AfterCall(),
	}
	if s.logUsage(r.Context(), entry) {
		resp.LogID = entry.ID
	}
	if politicianID != nil {
		resp.PoliticianID = *politicianID
	}
	ok(w, resp)
}

type contributeRequest struct {
	OriginalAnalysisID string                   `json:"original_analysis_id"`
	PoliticianID       string                   `json:"politician_id"`
	ElectionID         string                   `json:"election_id"`
	Policy             ingest.ContributedPolicy `json:"policy"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var req contributeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.engine.Contribute(r.Context(), ingest.ContributeRequest{
		AnalysisID:   strings.TrimSpace(req.OriginalAnalysisID),
		UserID:       id.UserID,
		IPAddress:    quota.RemoteIP(r),
		PoliticianID: strings.TrimSpace(req.PoliticianID),
		ElectionID:   strings.TrimSpace(req.ElectionID),
		Policy:       req.Policy,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, res)
}
