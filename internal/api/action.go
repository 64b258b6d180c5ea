package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/ingest"
	"github.com/sells-group/policy-tracker/internal/model"
)

// actionRequest is the flat body accepted by the automation endpoint. Each
// action reads only the fields it needs.
type actionRequest struct {
	Action   string `json:"action"`
	APIKey   string `json:"api_key"`
	PromptID string `json:"prompt_id"`

	ElectionYear   int    `json:"election_year"`
	Region         string `json:"region"`
	Position       string `json:"position"`
	Name           string `json:"name"`
	PoliticianID   string `json:"politician_id"`
	PoliticianName string `json:"politician_name"`
	Category       string `json:"category"`
	Keywords       any    `json:"keywords"`

	Status        model.TaskStatus `json:"status"`
	ResultSummary string           `json:"result_summary"`
	ResultData    json.RawMessage  `json:"result_data"`
	ErrorMessage  string           `json:"error_message"`

	Candidate ingest.CandidateInput `json:"candidate"`
	Updates   map[string]any        `json:"updates"`
	Policy    ingest.PolicyInput    `json:"policy"`

	PolicyID     string             `json:"policy_id"`
	PolicyTitle  string             `json:"policy_title"`
	NewStatus    model.PolicyStatus `json:"new_status"`
	NewProgress  *int               `json:"new_progress"`
	ProgressNote string             `json:"progress_note"`
	SourceURL    string             `json:"source_url"`
	Log          trackingLogBody    `json:"log"`

	Sources []ingest.SourceInput `json:"sources"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
	DryRun  *bool                `json:"dry_run"`
}

type trackingLogBody struct {
	Status     string `json:"status"`
	Content    string `json:"content"`
	SourceURL  string `json:"source_url"`
	SourceName string `json:"source_name"`
	Date       string `json:"date"`
}

func (a *actionRequest) politician() ingest.PoliticianRef {
	return ingest.PoliticianRef{
		ID:   strings.TrimSpace(a.PoliticianID),
		Name: strings.TrimSpace(a.PoliticianName),
	}
}

func (a *actionRequest) policyRef() ingest.PolicyRef {
	return ingest.PolicyRef{
		PolicyID:   strings.TrimSpace(a.PolicyID),
		Politician: a.politician(),
		Title:      strings.TrimSpace(a.PolicyTitle),
	}
}

type actionFunc func(s *Server, ctx context.Context, req *actionRequest) (any, error)

var actions = map[string]actionFunc{
	"query_candidates":       (*Server).queryCandidates,
	"query_policies":         (*Server).queryPolicies,
	"import_candidate":       (*Server).importCandidate,
	"update_politician":      (*Server).updatePolitician,
	"add_policy":             (*Server).addPolicy,
	"update_policy":          (*Server).updatePolicy,
	"add_tracking_log":       (*Server).addTrackingLog,
	"update_prompt":          (*Server).updatePrompt,
	"add_policy_source":      (*Server).addPolicySource,
	"query_policy_sources":   (*Server).queryPolicySources,
	"deduplicate_candidates": (*Server).deduplicateCandidates,
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !s.agentKeyOK(r, req.APIKey) {
		fail(w, http.StatusUnauthorized, "Invalid API key", "")
		return
	}

	fn, found := actions[req.Action]
	if !found {
		fail(w, http.StatusBadRequest, fmt.Sprintf("Unknown action: %s", req.Action), "")
		return
	}
	out, err := fn(s, r.Context(), &req)
	if err != nil {
		zap.L().Debug("api: action failed", zap.String("action", req.Action), zap.Error(err))
		writeError(w, r, err)
		return
	}
	ok(w, out)
}

func (s *Server) queryCandidates(ctx context.Context, req *actionRequest) (any, error) {
	return s.engine.QueryCandidates(ctx, ingest.CandidateQuery{
		ElectionYear: req.ElectionYear,
		Region:       req.Region,
		Position:     req.Position,
		Name:         req.Name,
	})
}

func (s *Server) queryPolicies(ctx context.Context, req *actionRequest) (any, error) {
	return s.engine.QueryPolicies(ctx, ingest.PolicyQuery{
		PoliticianID:   strings.TrimSpace(req.PoliticianID),
		PoliticianName: strings.TrimSpace(req.PoliticianName),
		Category:       req.Category,
		Keywords:       ingest.ToList(req.Keywords),
	})
}

func (s *Server) importCandidate(ctx context.Context, req *actionRequest) (any, error) {
	return s.engine.ImportCandidate(ctx, ingest.ImportRequest{
		TaskID:       req.PromptID,
		ElectionYear: req.ElectionYear,
		Candidate:    req.Candidate,
	})
}

func (s *Server) updatePolitician(ctx context.Context, req *actionRequest) (any, error) {
	return s.engine.UpdatePolitician(ctx, req.politician(), req.Updates)
}

func (s *Server) addPolicy(ctx context.Context, req *actionRequest) (any, error) {
	return s.engine.AddPolicy(ctx, ingest.AddPolicyRequest{
		Politician:   req.politician(),
		ElectionYear: req.ElectionYear,
		Policy:       req.Policy,
	})
}

func (s *Server) updatePolicy(ctx context.Context, req *actionRequest) (any, error) {
	return s.engine.UpdatePolicy(ctx, ingest.UpdatePolicyRequest{
		TaskID:       req.PromptID,
		Policy:       req.policyRef(),
		NewStatus:    req.NewStatus,
		Progress:     req.NewProgress,
		ProgressNote: req.ProgressNote,
		SourceURL:    req.SourceURL,
	})
}

func (s *Server) addTrackingLog(ctx context.Context, req *actionRequest) (any, error) {
	return s.engine.AddTrackingLog(ctx, ingest.TrackingLogRequest{
		TaskID:     req.PromptID,
		Policy:     req.policyRef(),
		Status:     req.Log.Status,
		Content:    req.Log.Content,
		SourceURL:  req.Log.SourceURL,
		SourceName: req.Log.SourceName,
		Date:       req.Log.Date,
	})
}

func (s *Server) updatePrompt(ctx context.Context, req *actionRequest) (any, error) {
	id := strings.TrimSpace(req.PromptID)
	if err := s.ledger.Finish(ctx, id, req.Status, req.ResultSummary, req.ResultData, req.ErrorMessage); err != nil {
		return nil, err
	}
	return map[string]string{"message": fmt.Sprintf("Prompt %s updated to %s", id, req.Status)}, nil
}

func (s *Server) addPolicySource(ctx context.Context, req *actionRequest) (any, error) {
	return s.engine.AddPolicySources(ctx, req.policyRef(), req.Sources)
}

func (s *Server) queryPolicySources(ctx context.Context, req *actionRequest) (any, error) {
	return s.engine.ListPolicySources(ctx, req.PolicyID, req.Limit, req.Offset)
}

func (s *Server) deduplicateCandidates(ctx context.Context, req *actionRequest) (any, error) {
	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}
	return s.engine.Deduplicate(ctx, req.ElectionYear, dryRun)
}
