package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/ingest"
	"github.com/sells-group/policy-tracker/internal/scheduler"
)

func (s *Server) handleBatchImport(w http.ResponseWriter, r *http.Request) {
	var req ingest.BatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DataSource == "" {
		req.DataSource = "admin"
	}
	report, err := s.engine.BatchImport(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, report)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var body struct {
		Updates []ingest.ProgressUpdate `json:"updates"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.engine.UpdateProgress(r.Context(), id.UserID, body.Updates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, report)
}

type scheduleRequest struct {
	scheduler.Request
	APIKey string `json:"api_key"`
}

// handleSchedule accepts the automation key or an admin user token.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !s.agentKeyOK(r, req.APIKey) && !s.isAdminRequest(r) {
		fail(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if req.Mode == "" {
		req.Mode = scheduler.ModeWeekly
	}

	res, err := s.scheduler.Run(r.Context(), req.Request, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, res)
}

func (s *Server) isAdminRequest(r *http.Request) bool {
	userID, err := s.parseToken(r.Header.Get("Authorization"))
	if err != nil {
		return false
	}
	admin, err := s.store.IsAdmin(r.Context(), userID)
	if err != nil {
		zap.L().Warn("api: resolve admin", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return admin
}
