package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/ingest"
	"github.com/sells-group/policy-tracker/internal/ledger"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/quota"
	"github.com/sells-group/policy-tracker/internal/store"
)

// maxBodyBytes caps request bodies; batch imports are the largest.
const maxBodyBytes = 8 << 20

// errorBody is the failure envelope.
type errorBody struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error"`
	Message   string           `json:"message,omitempty"`
	RateLimit *quota.Remaining `json:"rate_limit,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// ok writes {"success":true, ...fields of v}. v must encode as a JSON
// object or be nil.
func ok(w http.ResponseWriter, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Internal server error", "")
		zap.L().Error("api: marshal response", zap.Error(err))
		return
	}
	raw = bytes.TrimSpace(raw)

	var b bytes.Buffer
	b.WriteString(`{"success":true`)
	if len(raw) > 2 && raw[0] == '{' {
		b.WriteByte(',')
		b.Write(raw[1:])
	} else {
		b.WriteByte('}')
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(b.Bytes()) //nolint:errcheck
}

func fail(w http.ResponseWriter, status int, errMsg, message string) {
	writeJSON(w, status, errorBody{Error: errMsg, Message: message})
}

// writeError maps a domain error onto a status code and envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *model.ValidationError
		le *quota.LimitError
		nf *ingest.NotFoundError
	)
	switch {
	case errors.As(err, &ve) && ve.Field != "":
		fail(w, http.StatusBadRequest, ve.Error(), ve.Message)
	case errors.As(err, &ve):
		fail(w, http.StatusBadRequest, ve.Message, "")
	case errors.As(err, &le):
		rem := le.Remaining
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:     "Rate limit exceeded",
			Message:   limitMessage(le),
			RateLimit: &rem,
		})
	case errors.As(err, &nf):
		fail(w, http.StatusNotFound, nf.Message, "")
	case errors.Is(err, store.ErrNotFound):
		fail(w, http.StatusNotFound, "Not found", "找不到指定的資料")
	case errors.Is(err, ledger.ErrForbidden):
		fail(w, http.StatusForbidden, "Forbidden", "您沒有權限查看此任務")
	case errors.Is(err, ledger.ErrInvalidTransition):
		fail(w, http.StatusConflict, "Invalid status transition", "")
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		fail(w, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}

func limitMessage(le *quota.LimitError) string {
	switch le.Scope {
	case "task":
		return fmt.Sprintf("已達今日上限（%d 個任務），請明天再試", le.Limit)
	case "ip verify":
		return fmt.Sprintf("此 IP 今日已達查詢上限 (%d 次)", le.Limit)
	default:
		return fmt.Sprintf("您今日已達查詢上限 (%d 次)", le.Limit)
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return model.Invalid("", "Invalid request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return model.Invalid("", "Invalid request body")
	}
	return nil
}
