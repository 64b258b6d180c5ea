// Package ledger persists AI tasks and enforces their forward-only status
// lifecycle.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

var (
	// ErrForbidden is returned when a viewer may not read a task.
	ErrForbidden = eris.New("ledger: forbidden")
	// ErrInvalidTransition is returned for backward moves and moves out of a
	// terminal state.
	ErrInvalidTransition = eris.New("ledger: invalid transition")
)

// Viewer is the identity reading a task.
type Viewer struct {
	UserID  string
	IsAdmin bool
}

// Ledger creates, reads and advances tasks.
type Ledger struct {
	store store.Store
	now   func() time.Time
}

// New creates a Ledger backed by st.
func New(st store.Store) *Ledger {
	return &Ledger{store: st, now: time.Now}
}

// Create persists a new task. Tasks start pending unless created scheduled.
func (l *Ledger) Create(ctx context.Context, t *model.Task) error {
	if !t.Type.Valid() {
		return model.Invalid("task_type", "unknown task type %q", t.Type)
	}
	switch t.Status {
	case "":
		t.Status = model.TaskPending
	case model.TaskPending, model.TaskScheduled:
	default:
		return model.Invalid("status", "new tasks must be pending or scheduled, got %q", t.Status)
	}

	if err := l.store.CreateTask(ctx, t); err != nil {
		return eris.Wrap(err, "ledger: create task")
	}
	metrics.TasksCreated.WithLabelValues(string(t.Type)).Inc()
	zap.L().Info("ledger: task created",
		zap.String("task_id", t.ID),
		zap.String("task_type", string(t.Type)),
		zap.String("status", string(t.Status)),
		zap.Int("priority", t.Priority),
		zap.Bool("requires_review", t.RequiresReview),
	)
	return nil
}

// Get returns a task the viewer created, or any task for admins.
func (l *Ledger) Get(ctx context.Context, id string, v Viewer) (*model.Task, error) {
	t, err := l.store.GetTask(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: get task %s", id)
	}
	if !v.IsAdmin && (v.UserID == "" || t.CreatedBy != v.UserID) {
		return nil, eris.Wrapf(ErrForbidden, "task %s", id)
	}
	return t, nil
}

// Transition moves a task to status to.
func (l *Ledger) Transition(ctx context.Context, id string, to model.TaskStatus) error {
	return l.update(ctx, id, model.TaskUpdate{Status: to})
}

// Complete marks a task completed with its result.
func (l *Ledger) Complete(ctx context.Context, id, summary string, data json.RawMessage) error {
	return l.Finish(ctx, id, model.TaskCompleted, summary, data, "")
}

// Fail marks a task failed.
func (l *Ledger) Fail(ctx context.Context, id, message string) error {
	return l.Finish(ctx, id, model.TaskFailed, "", nil, message)
}

// Finish records a status change reported by an automation agent. Terminal
// statuses also stamp completed_at.
func (l *Ledger) Finish(ctx context.Context, id string, status model.TaskStatus, summary string, data json.RawMessage, errMsg string) error {
	u := model.TaskUpdate{
		Status:        status,
		ResultSummary: summary,
		ResultData:    data,
		ErrorMessage:  errMsg,
	}
	if status.Terminal() {
		done := l.now().UTC()
		u.CompletedAt = &done
	}
	return l.update(ctx, id, u)
}

func (l *Ledger) update(ctx context.Context, id string, u model.TaskUpdate) error {
	if id == "" {
		return model.Invalid("", "Missing prompt_id")
	}
	if !u.Status.Valid() {
		return model.Invalid("status", "unknown status %q", u.Status)
	}
	if len(u.ResultData) > 0 && !json.Valid(u.ResultData) {
		return model.Invalid("result_data", "must be valid JSON")
	}

	ok, err := l.store.UpdateTask(ctx, id, model.PredecessorsOf(u.Status), u)
	if err != nil {
		return eris.Wrapf(err, "ledger: update task %s", id)
	}
	if ok {
		zap.L().Info("ledger: task transitioned", zap.String("task_id", id), zap.String("status", string(u.Status)))
		return nil
	}

	// Nothing matched: either the task is gone or the move is not allowed.
	t, err := l.store.GetTask(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "ledger: get task %s", id)
	}
	return eris.Wrapf(ErrInvalidTransition, "task %s: %s -> %s", id, t.Status, u.Status)
}

// StatusMessage describes a task's state to its submitter.
func StatusMessage(t *model.Task) string {
	switch t.Status {
	case model.TaskPending:
		return "任務等待處理中"
	case model.TaskScheduled:
		return "任務已排程"
	case model.TaskProcessing:
		return "任務處理中"
	case model.TaskCompleted:
		return "任務已完成"
	case model.TaskFailed:
		if t.ErrorMessage != "" {
			return t.ErrorMessage
		}
		return "任務失敗"
	}
	return string(t.Status)
}

// IsNotFound reports whether err means the task does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
