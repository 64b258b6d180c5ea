package model

import (
	"encoding/json"
	"time"
)

// TaskType is the category a classified submission is routed to.
type TaskType string

const (
	TaskCandidateSearch  TaskType = "candidate_search"
	TaskPoliticianUpdate TaskType = "politician_update"
	TaskPolicyImport     TaskType = "policy_import"
	TaskPolicyVerify     TaskType = "policy_verify"
	TaskProgressTracking TaskType = "progress_tracking"
	TaskUserContribution TaskType = "user_contribution"
	TaskPolicySearch     TaskType = "policy_search"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskCandidateSearch, TaskPoliticianUpdate, TaskPolicyImport, TaskPolicyVerify,
		TaskProgressTracking, TaskUserContribution, TaskPolicySearch:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskScheduled  TaskStatus = "scheduled"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// rank orders non-terminal states; terminal states share the top rank.
var taskStatusRank = map[TaskStatus]int{
	TaskPending:    0,
	TaskScheduled:  1,
	TaskProcessing: 2,
	TaskCompleted:  3,
	TaskFailed:     3,
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	_, ok := taskStatusRank[s]
	return ok
}

// Terminal reports whether no further transitions are allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether a task may move from s to next. Moves are
// forward only; intermediate states may be skipped.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	return taskStatusRank[next] > taskStatusRank[s]
}

// PredecessorsOf returns every status from which next is reachable.
func PredecessorsOf(next TaskStatus) []TaskStatus {
	var out []TaskStatus
	for _, s := range []TaskStatus{TaskPending, TaskScheduled, TaskProcessing} {
		if s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}

// TaskParams is the structured parameter blob stored with a task.
type TaskParams struct {
	ElectionYear    int      `json:"election_year,omitempty"`
	Regions         []string `json:"regions,omitempty"`
	Region          string   `json:"region,omitempty"`
	Positions       []string `json:"positions,omitempty"`
	URL             string   `json:"url,omitempty"`
	OriginalInput   string   `json:"original_input,omitempty"`
	PoliticianID    string   `json:"politician_id,omitempty"`
	PoliticianName  string   `json:"politician_name,omitempty"`
	PolicyID        string   `json:"policy_id,omitempty"`
	SearchAfterDate string   `json:"search_after_date,omitempty"`
	SearchDateLimit int      `json:"search_date_limit,omitempty"`
}

// Task is a persisted unit of AI-assisted work.
type Task struct {
	ID             string          `json:"id"`
	Type           TaskType        `json:"task_type"`
	Status         TaskStatus      `json:"status"`
	Priority       int             `json:"priority"`
	Parameters     TaskParams      `json:"parameters"`
	Region         string          `json:"region,omitempty"`
	Prompt         string          `json:"prompt_template,omitempty"`
	ElectionID     *string         `json:"election_id,omitempty"`
	Confidence     float64         `json:"confidence"`
	RequiresReview bool            `json:"requires_review"`
	ResultSummary  string          `json:"result_summary,omitempty"`
	ResultData     json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// TaskUpdate carries the fields written when a task changes state.
type TaskUpdate struct {
	Status        TaskStatus
	ResultSummary string
	ResultData    json.RawMessage
	ErrorMessage  string
	CompletedAt   *time.Time
}
