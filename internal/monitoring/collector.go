// Package monitoring watches the task ledger and AI spend and raises
// webhook alerts when either drifts out of bounds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

// Snapshot holds a point-in-time view of system health.
type Snapshot struct {
	// Tasks created within the lookback window.
	TasksTotal     int     `json:"tasks_total"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksFailed    int     `json:"tasks_failed"`
	TasksOpen      int     `json:"tasks_open"`
	TaskFailRate   float64 `json:"task_fail_rate"`

	// Open tasks of any age that have not moved for StaleAfterHours.
	StaleTasks int `json:"stale_tasks"`

	// AI usage within the lookback window.
	AICalls    int     `json:"ai_calls"`
	AIFailures int     `json:"ai_failures"`
	AITokens   int     `json:"ai_tokens"`
	AICostUSD  float64 `json:"ai_cost_usd"`

	LookbackHours   int       `json:"lookback_hours"`
	StaleAfterHours int       `json:"stale_after_hours"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Source is the slice of the store the collector reads.
type Source interface {
	TaskStatusCounts(ctx context.Context, since time.Time) (map[model.TaskStatus]int, error)
	CountStaleTasks(ctx context.Context, updatedBefore time.Time) (int, error)
	UsageTotalsSince(ctx context.Context, since time.Time) (store.UsageTotals, error)
}

// Collector gathers snapshots from the store.
type Collector struct {
	src Source
	now func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, now: time.Now}
}

// Collect gathers a snapshot over the lookback window. Stale detection is
// skipped when staleHours is zero.
func (c *Collector) Collect(ctx context.Context, lookbackHours, staleHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours:   lookbackHours,
		StaleAfterHours: staleHours,
		CollectedAt:     now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	counts, err := c.src.TaskStatusCounts(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: task counts")
	}
	for status, n := range counts {
		snap.TasksTotal += n
		switch {
		case status == model.TaskCompleted:
			snap.TasksCompleted += n
		case status == model.TaskFailed:
			snap.TasksFailed += n
		case !status.Terminal():
			snap.TasksOpen += n
		}
	}
	if finished := snap.TasksCompleted + snap.TasksFailed; finished > 0 {
		snap.TaskFailRate = float64(snap.TasksFailed) / float64(finished)
	}

	if staleHours > 0 {
		snap.StaleTasks, err = c.src.CountStaleTasks(ctx, now.Add(-time.Duration(staleHours)*time.Hour))
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: stale tasks")
		}
	}

	usage, err := c.src.UsageTotalsSince(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: usage totals")
	}
	snap.AICalls = usage.Calls
	snap.AIFailures = usage.Failures
	snap.AITokens = usage.Tokens
	snap.AICostUSD = usage.EstimatedUSD

	return snap, nil
}
