// Package scheduler creates recurring candidate and policy search tasks,
// rotating through region groups over the working week.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
)

// Mode selects which regions a run covers.
type Mode string

const (
	ModeWeekly Mode = "weekly"
	ModeAll    Mode = "all"
	ModeManual Mode = "manual"
)

// Valid reports whether m is a known mode. The empty mode means weekly.
func (m Mode) Valid() bool {
	switch m {
	case "", ModeWeekly, ModeAll, ModeManual:
		return true
	}
	return false
}

// Group is a named set of regions scheduled together.
type Group struct {
	Name    string
	Regions []string
}

// Groups in rotation order.
var Groups = []Group{
	{"六都", []string{"台北市", "新北市", "桃園市", "台中市", "台南市", "高雄市"}},
	{"北部", []string{"基隆市", "新竹市", "新竹縣", "苗栗縣", "宜蘭縣"}},
	{"中部", []string{"彰化縣", "南投縣", "雲林縣", "嘉義市", "嘉義縣"}},
	{"南部東部", []string{"屏東縣", "花蓮縣", "台東縣", "澎湖縣"}},
	{"離島", []string{"金門縣", "連江縣"}},
}

// ElectionYear is the election scheduled searches target.
const ElectionYear = 2026

// SearchWindowDays bounds how far back scheduled searches look.
const SearchWindowDays = 30

// SkipAlreadyScheduled is the reason recorded for regions already covered
// today.
const SkipAlreadyScheduled = "今日已排程"

// Weekly returns the regions scheduled on day; weekends have none.
func Weekly(day time.Weekday) []string {
	if day < time.Monday || day > time.Friday {
		return nil
	}
	return Groups[int(day-time.Monday)].Regions
}

// AllRegions lists every region in rotation order.
func AllRegions() []string {
	var out []string
	for _, g := range Groups {
		out = append(out, g.Regions...)
	}
	return out
}

// Priority ranks the special municipalities first, then the north.
func Priority(region string) int {
	switch {
	case slices.Contains(Groups[0].Regions, region):
		return 1
	case slices.Contains(Groups[1].Regions, region):
		return 2
	}
	return 3
}

// PromptTemplate renders the agent instructions for a scheduled task.
func PromptTemplate(taskType model.TaskType, region, searchAfter string) string {
	switch taskType {
	case model.TaskCandidateSearch:
		return strings.TrimSpace(fmt.Sprintf(`
搜尋 %[1]d 年 %[2]s 的縣市長與議員候選人。

## 搜尋日期限制
**重要**：只搜尋 %[3]s 之後的新聞資料。
- 使用搜尋語法：%[1]d年%[2]s候選人 after:%[3]s
- 排除 2022 年或更早的選舉資訊
- 優先使用最近一週的新聞

## 執行步驟
1. 先查詢現有候選人（query_candidates）
2. 網路搜尋新候選人
3. 評估每位候選人的信心度
4. 只匯入信心度 >= 0.7 且不重複的候選人
5. 更新任務狀態

若無最新消息，回報「%[2]s無最新候選人消息」並完成任務。
`, ElectionYear, region, searchAfter))
	case model.TaskPolicySearch:
		return strings.TrimSpace(fmt.Sprintf(`
搜尋 %[1]s 現任首長的最新政見與施政報告。

## 搜尋日期限制
只搜尋 %[2]s 之後的新聞。

## 執行步驟
1. 先查詢現有政見（query_policies）
2. 網路搜尋新政見
3. 只新增不重複的政見
4. 更新任務狀態
`, region, searchAfter))
	}
	return fmt.Sprintf("執行 %s 任務，地區：%s", taskType, region)
}

// TaskCreator persists tasks.
type TaskCreator interface {
	Create(ctx context.Context, t *model.Task) error
}

// History answers whether a region was already scheduled.
type History interface {
	HasTaskForRegionSince(ctx context.Context, taskType model.TaskType, region string, since time.Time) (bool, error)
}

// Request describes one scheduler run.
type Request struct {
	Mode     Mode           `json:"mode"`
	Regions  []string       `json:"regions,omitempty"`
	TaskType model.TaskType `json:"task_type,omitempty"`
}

// Created summarises a task written by a run.
type Created struct {
	ID       string         `json:"id"`
	TaskType model.TaskType `json:"task_type"`
	Region   string         `json:"region"`
	Priority int            `json:"priority"`
}

// Skipped names a region the run left alone.
type Skipped struct {
	Region string `json:"region"`
	Reason string `json:"reason"`
}

// Result is the outcome of a run.
type Result struct {
	Message         string    `json:"message"`
	Created         []Created `json:"created"`
	Skipped         []Skipped `json:"skipped"`
	SearchDateLimit string    `json:"search_date_limit,omitempty"`
}

// Scheduler creates scheduled tasks.
type Scheduler struct {
	tasks   TaskCreator
	history History
}

// New creates a Scheduler.
func New(tasks TaskCreator, history History) *Scheduler {
	return &Scheduler{tasks: tasks, history: history}
}

// regions resolves the regions a request covers on the day of now.
func (r Request) regions(now time.Time) []string {
	switch r.Mode {
	case ModeManual:
		return r.Regions
	case ModeAll:
		return AllRegions()
	}
	return Weekly(now.UTC().Weekday())
}

// Run schedules one task per region unless the region already has a task
// of the same type today. A failed insert is recorded as a skip.
func (s *Scheduler) Run(ctx context.Context, req Request, now time.Time) (*Result, error) {
	taskType := req.TaskType
	if taskType == "" {
		taskType = model.TaskCandidateSearch
	}
	if !taskType.Valid() {
		return nil, model.Invalid("task_type", "unknown task type %q", taskType)
	}
	if !req.Mode.Valid() {
		return nil, model.Invalid("mode", "unknown mode %q (weekly, all or manual)", req.Mode)
	}
	if req.Mode == ModeManual && len(req.Regions) == 0 {
		return nil, model.Invalid("regions", "manual mode requires regions")
	}

	res := &Result{Created: []Created{}, Skipped: []Skipped{}}
	regions := req.regions(now)
	if len(regions) == 0 {
		res.Message = "今日無排程任務（週末休息）"
		return res, nil
	}

	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	searchAfter := today.AddDate(0, 0, -SearchWindowDays).Format(time.DateOnly)
	res.SearchDateLimit = searchAfter

	for _, region := range regions {
		region = strings.TrimSpace(region)
		if region == "" {
			continue
		}
		exists, err := s.history.HasTaskForRegionSince(ctx, taskType, region, today)
		if err != nil {
			return nil, eris.Wrapf(err, "scheduler: check %s", region)
		}
		if exists {
			res.Skipped = append(res.Skipped, Skipped{Region: region, Reason: SkipAlreadyScheduled})
			continue
		}

		t := &model.Task{
			Type:     taskType,
			Status:   model.TaskScheduled,
			Priority: Priority(region),
			Region:   region,
			Prompt:   PromptTemplate(taskType, region, searchAfter),
			Parameters: model.TaskParams{
				ElectionYear:    ElectionYear,
				Region:          region,
				SearchAfterDate: searchAfter,
				SearchDateLimit: SearchWindowDays,
			},
		}
		if err := s.tasks.Create(ctx, t); err != nil {
			zap.L().Error("scheduler: create task", zap.String("region", region), zap.Error(err))
			res.Skipped = append(res.Skipped, Skipped{Region: region, Reason: err.Error()})
			continue
		}
		res.Created = append(res.Created, Created{ID: t.ID, TaskType: t.Type, Region: region, Priority: t.Priority})
	}

	res.Message = fmt.Sprintf("排程完成：建立 %d 個任務，跳過 %d 個", len(res.Created), len(res.Skipped))
	zap.L().Info("scheduler: run finished",
		zap.String("mode", string(req.Mode)),
		zap.String("task_type", string(taskType)),
		zap.Int("created", len(res.Created)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}
