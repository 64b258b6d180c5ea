package classify

import (
	"strconv"
	"strings"

	"github.com/sells-group/policy-tracker/internal/model"
)

// Dispatch priorities for classified submissions.
const (
	PriorityAdmin    = 8
	PriorityStandard = 7
	PriorityReview   = 5
)

// Priority returns the dispatch priority for a submission.
func Priority(isAdmin, requiresReview bool) int {
	switch {
	case isAdmin:
		return PriorityAdmin
	case requiresReview:
		return PriorityReview
	default:
		return PriorityStandard
	}
}

// BuildParams assembles the parameter blob stored with a classified task.
func BuildParams(in Input, res Result) model.TaskParams {
	name := in.PoliticianName
	if name == "" {
		name = res.QuotedName
	}
	p := model.TaskParams{
		ElectionYear:   res.Year,
		Regions:        res.Regions,
		Positions:      res.Positions,
		URL:            in.URL,
		OriginalInput:  in.Text,
		PoliticianID:   in.PoliticianID,
		PoliticianName: name,
		PolicyID:       in.PolicyID,
	}
	if len(res.Regions) > 0 {
		p.Region = res.Regions[0]
	}
	return p
}

// BuildPrompt renders the instruction handed to the downstream agent.
// Candidate searches get a normalized query; other types pass the raw input.
func BuildPrompt(taskType model.TaskType, p model.TaskParams) string {
	if taskType != model.TaskCandidateSearch {
		return p.OriginalInput
	}
	var b strings.Builder
	b.WriteString("搜尋 ")
	b.WriteString(strconv.Itoa(p.ElectionYear))
	b.WriteString(" 年台灣")
	b.WriteString(strings.Join(p.Regions, "、"))
	b.WriteString(strings.Join(p.Positions, "、"))
	b.WriteString("選舉候選人名單")
	return b.String()
}

// StatusMessage is the acknowledgement shown to the submitter.
func StatusMessage(taskType model.TaskType, requiresReview bool) string {
	if requiresReview {
		return "已收到您的提交，將在審核後處理"
	}
	switch taskType {
	case model.TaskCandidateSearch:
		return "正在搜尋候選人資訊，請稍候..."
	case model.TaskPoliticianUpdate:
		return "正在搜尋並更新個人資料，請稍候..."
	case model.TaskPolicyVerify:
		return "正在驗證政見內容..."
	case model.TaskProgressTracking:
		return "正在查詢政見進度..."
	default:
		return "任務已建立，請稍候..."
	}
}
