// Package classify turns free-text submissions into task categories using a
// configurable rules table.
package classify

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/policy-tracker/internal/model"
)

// Signal names a boolean feature computed from a submission.
type Signal string

const (
	SignalPolitician Signal = "politician"
	SignalProfile    Signal = "profile"
	SignalSearch     Signal = "search"
	SignalPlace      Signal = "place"
	SignalNewsURL    Signal = "news_url"
	SignalVerify     Signal = "verify"
	SignalProgress   Signal = "progress"
)

var knownSignals = map[Signal]bool{
	SignalPolitician: true,
	SignalProfile:    true,
	SignalSearch:     true,
	SignalPlace:      true,
	SignalNewsURL:    true,
	SignalVerify:     true,
	SignalProgress:   true,
}

// Decision is one row of the ordered decision list. It fires when every
// signal in When holds; an empty When always fires.
type Decision struct {
	TaskType       model.TaskType `yaml:"task_type"`
	When           []Signal       `yaml:"when"`
	Confidence     float64        `yaml:"confidence"`
	RequiresReview bool           `yaml:"requires_review"`
}

// Rules is the full classification table: vocabularies plus the ordered
// decision list. The first matching decision wins.
type Rules struct {
	SearchKeywords   []string   `yaml:"search_keywords"`
	ProfileKeywords  []string   `yaml:"profile_keywords"`
	VerifyKeywords   []string   `yaml:"verify_keywords"`
	ProgressKeywords []string   `yaml:"progress_keywords"`
	Regions          []string   `yaml:"regions"`
	Positions        []string   `yaml:"positions"`
	NewsDomains      []string   `yaml:"news_domains"`
	MinYear          int        `yaml:"min_year"`
	MaxYear          int        `yaml:"max_year"`
	DefaultYear      int        `yaml:"default_year"`
	Decisions        []Decision `yaml:"decisions"`
}

// DefaultRules returns the built-in table.
func DefaultRules() Rules {
	return Rules{
		SearchKeywords:   []string{"搜尋", "查找", "找", "搜索", "列出", "有哪些", "誰", "候選人", "參選"},
		ProfileKeywords:  []string{"簡介", "經歷", "學歷", "頭像", "照片", "背景", "個人資料", "維基", "wikipedia"},
		VerifyKeywords:   []string{"驗證", "查核", "是否屬實", "真的嗎", "確認", "是不是真的", "有沒有"},
		ProgressKeywords: []string{"進度", "執行", "實現", "完成", "落實", "兌現"},
		Regions: []string{
			"台北", "新北", "桃園", "台中", "台南", "高雄", "基隆", "新竹", "嘉義", "苗栗",
			"彰化", "南投", "雲林", "屏東", "宜蘭", "花蓮", "台東", "澎湖", "金門", "連江",
		},
		Positions: []string{
			"縣市長", "市長", "縣長", "議員", "立委", "立法委員", "總統", "副總統",
			"鄉鎮市長", "鄉長", "鎮長", "村里長", "村長", "里長", "代表",
		},
		NewsDomains: []string{
			"udn.com", "ltn.com.tw", "chinatimes.com", "tvbs.com.tw", "ettoday.net", "setn.com",
			"cna.com.tw", "storm.mg", "newtalk.tw", "appledaily.com", "nownews.com", "yahoo.com",
			"facebook.com",
		},
		MinYear:     2024,
		MaxYear:     2030,
		DefaultYear: 2026,
		Decisions: []Decision{
			{TaskType: model.TaskPoliticianUpdate, When: []Signal{SignalPolitician, SignalProfile}, Confidence: 0.9},
			{TaskType: model.TaskCandidateSearch, When: []Signal{SignalSearch, SignalPlace}, Confidence: 0.9},
			{TaskType: model.TaskPolicyImport, When: []Signal{SignalNewsURL}, Confidence: 0.8, RequiresReview: true},
			{TaskType: model.TaskPolicyVerify, When: []Signal{SignalVerify}, Confidence: 0.85},
			{TaskType: model.TaskProgressTracking, When: []Signal{SignalProgress}, Confidence: 0.75},
			{TaskType: model.TaskUserContribution, Confidence: 0.6, RequiresReview: true},
		},
	}
}

// LoadRules reads a YAML rules file and overlays it on DefaultRules. Lists
// present in the file replace the defaults wholesale; absent lists and zero
// numbers keep the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, eris.Wrapf(err, "classify: read rules %s", path)
	}

	var override Rules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return rules, eris.Wrapf(err, "classify: parse rules %s", path)
	}

	rules.merge(override)
	if err := rules.Validate(); err != nil {
		return rules, err
	}
	return rules, nil
}

func (r *Rules) merge(o Rules) {
	overlay := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	overlay(&r.SearchKeywords, o.SearchKeywords)
	overlay(&r.ProfileKeywords, o.ProfileKeywords)
	overlay(&r.VerifyKeywords, o.VerifyKeywords)
	overlay(&r.ProgressKeywords, o.ProgressKeywords)
	overlay(&r.Regions, o.Regions)
	overlay(&r.Positions, o.Positions)
	overlay(&r.NewsDomains, o.NewsDomains)
	if o.MinYear > 0 {
		r.MinYear = o.MinYear
	}
	if o.MaxYear > 0 {
		r.MaxYear = o.MaxYear
	}
	if o.DefaultYear > 0 {
		r.DefaultYear = o.DefaultYear
	}
	if len(o.Decisions) > 0 {
		r.Decisions = o.Decisions
	}
}

// Validate checks the decision list is usable: known task types and signals,
// confidences in [0,1], and a final catch-all row.
func (r Rules) Validate() error {
	if len(r.Decisions) == 0 {
		return eris.New("classify: no decisions")
	}
	for i, d := range r.Decisions {
		if !d.TaskType.Valid() {
			return eris.Errorf("classify: decision %d: unknown task type %q", i, d.TaskType)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			return eris.Errorf("classify: decision %d: confidence %v out of range", i, d.Confidence)
		}
		for _, s := range d.When {
			if !knownSignals[s] {
				return eris.Errorf("classify: decision %d: unknown signal %q", i, s)
			}
		}
	}
	if last := r.Decisions[len(r.Decisions)-1]; len(last.When) != 0 {
		return eris.New("classify: last decision must have no conditions")
	}
	if r.MinYear > r.MaxYear {
		return eris.Errorf("classify: min_year %d after max_year %d", r.MinYear, r.MaxYear)
	}
	return nil
}
