package classify

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/width"

	"github.com/sells-group/policy-tracker/internal/model"
)

var (
	quotedNameRe = regexp.MustCompile(`[「『]([^」』]+)[」』]`)
	yearRe       = regexp.MustCompile(`20\d{2}`)
)

// Input is a free-text submission plus optional structured hints.
type Input struct {
	Text           string
	URL            string
	PoliticianID   string
	PoliticianName string
	PolicyID       string
}

// Result is the outcome of classifying an Input.
type Result struct {
	TaskType       model.TaskType
	Confidence     float64
	RequiresReview bool
	Regions        []string
	Positions      []string
	Year           int
	QuotedName     string
}

// ApplyAdmin clears the review flag; admin submissions are trusted.
func (r *Result) ApplyAdmin() {
	r.RequiresReview = false
}

// Classifier applies a compiled Rules table.
type Classifier struct {
	rules      Rules
	regionRe   *regexp.Regexp
	positionRe *regexp.Regexp
}

// New compiles rules into a Classifier.
func New(rules Rules) (*Classifier, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{rules: rules}

	if len(rules.Regions) > 0 {
		re, err := regexp.Compile("(?:" + alternation(rules.Regions) + ")(?:市|縣)?")
		if err != nil {
			return nil, eris.Wrap(err, "classify: compile regions")
		}
		c.regionRe = re
	}
	if len(rules.Positions) > 0 {
		re, err := regexp.Compile(alternation(rules.Positions))
		if err != nil {
			return nil, eris.Wrap(err, "classify: compile positions")
		}
		c.positionRe = re
	}
	return c, nil
}

// MustDefault returns a Classifier over DefaultRules.
func MustDefault() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

func alternation(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// Normalize trims and folds full-width forms so that full-width digits and
// ASCII punctuation match the rule vocabularies.
func Normalize(text string) string {
	return strings.TrimSpace(width.Fold.String(text))
}

// Classify runs the ordered decision list over in.
func (c *Classifier) Classify(in Input) Result {
	text := Normalize(in.Text)

	res := Result{
		Regions:    c.Regions(text),
		Positions:  c.Positions(text),
		Year:       c.Year(text),
		QuotedName: QuotedName(text),
	}

	signals := map[Signal]bool{
		SignalPolitician: in.PoliticianID != "" || in.PoliticianName != "" || res.QuotedName != "",
		SignalProfile:    containsAny(text, c.rules.ProfileKeywords),
		SignalSearch:     containsAny(text, c.rules.SearchKeywords),
		SignalPlace:      len(res.Regions) > 0 || len(res.Positions) > 0,
		SignalNewsURL:    c.IsNewsURL(in.URL),
		SignalVerify:     containsAny(text, c.rules.VerifyKeywords),
		SignalProgress:   containsAny(text, c.rules.ProgressKeywords),
	}

	for _, d := range c.rules.Decisions {
		if allHold(signals, d.When) {
			res.TaskType = d.TaskType
			res.Confidence = d.Confidence
			res.RequiresReview = d.RequiresReview
			break
		}
	}
	return res
}

func allHold(signals map[Signal]bool, when []Signal) bool {
	for _, s := range when {
		if !signals[s] {
			return false
		}
	}
	return true
}

func containsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// Regions returns distinct region tokens in order of first appearance.
func (c *Classifier) Regions(text string) []string {
	if c.regionRe == nil {
		return nil
	}
	return distinct(c.regionRe.FindAllString(text, -1))
}

// Positions returns distinct office titles in order of first appearance.
func (c *Classifier) Positions(text string) []string {
	if c.positionRe == nil {
		return nil
	}
	return distinct(c.positionRe.FindAllString(text, -1))
}

// Year returns the first year inside the configured window, or the default.
func (c *Classifier) Year(text string) int {
	for _, m := range yearRe.FindAllString(text, -1) {
		y, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if y >= c.rules.MinYear && y <= c.rules.MaxYear {
			return y
		}
	}
	return c.rules.DefaultYear
}

// IsNewsURL reports whether rawURL's host contains an allowlisted news domain.
func (c *Classifier) IsNewsURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range c.rules.NewsDomains {
		if strings.Contains(host, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// QuotedName returns the first name between 「」 or 『』 brackets.
func QuotedName(text string) string {
	m := quotedNameRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func distinct(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
