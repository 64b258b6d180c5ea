package extract

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/qri-io/jsonschema"
)

// UnparseableSummary is the summary carried by the fallback analysis.
const UnparseableSummary = "無法解析 AI 回應"

// ExtractedPolicy is one policy pulled out of the submitted content.
type ExtractedPolicy struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// Analysis is the structured verdict on a piece of submitted content.
type Analysis struct {
	IsElectionRelated bool              `json:"is_election_related"`
	IsPolicyContent   bool              `json:"is_policy_content"`
	PoliticianName    string            `json:"politician_name,omitempty"`
	ElectionYear      int               `json:"election_year,omitempty"`
	Position          string            `json:"position,omitempty"`
	Policies          []ExtractedPolicy `json:"policies,omitempty"`
	Summary           string            `json:"summary"`
	Confidence        float64           `json:"confidence"`
}

// Unparseable is returned whenever the model answer cannot be used.
func Unparseable() Analysis {
	return Analysis{Summary: UnparseableSummary}
}

// analysisSchema accepts null for optional fields since models emit them.
const analysisSchema = `{
  "type": "object",
  "required": ["is_election_related", "is_policy_content"],
  "properties": {
    "is_election_related": {"type": "boolean"},
    "is_policy_content": {"type": "boolean"},
    "politician_name": {"type": ["string", "null"]},
    "election_year": {"type": ["number", "string", "null"]},
    "position": {"type": ["string", "null"]},
    "summary": {"type": ["string", "null"]},
    "confidence": {"type": ["number", "null"]},
    "policies": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title": {"type": "string"},
          "description": {"type": ["string", "null"]},
          "category": {"type": ["string", "null"]},
          "tags": {"type": ["array", "null"], "items": {"type": "string"}}
        }
      }
    }
  }
}`

var schema = mustSchema(analysisSchema)

func mustSchema(src string) *jsonschema.Schema {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(src), rs); err != nil {
		panic(err)
	}
	return rs
}

// cleanJSON strips Markdown code fences and keeps the outermost object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// parseAnalysis decodes a model answer. ok is false when the text is not a
// JSON object matching the analysis schema.
func parseAnalysis(ctx context.Context, text string) (Analysis, bool) {
	raw := []byte(cleanJSON(text))

	verrs, err := schema.ValidateBytes(ctx, raw)
	if err != nil || len(verrs) > 0 {
		return Unparseable(), false
	}

	// The outer field shadows the embedded one, so election_year lands in Year.
	var decoded struct {
		Analysis
		Year json.RawMessage `json:"election_year"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Unparseable(), false
	}
	a := decoded.Analysis
	a.ElectionYear = parseYear(decoded.Year)

	switch {
	case math.IsNaN(a.Confidence), a.Confidence < 0:
		a.Confidence = 0
	case a.Confidence > 1:
		a.Confidence = 1
	}
	if strings.TrimSpace(a.Summary) == "" {
		a.Summary = "分析完成"
	}
	kept := a.Policies[:0]
	for _, p := range a.Policies {
		p.Title = strings.TrimSpace(p.Title)
		if p.Title != "" {
			kept = append(kept, p)
		}
	}
	a.Policies = kept
	return a, true
}

// parseYear reads election_year as a number or a string such as "2026" or
// "2026年". ROC years are shifted to the Gregorian calendar. Anything else
// yields 0 and leaves the rest of the analysis intact.
func parseYear(raw json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSpace(s)
		s = strings.TrimPrefix(s, "民國")
		s = strings.TrimSuffix(s, "年")
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		n = float64(v)
	}
	if n != math.Trunc(n) {
		return 0
	}
	year := int(n)
	if year > 0 && year < 200 {
		year += 1911
	}
	if year < 1900 || year > 2200 {
		return 0
	}
	return year
}
