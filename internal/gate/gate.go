// Package gate decides whether AI-derived records are trustworthy enough to
// persist.
package gate

import (
	"strings"
	"unicode"

	"github.com/sells-group/policy-tracker/internal/model"
)

// Skip reasons.
const (
	ReasonLowConfidence = "low_confidence"
	ReasonInvalidName   = "invalid_name"
	ReasonNotPolicy     = "not_policy_content"
	ReasonNoPolicies    = "no_policies"
)

// Default thresholds.
const (
	DefaultCandidateConfidence = 0.5
	CandidateThreshold         = 0.7
	ContributionThreshold      = 0.9
)

const minNameRunes, maxNameRunes = 2, 10

// Decision is the outcome of a gate. A skipped record is not an error.
type Decision struct {
	Admit      bool
	Reason     string
	Confidence float64
}

func admit(c float64) Decision { return Decision{Admit: true, Confidence: c} }

func skip(reason string, c float64) Decision {
	return Decision{Reason: reason, Confidence: c}
}

// Gate holds the thresholds.
type Gate struct {
	CandidateMin  float64
	ContributeMin float64
}

// New creates a Gate. Non-positive thresholds keep the defaults.
func New(candidateMin, contributeMin float64) *Gate {
	g := &Gate{CandidateMin: CandidateThreshold, ContributeMin: ContributionThreshold}
	if candidateMin > 0 {
		g.CandidateMin = candidateMin
	}
	if contributeMin > 0 {
		g.ContributeMin = contributeMin
	}
	return g
}

// Candidate admits a proposed candidate. A missing confidence counts as 0.5.
func (g *Gate) Candidate(name string, confidence *float64) Decision {
	c := DefaultCandidateConfidence
	if confidence != nil {
		c = *confidence
	}
	if c < g.CandidateMin {
		return skip(ReasonLowConfidence, c)
	}
	if !ValidName(name) {
		return skip(ReasonInvalidName, c)
	}
	return admit(c)
}

var placeholderMarkers = []string{"未定", "待定", "未確定", "待確認", "未知", "人選", "待公布", "不詳"}

// ValidName rejects placeholders, implausible lengths and names written
// entirely in Latin letters.
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	for _, m := range placeholderMarkers {
		if strings.Contains(name, m) {
			return false
		}
	}
	if n := model.RuneLen(name); n < minNameRunes || n > maxNameRunes {
		return false
	}
	return !allLatin(name)
}

func allLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			if r != ' ' {
				return false
			}
		}
	}
	return true
}

// Contributable reports whether an analysis may become a policy record.
func (g *Gate) Contributable(confidence float64, isPolicy bool, policies int) bool {
	return g.Contribution(confidence, isPolicy, policies).Admit
}

// Contribution explains why an analysis may or may not be contributed.
func (g *Gate) Contribution(confidence float64, isPolicy bool, policies int) Decision {
	switch {
	case confidence < g.ContributeMin:
		return skip(ReasonLowConfidence, confidence)
	case !isPolicy:
		return skip(ReasonNotPolicy, confidence)
	case policies == 0:
		return skip(ReasonNoPolicies, confidence)
	}
	return admit(confidence)
}
