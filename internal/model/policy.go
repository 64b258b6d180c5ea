package model

import "time"

// PolicyStatus tracks execution of a pledge.
type PolicyStatus string

const (
	PolicyProposed       PolicyStatus = "Proposed"
	PolicyInProgress     PolicyStatus = "In Progress"
	PolicyAchieved       PolicyStatus = "Achieved"
	PolicyStalled        PolicyStatus = "Stalled"
	PolicyFailed         PolicyStatus = "Failed"
	PolicyCampaignPledge PolicyStatus = "Campaign Pledge"
)

// Valid reports whether s is a known policy status.
func (s PolicyStatus) Valid() bool {
	switch s {
	case PolicyProposed, PolicyInProgress, PolicyAchieved, PolicyStalled, PolicyFailed, PolicyCampaignPledge:
		return true
	}
	return false
}

// DefaultCategory is applied when a policy arrives without a category.
const DefaultCategory = "其他"

// Policy is a pledge owned by exactly one politician.
type Policy struct {
	ID               string        `json:"id"`
	PoliticianID     string        `json:"politician_id"`
	ElectionID       *string       `json:"election_id,omitempty"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Category         string        `json:"category"`
	Status           PolicyStatus  `json:"status"`
	ProposedDate     time.Time     `json:"proposed_date"`
	LastUpdated      time.Time     `json:"last_updated"`
	Progress         int           `json:"progress"`
	Tags             []string      `json:"tags,omitempty"`
	SourceURL        string        `json:"source_url,omitempty"`
	AIAnalysis       string        `json:"ai_analysis,omitempty"`
	SupportCount     int           `json:"support_count"`
	AIExtracted      bool          `json:"ai_extracted"`
	AIConfidence     *float64      `json:"ai_confidence,omitempty"`
	RelatedPolicyIDs []string      `json:"related_policy_ids,omitempty"`
	Logs             []TrackingLog `json:"logs,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// PolicyRow is a policy with its owner's name, as returned by policy queries.
type PolicyRow struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Category       string       `json:"category"`
	Status         PolicyStatus `json:"status"`
	Progress       int          `json:"progress"`
	SourceURL      string       `json:"source_url,omitempty"`
	PoliticianID   string       `json:"politician_id"`
	PoliticianName string       `json:"politician_name"`
}

// TrackingLog is an append-only event on a policy's timeline.
type TrackingLog struct {
	ID          string    `json:"id"`
	PolicyID    string    `json:"policy_id"`
	Date        time.Time `json:"date"`
	Event       string    `json:"event"`
	Description string    `json:"description,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	SourceName  string    `json:"source_name,omitempty"`
	AIExtracted bool      `json:"ai_extracted"`
	CreatedAt   time.Time `json:"created_at"`
}

// PolicySource is a reference document for a policy, unique per (policy, url).
type PolicySource struct {
	ID            string     `json:"id"`
	PolicyID      string     `json:"policy_id"`
	URL           string     `json:"url"`
	Title         string     `json:"title,omitempty"`
	SourceName    string     `json:"source_name,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
