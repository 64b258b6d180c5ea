package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/model"
)

var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict is returned when an insert collides with a unique key.
	ErrConflict = eris.New("store: conflict")
)

// DefaultQueryLimit caps list queries that do not set a limit.
const DefaultQueryLimit = 50

// CandidateFilter narrows ListCandidates. String fields match as
// case-insensitive substrings; Year matches the election date.
type CandidateFilter struct {
	Year     int
	Region   string
	Position string
	Name     string
	Limit    int
}

// PolicyFilter narrows ListPolicies. Keywords match title or description;
// any keyword is enough.
type PolicyFilter struct {
	PoliticianIDs []string
	Category      string
	Keywords      []string
	Limit         int
}

// ParticipationRecord is a participation joined with its politician, used
// by duplicate detection.
type ParticipationRecord struct {
	model.Participation
	PoliticianName   string
	PoliticianRegion string
}

// UsageTotals aggregates AI usage logs over a window.
type UsageTotals struct {
	Calls        int
	Failures     int
	Tokens       int
	EstimatedUSD float64
}

// Store defines persistence for the policy tracker.
type Store interface {
	// Elections
	ListElections(ctx context.Context) ([]model.Election, error)
	ElectionsInYear(ctx context.Context, year int) ([]model.Election, error)
	CreateElection(ctx context.Context, e *model.Election) error

	// Politicians
	GetPolitician(ctx context.Context, id string) (*model.Politician, error)
	PoliticiansByName(ctx context.Context, name string, exact bool) ([]model.Politician, error)
	ListPoliticians(ctx context.Context) ([]model.Politician, error)
	CreatePolitician(ctx context.Context, p *model.Politician) error
	UpdatePolitician(ctx context.Context, id string, patch model.PoliticianPatch) error

	// Participations
	GetParticipation(ctx context.Context, politicianID, electionID string) (*model.Participation, error)
	CreateParticipation(ctx context.Context, pe *model.Participation) error
	UpdateParticipation(ctx context.Context, pe *model.Participation) error
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]model.CandidateRow, error)
	ParticipationsInYear(ctx context.Context, year int) ([]ParticipationRecord, error)
	DeleteParticipations(ctx context.Context, ids []string) (int, error)
	// EnsurePairIndex adds the unique (politician, election) key once no
	// duplicate pairs remain and reports whether it is in place.
	EnsurePairIndex(ctx context.Context) (bool, error)

	// Policies
	GetPolicy(ctx context.Context, id string) (*model.Policy, error)
	FindPolicy(ctx context.Context, politicianID, title string, exact bool) (*model.Policy, error)
	CreatePolicy(ctx context.Context, p *model.Policy) error
	UpdatePolicyStatus(ctx context.Context, id string, status model.PolicyStatus, progress *int) error
	ListPolicies(ctx context.Context, filter PolicyFilter) ([]model.PolicyRow, error)
	AllPolicies(ctx context.Context) ([]model.Policy, error)

	// Tracking logs and sources
	AddTrackingLog(ctx context.Context, l *model.TrackingLog) error
	TrackingLogs(ctx context.Context, policyID string) ([]model.TrackingLog, error)
	AddPolicySources(ctx context.Context, policyID string, sources []model.PolicySource) (int, error)
	ListPolicySources(ctx context.Context, policyID string, limit, offset int) ([]model.PolicySource, error)

	// Tasks
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, from []model.TaskStatus, u model.TaskUpdate) (bool, error)
	CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error)
	HasTaskForRegionSince(ctx context.Context, taskType model.TaskType, region string, since time.Time) (bool, error)

	// Usage
	CreateUsageLog(ctx context.Context, l *model.UsageLog) error
	GetUsageLog(ctx context.Context, id string) (*model.UsageLog, error)
	CountUsageSince(ctx context.Context, filter model.UsageFilter) (int, error)
	ClaimContribution(ctx context.Context, logID string) (bool, error)
	ReleaseContribution(ctx context.Context, logID string) error
	LinkContribution(ctx context.Context, logID, policyID string) error

	// Health
	TaskStatusCounts(ctx context.Context, since time.Time) (map[model.TaskStatus]int, error)
	CountStaleTasks(ctx context.Context, updatedBefore time.Time) (int, error)
	UsageTotalsSince(ctx context.Context, since time.Time) (UsageTotals, error)

	// Users
	IsAdmin(ctx context.Context, userID string) (bool, error)
	SetAdmin(ctx context.Context, userID string, admin bool) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
