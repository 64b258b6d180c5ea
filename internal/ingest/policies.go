package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

// PolicyInput is a policy as proposed by an automated source.
type PolicyInput struct {
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Category    string             `json:"category,omitempty"`
	Status      model.PolicyStatus `json:"status,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	SourceURL   string             `json:"source_url,omitempty"`
	Confidence  *float64           `json:"confidence,omitempty"`
}

// AddPolicyRequest attaches a policy to a politician.
type AddPolicyRequest struct {
	Politician   PoliticianRef
	ElectionYear int
	Policy       PolicyInput
}

// PolicyResult is the outcome of a policy write.
type PolicyResult struct {
	Action   string `json:"action"`
	PolicyID string `json:"policy_id"`
	Title    string `json:"title,omitempty"`
	Message  string `json:"message,omitempty"`
}

// AddPolicy creates a policy unless the politician already has one with
// the same title, compared case-insensitively.
func (e *Engine) AddPolicy(ctx context.Context, req AddPolicyRequest) (*PolicyResult, error) {
	title := strings.TrimSpace(req.Policy.Title)
	if req.Politician.label() == "" || title == "" {
		return nil, model.Invalid("", "Missing politician_name or policy.title")
	}
	pol, err := e.lookupPolitician(ctx, req.Politician)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.FindPolicy(ctx, pol.ID, title, true)
	switch {
	case err == nil:
		return &PolicyResult{Action: ActionExists, PolicyID: existing.ID, Message: "政見已存在"}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, eris.Wrap(err, "ingest: find policy")
	}

	p := &model.Policy{
		PoliticianID: pol.ID,
		Title:        title,
		Description:  strings.TrimSpace(req.Policy.Description),
		Category:     strings.TrimSpace(req.Policy.Category),
		Status:       req.Policy.Status,
		Tags:         req.Policy.Tags,
		SourceURL:    strings.TrimSpace(req.Policy.SourceURL),
		AIExtracted:  true,
		AIConfidence: req.Policy.Confidence,
	}
	if req.ElectionYear > 0 {
		el, err := e.ResolveElection(ctx, req.ElectionYear)
		if err != nil {
			return nil, err
		}
		p.ElectionID = &el.ID
	}
	if err := e.createPolicy(ctx, p); err != nil {
		return nil, err
	}
	return &PolicyResult{Action: ActionCreated, PolicyID: p.ID, Title: p.Title}, nil
}

func (e *Engine) createPolicy(ctx context.Context, p *model.Policy) error {
	if p.Category == "" {
		p.Category = model.DefaultCategory
	}
	if !p.Status.Valid() {
		p.Status = model.PolicyCampaignPledge
	}
	today := e.today()
	if p.ProposedDate.IsZero() {
		p.ProposedDate = today
	}
	p.LastUpdated = today
	if err := e.store.CreatePolicy(ctx, p); err != nil {
		return eris.Wrapf(err, "ingest: create policy %q", p.Title)
	}
	zap.L().Info("ingest: policy created",
		zap.String("policy_id", p.ID),
		zap.String("politician_id", p.PoliticianID),
		zap.String("title", p.Title),
	)
	e.changed()
	return nil
}

// PolicyRef identifies a policy by id, or by politician and a title
// substring.
type PolicyRef struct {
	PolicyID   string
	Politician PoliticianRef
	Title      string
}

func (e *Engine) lookupPolicy(ctx context.Context, ref PolicyRef) (*model.Policy, error) {
	if ref.PolicyID != "" {
		p, err := e.store.GetPolicy(ctx, ref.PolicyID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("找不到政見: %s", ref.PolicyID)
		}
		return p, eris.Wrap(err, "ingest: get policy")
	}
	if ref.Politician.label() == "" || strings.TrimSpace(ref.Title) == "" {
		return nil, model.Invalid("", "Missing policy_id or politician_name and policy_title")
	}
	pol, err := e.lookupPolitician(ctx, ref.Politician)
	if err != nil {
		return nil, err
	}
	p, err := e.store.FindPolicy(ctx, pol.ID, ref.Title, false)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("找不到政見: %s", ref.Title)
	}
	return p, eris.Wrap(err, "ingest: find policy")
}

// UpdatePolicyRequest changes a policy's status and progress.
type UpdatePolicyRequest struct {
	TaskID       string
	Policy       PolicyRef
	NewStatus    model.PolicyStatus
	Progress     *int
	ProgressNote string
	SourceURL    string
}

// UpdatePolicy sets status and progress. A progress note is also appended to
// the policy's timeline.
func (e *Engine) UpdatePolicy(ctx context.Context, req UpdatePolicyRequest) (*PolicyResult, error) {
	if req.Progress != nil && !model.ValidProgress(*req.Progress) {
		return nil, model.Invalid("progress", "must be between 0 and 100")
	}
	status := NormalizeStatus(string(req.NewStatus))
	if req.NewStatus != "" && status == "" {
		return nil, model.Invalid("new_status", "unknown status %q", req.NewStatus)
	}

	p, err := e.lookupPolicy(ctx, req.Policy)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdatePolicyStatus(ctx, p.ID, status, req.Progress); err != nil {
		return nil, eris.Wrapf(err, "ingest: update policy %s", p.ID)
	}

	if note := strings.TrimSpace(req.ProgressNote); note != "" {
		event := string(status)
		if event == "" {
			event = "進行中"
		}
		log := &model.TrackingLog{
			PolicyID:    p.ID,
			Date:        e.today(),
			Event:       event,
			Description: note,
			SourceURL:   strings.TrimSpace(req.SourceURL),
			SourceName:  model.SourceNote(req.TaskID),
			AIExtracted: true,
		}
		if err := e.store.AddTrackingLog(ctx, log); err != nil {
			return nil, eris.Wrap(err, "ingest: add tracking log")
		}
	}
	e.changed()
	return &PolicyResult{Action: ActionUpdated, PolicyID: p.ID}, nil
}

// TrackingLogRequest appends one event to a policy's timeline.
type TrackingLogRequest struct {
	TaskID     string
	Policy     PolicyRef
	Status     string
	Content    string
	SourceURL  string
	SourceName string
	Date       string
}

// LogResult is the AddTrackingLog response.
type LogResult struct {
	Action string `json:"action"`
	LogID  string `json:"log_id"`
}

// AddTrackingLog appends a tracking log. The date defaults to today and the
// source name to the task's provenance tag.
func (e *Engine) AddTrackingLog(ctx context.Context, req TrackingLogRequest) (*LogResult, error) {
	p, err := e.lookupPolicy(ctx, req.Policy)
	if err != nil {
		return nil, err
	}

	date := e.today()
	if d := strings.TrimSpace(req.Date); d != "" {
		parsed, err := parseDate(d)
		if err != nil {
			return nil, model.Invalid("date", "expected YYYY-MM-DD, got %q", d)
		}
		date = parsed
	}
	event := strings.TrimSpace(req.Status)
	if event == "" {
		event = "進行中"
	}
	source := strings.TrimSpace(req.SourceName)
	if source == "" {
		source = model.SourceNote(req.TaskID)
	}

	log := &model.TrackingLog{
		PolicyID:    p.ID,
		Date:        date,
		Event:       event,
		Description: strings.TrimSpace(req.Content),
		SourceURL:   strings.TrimSpace(req.SourceURL),
		SourceName:  source,
		AIExtracted: true,
	}
	if err := e.store.AddTrackingLog(ctx, log); err != nil {
		return nil, eris.Wrap(err, "ingest: add tracking log")
	}
	e.changed()
	return &LogResult{Action: ActionCreated, LogID: log.ID}, nil
}

func parseDate(s string) (time.Time, error) {
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	return time.Parse(time.DateOnly, s)
}

// SourceInput is one reference document proposed for a policy.
type SourceInput struct {
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	SourceName    string `json:"source_name,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
}

// SourcesResult is the AddPolicySources response.
type SourcesResult struct {
	Action        string `json:"action"`
	PolicyID      string `json:"policy_id"`
	InsertedCount int    `json:"inserted_count"`
	Message       string `json:"message"`
}

// AddPolicySources records reference documents for a policy. URLs already
// on file for the policy are ignored.
func (e *Engine) AddPolicySources(ctx context.Context, ref PolicyRef, in []SourceInput) (*SourcesResult, error) {
	var sources []model.PolicySource
	for _, s := range in {
		u := strings.TrimSpace(s.URL)
		if u == "" {
			continue
		}
		src := model.PolicySource{URL: u, Title: strings.TrimSpace(s.Title), SourceName: strings.TrimSpace(s.SourceName)}
		if d, err := parseDate(strings.TrimSpace(s.PublishedDate)); err == nil {
			src.PublishedDate = &d
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, model.Invalid("sources", "Missing or empty sources array")
	}

	p, err := e.lookupPolicy(ctx, ref)
	if err != nil {
		return nil, err
	}
	n, err := e.store.AddPolicySources(ctx, p.ID, sources)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: add sources to %s", p.ID)
	}
	if n > 0 {
		e.changed()
	}
	return &SourcesResult{
		Action:        ActionAdded,
		PolicyID:      p.ID,
		InsertedCount: n,
		Message:       fmt.Sprintf("新增 %d 筆資料來源", n),
	}, nil
}

// SourceList is the ListPolicySources response.
type SourceList struct {
	PolicyID string               `json:"policy_id"`
	Count    int                  `json:"count"`
	Sources  []model.PolicySource `json:"sources"`
}

// ListPolicySources pages through a policy's sources, newest first.
func (e *Engine) ListPolicySources(ctx context.Context, policyID string, limit, offset int) (*SourceList, error) {
	if strings.TrimSpace(policyID) == "" {
		return nil, model.Invalid("", "Missing policy_id")
	}
	if limit <= 0 {
		limit = store.DefaultQueryLimit
	}
	if offset < 0 {
		offset = 0
	}
	sources, err := e.store.ListPolicySources(ctx, policyID, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: list sources")
	}
	if sources == nil {
		sources = []model.PolicySource{}
	}
	return &SourceList{PolicyID: policyID, Count: len(sources), Sources: sources}, nil
}

// PolicyQuery filters QueryPolicies.
type PolicyQuery struct {
	PoliticianID   string   `json:"politician_id,omitempty"`
	PoliticianName string   `json:"politician_name,omitempty"`
	Category       string   `json:"category,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// PolicyList is the QueryPolicies response.
type PolicyList struct {
	Count    int               `json:"count"`
	Policies []model.PolicyRow `json:"policies"`
	Message  string            `json:"message"`
}

// QueryPolicies lists existing policies so callers can avoid duplicates.
func (e *Engine) QueryPolicies(ctx context.Context, q PolicyQuery) (*PolicyList, error) {
	f := store.PolicyFilter{
		Category: strings.TrimSpace(q.Category),
		Limit:    store.DefaultQueryLimit,
	}
	for _, k := range q.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			f.Keywords = append(f.Keywords, k)
		}
	}

	switch {
	case q.PoliticianID != "":
		f.PoliticianIDs = []string{q.PoliticianID}
	case strings.TrimSpace(q.PoliticianName) != "":
		found, err := e.store.PoliticiansByName(ctx, q.PoliticianName, false)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: politicians by name")
		}
		if len(found) == 0 {
			return &PolicyList{
				Policies: []model.PolicyRow{},
				Message:  "找不到政治人物: " + q.PoliticianName,
			}, nil
		}
		for _, p := range found {
			f.PoliticianIDs = append(f.PoliticianIDs, p.ID)
		}
	}

	rows, err := e.store.ListPolicies(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: query policies")
	}
	if rows == nil {
		rows = []model.PolicyRow{}
	}
	msg := "沒有找到符合條件的政見"
	if len(rows) > 0 {
		msg = fmt.Sprintf("找到 %d 條現有政見", len(rows))
	}
	return &PolicyList{Count: len(rows), Policies: rows, Message: msg}, nil
}
