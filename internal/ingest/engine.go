// Package ingest writes AI-derived and spreadsheet-derived records into the
// store, keyed on natural identity so repeated submissions converge on the
// same rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/gate"
	"github.com/sells-group/policy-tracker/internal/model"
	"github.com/sells-group/policy-tracker/internal/store"
)

// Engine implements the upsert and merge operations.
type Engine struct {
	store      store.Store
	gate       *gate.Gate
	avatar     *gate.AvatarChecker
	invalidate func()
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAvatarChecker sets the checker used for avatar_url updates. Without
// one every avatar is rejected.
func WithAvatarChecker(a *gate.AvatarChecker) Option {
	return func(e *Engine) { e.avatar = a }
}

// WithInvalidate registers a hook run after every successful write.
func WithInvalidate(fn func()) Option {
	return func(e *Engine) { e.invalidate = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. A nil gate uses the default thresholds.
func New(st store.Store, g *gate.Gate, opts ...Option) *Engine {
	if g == nil {
		g = gate.New(0, 0)
	}
	e := &Engine{store: st, gate: g, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) today() time.Time {
	t := e.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (e *Engine) changed() {
	if e.invalidate != nil {
		e.invalidate()
	}
}

// ResolveElection returns the first election dated in year, creating a
// placeholder when there is none.
func (e *Engine) ResolveElection(ctx context.Context, year int) (*model.Election, error) {
	if year <= 0 {
		return nil, model.Invalid("election_year", "is required")
	}
	found, err := e.store.ElectionsInYear(ctx, year)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: elections in %d", year)
	}
	if len(found) > 0 {
		return &found[0], nil
	}

	el := model.PlaceholderElection(year)
	if err := e.store.CreateElection(ctx, &el); err != nil {
		return nil, eris.Wrapf(err, "ingest: create election %d", year)
	}
	zap.L().Info("ingest: created placeholder election", zap.Int("year", year), zap.String("election_id", el.ID))
	e.changed()
	return &el, nil
}

// CandidateInput describes a politician as proposed by an automated source.
type CandidateInput struct {
	Name            string                `json:"name"`
	Party           string                `json:"party,omitempty"`
	Position        string                `json:"position,omitempty"`
	Region          string                `json:"region,omitempty"`
	CurrentPosition string                `json:"current_position,omitempty"`
	Status          model.CandidateStatus `json:"status,omitempty"`
	Confidence      *float64              `json:"confidence,omitempty"`
	BirthYear       *int                  `json:"birth_year,omitempty"`
}

// ResolvePolitician finds a politician by exact name, preferring a matching
// birth year when several share the name, and creates one otherwise. The
// bool reports whether a row was created.
func (e *Engine) ResolvePolitician(ctx context.Context, in CandidateInput) (*model.Politician, bool, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, false, model.Invalid("name", "is required")
	}

	found, err := e.store.PoliticiansByName(ctx, name, true)
	if err != nil {
		return nil, false, eris.Wrapf(err, "ingest: lookup politician %s", name)
	}
	if p := pickPolitician(found, in.BirthYear); p != nil {
		return p, false, nil
	}

	p := &model.Politician{
		Name:            name,
		Party:           NormalizeParty(in.Party),
		Status:          model.PoliticianPotential,
		Position:        strings.TrimSpace(in.Position),
		Region:          strings.TrimSpace(in.Region),
		CurrentPosition: strings.TrimSpace(in.CurrentPosition),
		BirthYear:       in.BirthYear,
	}
	err = e.store.CreatePolitician(ctx, p)
	if errors.Is(err, store.ErrConflict) {
		// Lost a create race; the winner's row is the answer.
		found, err = e.store.PoliticiansByName(ctx, name, true)
		if err == nil && len(found) > 0 {
			return &found[0], false, nil
		}
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "ingest: create politician %s", name)
	}
	return p, true, nil
}

func pickPolitician(found []model.Politician, birthYear *int) *model.Politician {
	if len(found) == 0 {
		return nil
	}
	if birthYear != nil && len(found) > 1 {
		for i := range found {
			if found[i].BirthYear != nil && *found[i].BirthYear == *birthYear {
				return &found[i]
			}
		}
	}
	return &found[0]
}

// Independent is the canonical label for candidates without a party.
const Independent = "無黨籍"

var partySynonyms = map[string]string{
	"國民黨":    "中國國民黨",
	"中國國民黨":  "中國國民黨",
	"民進黨":    "民主進步黨",
	"民主進步黨":  "民主進步黨",
	"民眾黨":    "台灣民眾黨",
	"台灣民眾黨":  "台灣民眾黨",
	"時代力量":   "時代力量",
	"台灣基進":   "台灣基進",
	"台灣團結聯盟": "台灣團結聯盟",
	"台聯":     "台灣團結聯盟",
	"親民黨":    "親民黨",
	"新黨":     "新黨",
	"綠黨":     "綠黨",
	"社會民主黨":  "社會民主黨",
	"台灣維新":   "台灣維新",
	"無黨籍":    Independent,
	"無":      Independent,
}

// NormalizeParty maps a party label onto its canonical name. Unknown and
// empty labels are treated as independent.
func NormalizeParty(s string) string {
	if canonical, ok := partySynonyms[strings.TrimSpace(s)]; ok {
		return canonical
	}
	return Independent
}

// PositionToType maps an office title onto its election type.
func PositionToType(position string) string {
	switch {
	case strings.Contains(position, "總統"):
		return "總統副總統"
	case strings.Contains(position, "立法委員"), strings.Contains(position, "立委"):
		return "立法委員"
	case strings.Contains(position, "市長"), strings.Contains(position, "縣長"):
		return "縣市長"
	case strings.Contains(position, "議員"):
		return "縣市議員"
	case strings.Contains(position, "鄉長"), strings.Contains(position, "鎮長"):
		return "鄉鎮市長"
	case strings.Contains(position, "代表"):
		return "鄉鎮市民代表"
	case strings.Contains(position, "村長"), strings.Contains(position, "里長"):
		return "村里長"
	}
	return "縣市長"
}

// NotFoundError names the record a lookup failed to find. It matches
// store.ErrNotFound under errors.Is.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// Is lets errors.Is match store.ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == store.ErrNotFound }

func notFound(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// PoliticianRef identifies a politician by id, or by exact name when the id
// is empty.
type PoliticianRef struct {
	ID   string `json:"politician_id,omitempty"`
	Name string `json:"politician_name,omitempty"`
}

func (r PoliticianRef) label() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Name
}

func (e *Engine) lookupPolitician(ctx context.Context, ref PoliticianRef) (*model.Politician, error) {
	if ref.ID != "" {
		p, err := e.store.GetPolitician(ctx, ref.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("找不到政治人物: %s", ref.label())
		}
		return p, eris.Wrap(err, "ingest: get politician")
	}
	found, err := e.store.PoliticiansByName(ctx, ref.Name, true)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: politicians by name")
	}
	if len(found) == 0 {
		return nil, notFound("找不到政治人物: %s", ref.label())
	}
	return &found[0], nil
}
