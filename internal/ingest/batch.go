package ingest

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
)

// ResultRow is one candidate line from an official results sheet.
type ResultRow struct {
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	Party     string  `json:"party,omitempty"`
	BirthYear *int    `json:"birth_year,omitempty"`
	Gender    string  `json:"gender,omitempty"`
	Votes     *int    `json:"votes,omitempty"`
	VoteShare float64 `json:"vote_share,omitempty"`
	Elected   bool    `json:"elected"`
}

// BatchRequest is a verified import of official results.
type BatchRequest struct {
	ElectionYear int         `json:"election_year"`
	ElectionType string      `json:"election_type"`
	DataSource   string      `json:"data_source"`
	Candidates   []ResultRow `json:"candidates"`
}

// BatchReport is the BatchImport response.
type BatchReport struct {
	Success       int      `json:"success"`
	Failed        int      `json:"failed"`
	Skipped       int      `json:"skipped"`
	ImportedNames []string `json:"imported_names"`
	Errors        []string `json:"errors"`
}

const maxReportedErrors = 10

var electionTypes = map[string]bool{
	"縣市長":   true,
	"縣市議員":  true,
	"立法委員":  true,
	"鄉鎮市長":  true,
	"村里長":   true,
	"總統副總統": true,
}

// BatchImport records official results row by row. A failing row is counted
// and reported; it does not stop the batch. Rows whose participation
// already exists refresh it and count as skipped.
func (e *Engine) BatchImport(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	if req.ElectionYear <= 0 || len(req.Candidates) == 0 {
		return nil, model.Invalid("", "Missing required fields")
	}
	election, err := e.ResolveElection(ctx, req.ElectionYear)
	if err != nil {
		return nil, err
	}

	electionType := req.ElectionType
	if !electionTypes[electionType] {
		electionType = PositionToType(req.ElectionType)
	}

	report := &BatchReport{ImportedNames: []string{}, Errors: []string{}}
	fail := func(name string, err error) {
		report.Failed++
		report.Errors = append(report.Errors, name+": "+err.Error())
	}

	for _, row := range req.Candidates {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			fail("(blank)", model.Invalid("name", "is required"))
			continue
		}

		pol, created, err := e.ResolvePolitician(ctx, CandidateInput{
			Name:      name,
			Party:     row.Party,
			Region:    row.Region,
			BirthYear: row.BirthYear,
		})
		if err != nil {
			fail(name, err)
			continue
		}
		if !created && pol.BirthYear == nil && row.BirthYear != nil && model.ValidBirthYear(*row.BirthYear) {
			if err := e.store.UpdatePolitician(ctx, pol.ID, model.PoliticianPatch{BirthYear: row.BirthYear}); err != nil {
				zap.L().Warn("ingest: fill birth year", zap.String("politician_id", pol.ID), zap.Error(err))
			}
		}

		result := model.ResultNotElected
		if row.Elected {
			result = model.ResultElected
		}
		action, err := e.upsertParticipation(ctx, pol.ID, election.ID, func(pe *model.Participation, isNew bool) {
			pe.Votes = row.Votes
			pe.ElectionResult = result
			pe.Verified = true
			pe.SourceNote = req.DataSource
			if isNew {
				pe.Position = req.ElectionType
				pe.ElectionType = electionType
				pe.Region = strings.TrimSpace(row.Region)
				pe.CandidateStatus = model.CandidateConfirmed
			}
		})
		if err != nil {
			fail(name, err)
			continue
		}
		if action == ActionUpdated {
			report.Skipped++
			continue
		}
		report.Success++
		report.ImportedNames = append(report.ImportedNames, name)
	}

	if len(report.Errors) > maxReportedErrors {
		report.Errors = report.Errors[:maxReportedErrors]
	}
	zap.L().Info("ingest: batch import finished",
		zap.Int("year", req.ElectionYear),
		zap.Int("success", report.Success),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	e.changed()
	return report, nil
}
