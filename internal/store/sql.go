package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/model"
)

type row interface {
	Scan(dest ...any) error
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// conn is the driver-neutral surface sqlStore runs on. Queries are
// written with ? placeholders.
type conn interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rows, error)
	queryRow(ctx context.Context, query string, args ...any) row
}

// sqlStore implements Store on top of a conn. PostgresStore and SQLiteStore
// embed it and override what their engine does better.
type sqlStore struct {
	c    conn
	name string
	now  func() time.Time
}

func newSQLStore(c conn, name string) *sqlStore {
	return &sqlStore{c: c, name: name, now: func() time.Time { return time.Now().UTC() }}
}

func (s *sqlStore) wrap(err error, msg string) error {
	return eris.Wrap(err, s.name+": "+msg)
}

func (s *sqlStore) wrapf(err error, format string, args ...any) error {
	return eris.Wrapf(err, s.name+": "+format, args...)
}

const (
	electionColumns      = `id, name, short_name, start_date, end_date, election_date, election_types, created_at`
	politicianColumns    = `id, name, party, status, position, current_position, region, sub_region, village, bio, education, experience, education_level, birth_year, avatar_url, slogan, created_at, updated_at`
	participationColumns = `id, politician_id, election_id, position, slogan, election_type, region, candidate_status, source_note, votes, election_result, verified, created_at, updated_at`
	policyColumns        = `id, politician_id, election_id, title, description, category, status, proposed_date, last_updated, progress, tags, source_url, ai_analysis, support_count, ai_extracted, ai_confidence, related_policy_ids, created_at`
	trackingLogColumns   = `id, policy_id, log_date, event, description, source_url, source_name, ai_extracted, created_at`
	sourceColumns        = `id, policy_id, url, title, source_name, published_date, created_at`
	taskColumns          = `id, task_type, status, priority, parameters, region, prompt_template, election_id, confidence, requires_review, result_summary, result_data, error_message, created_by, created_at, updated_at, completed_at`
	usageColumns         = `id, user_id, ip_address, function_type, input_text, input_url, input_tokens, output_tokens, estimated_cost, success, confidence, result, politician_id, is_contributed, contributed_policy_id, created_at`
)

// Frequently executed lookups. The postgres backend prepares these on
// every new connection.
const (
	qGetTask         = `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	qCountTasksSince = `SELECT COUNT(*) FROM tasks WHERE created_by = ? AND created_at >= ?`
	qGetPolitician   = `SELECT ` + politicianColumns + ` FROM politicians WHERE id = ?`
	qPoliticianNamed = `SELECT ` + politicianColumns + ` FROM politicians WHERE name = ? ORDER BY created_at, id`
	qGetUsageLog     = `SELECT ` + usageColumns + ` FROM usage_logs WHERE id = ?`
	qIsAdmin         = `SELECT is_admin FROM user_profiles WHERE id = ?`
)

var hotQueries = []string{qGetTask, qCountTasksSince, qGetPolitician, qPoliticianNamed, qGetUsageLog, qIsAdmin}

// --- Elections ---

func (s *sqlStore) ListElections(ctx context.Context) ([]model.Election, error) {
	rs, err := s.c.query(ctx, `SELECT `+electionColumns+` FROM elections ORDER BY election_date DESC, created_at`)
	if err != nil {
		return nil, s.wrap(err, "list elections")
	}
	return collect(rs, scanElection, s.wrap, "elections")
}

func (s *sqlStore) ElectionsInYear(ctx context.Context, year int) ([]model.Election, error) {
	from, to := yearRange(year)
	rs, err := s.c.query(ctx,
		`SELECT `+electionColumns+` FROM elections WHERE election_date >= ? AND election_date < ? ORDER BY election_date, created_at`,
		from, to,
	)
	if err != nil {
		return nil, s.wrapf(err, "elections in %d", year)
	}
	return collect(rs, scanElection, s.wrap, "elections")
}

func (s *sqlStore) CreateElection(ctx context.Context, e *model.Election) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = s.now()
	_, err := s.c.exec(ctx,
		`INSERT INTO elections (`+electionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.ShortName, e.StartDate.UTC(), e.EndDate.UTC(), e.ElectionDate.UTC(), encodeList(e.Types), e.CreatedAt,
	)
	return s.wrap(err, "insert election")
}

func scanElection(r row) (model.Election, error) {
	var e model.Election
	var types []byte
	if err := r.Scan(&e.ID, &e.Name, &e.ShortName, &e.StartDate, &e.EndDate, &e.ElectionDate, &types, &e.CreatedAt); err != nil {
		return e, err
	}
	return e, decodeList(types, &e.Types)
}

// --- Politicians ---

func (s *sqlStore) GetPolitician(ctx context.Context, id string) (*model.Politician, error) {
	p, err := scanPolitician(s.c.queryRow(ctx, qGetPolitician, id))
	if err != nil {
		return nil, s.notFound(err, "get politician %s", id)
	}
	return &p, nil
}

func (s *sqlStore) PoliticiansByName(ctx context.Context, name string, exact bool) ([]model.Politician, error) {
	var (
		rs  rows
		err error
	)
	if exact {
		rs, err = s.c.query(ctx, qPoliticianNamed, strings.TrimSpace(name))
	} else {
		rs, err = s.c.query(ctx,
			`SELECT `+politicianColumns+` FROM politicians WHERE LOWER(name) LIKE ? ORDER BY created_at, id`,
			likePattern(name),
		)
	}
	if err != nil {
		return nil, s.wrapf(err, "politicians named %q", name)
	}
	return collect(rs, scanPolitician, s.wrap, "politicians")
}

func (s *sqlStore) ListPoliticians(ctx context.Context) ([]model.Politician, error) {
	rs, err := s.c.query(ctx, `SELECT `+politicianColumns+` FROM politicians ORDER BY name, id`)
	if err != nil {
		return nil, s.wrap(err, "list politicians")
	}
	return collect(rs, scanPolitician, s.wrap, "politicians")
}

func (s *sqlStore) CreatePolitician(ctx context.Context, p *model.Politician) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = model.PoliticianPotential
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.c.exec(ctx,
		`INSERT INTO politicians (`+politicianColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Party, string(p.Status), p.Position, p.CurrentPosition, p.Region, p.SubRegion, p.Village,
		p.Bio, encodeList(p.Education), encodeList(p.Experience), p.EducationLevel, p.BirthYear, p.AvatarURL, p.Slogan,
		p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return s.wrapf(ErrConflict, "politician %s", p.ID)
	}
	return s.wrapf(err, "insert politician %s", p.Name)
}

func (s *sqlStore) UpdatePolitician(ctx context.Context, id string, patch model.PoliticianPatch) error {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Bio != nil {
		set("bio", *patch.Bio)
	}
	if patch.Experience != nil {
		set("experience", encodeList(patch.Experience))
	}
	if patch.Education != nil {
		set("education", encodeList(patch.Education))
	}
	if patch.EducationLevel != nil {
		set("education_level", *patch.EducationLevel)
	}
	if patch.BirthYear != nil {
		set("birth_year", *patch.BirthYear)
	}
	if patch.AvatarURL != nil {
		set("avatar_url", *patch.AvatarURL)
	}
	if patch.Slogan != nil {
		set("slogan", *patch.Slogan)
	}
	if patch.CurrentPosition != nil {
		set("current_position", *patch.CurrentPosition)
	}
	if len(sets) == 0 {
		return nil
	}
	set("updated_at", s.now())
	args = append(args, id)

	n, err := s.c.exec(ctx, `UPDATE politicians SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return s.wrapf(err, "update politician %s", id)
	}
	if n == 0 {
		return s.wrapf(ErrNotFound, "politician %s", id)
	}
	return nil
}

func scanPolitician(r row) (model.Politician, error) {
	var p model.Politician
	var edu, exp []byte
	var status string
	err := r.Scan(&p.ID, &p.Name, &p.Party, &status, &p.Position, &p.CurrentPosition, &p.Region, &p.SubRegion,
		&p.Village, &p.Bio, &edu, &exp, &p.EducationLevel, &p.BirthYear, &p.AvatarURL, &p.Slogan,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Status = model.PoliticianStatus(status)
	if err := decodeList(edu, &p.Education); err != nil {
		return p, err
	}
	return p, decodeList(exp, &p.Experience)
}

// --- Participations ---

func (s *sqlStore) GetParticipation(ctx context.Context, politicianID, electionID string) (*model.Participation, error) {
	pe, err := scanParticipation(s.c.queryRow(ctx,
		`SELECT `+participationColumns+` FROM politician_elections WHERE politician_id = ? AND election_id = ? ORDER BY created_at, id LIMIT 1`,
		politicianID, electionID,
	))
	if err != nil {
		return nil, s.notFound(err, "get participation %s/%s", politicianID, electionID)
	}
	return &pe, nil
}

func (s *sqlStore) CreateParticipation(ctx context.Context, pe *model.Participation) error {
	if pe.ID == "" {
		pe.ID = uuid.New().String()
	}
	if pe.CandidateStatus == "" {
		pe.CandidateStatus = model.CandidateRumored
	}
	now := s.now()
	pe.CreatedAt, pe.UpdatedAt = now, now
	_, err := s.c.exec(ctx,
		`INSERT INTO politician_elections (`+participationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pe.ID, pe.PoliticianID, pe.ElectionID, pe.Position, pe.Slogan, pe.ElectionType, pe.Region,
		string(pe.CandidateStatus), pe.SourceNote, pe.Votes, string(pe.ElectionResult), pe.Verified,
		pe.CreatedAt, pe.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return s.wrapf(ErrConflict, "participation %s/%s", pe.PoliticianID, pe.ElectionID)
	}
	return s.wrap(err, "insert participation")
}

func (s *sqlStore) UpdateParticipation(ctx context.Context, pe *model.Participation) error {
	pe.UpdatedAt = s.now()
	n, err := s.c.exec(ctx,
		`UPDATE politician_elections SET position = ?, slogan = ?, election_type = ?, region = ?, candidate_status = ?,
			source_note = ?, votes = ?, election_result = ?, verified = ?, updated_at = ? WHERE id = ?`,
		pe.Position, pe.Slogan, pe.ElectionType, pe.Region, string(pe.CandidateStatus),
		pe.SourceNote, pe.Votes, string(pe.ElectionResult), pe.Verified, pe.UpdatedAt, pe.ID,
	)
	if err != nil {
		return s.wrapf(err, "update participation %s", pe.ID)
	}
	if n == 0 {
		return s.wrapf(ErrNotFound, "participation %s", pe.ID)
	}
	return nil
}

// ListCandidates returns one row per politician with a participation
// matching the filter, carrying the earliest matching participation.
func (s *sqlStore) ListCandidates(ctx context.Context, f CandidateFilter) ([]model.CandidateRow, error) {
	q := `SELECT p.id, p.name, p.party, p.position, p.region, p.current_position, pe.candidate_status, pe.verified, pe.election_id
		FROM politicians p
		JOIN politician_elections pe ON pe.politician_id = p.id
		JOIN elections e ON e.id = pe.election_id
		WHERE 1 = 1`
	var args []any
	if f.Year > 0 {
		from, to := yearRange(f.Year)
		q += ` AND e.election_date >= ? AND e.election_date < ?`
		args = append(args, from, to)
	}
	if f.Region != "" {
		q += ` AND LOWER(p.region) LIKE ?`
		args = append(args, likePattern(f.Region))
	}
	if f.Position != "" {
		q += ` AND LOWER(p.position) LIKE ?`
		args = append(args, likePattern(f.Position))
	}
	if f.Name != "" {
		q += ` AND LOWER(p.name) LIKE ?`
		args = append(args, likePattern(f.Name))
	}
	q += ` ORDER BY p.created_at, p.id, pe.created_at`

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	rs, err := s.c.query(ctx, q, args...)
	if err != nil {
		return nil, s.wrap(err, "list candidates")
	}
	defer rs.Close()

	seen := make(map[string]bool)
	out := []model.CandidateRow{}
	for rs.Next() && len(out) < limit {
		var c model.CandidateRow
		var status string
		if err := rs.Scan(&c.ID, &c.Name, &c.Party, &c.Position, &c.Region, &c.CurrentPosition, &status, &c.Verified, &c.ElectionID); err != nil {
			return nil, s.wrap(err, "scan candidate")
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		c.CandidateStatus = model.CandidateStatus(status)
		out = append(out, c)
	}
	return out, s.wrap(rs.Err(), "list candidates iterate")
}

func (s *sqlStore) ParticipationsInYear(ctx context.Context, year int) ([]ParticipationRecord, error) {
	from, to := yearRange(year)
	cols := "pe." + strings.ReplaceAll(participationColumns, ", ", ", pe.")
	rs, err := s.c.query(ctx,
		`SELECT `+cols+`, p.name, p.region
		FROM politician_elections pe
		JOIN elections e ON e.id = pe.election_id
		JOIN politicians p ON p.id = pe.politician_id
		WHERE e.election_date >= ? AND e.election_date < ?
		ORDER BY pe.politician_id, pe.election_id, pe.created_at, pe.id`,
		from, to,
	)
	if err != nil {
		return nil, s.wrapf(err, "participations in %d", year)
	}
	return collect(rs, func(r row) (ParticipationRecord, error) {
		var rec ParticipationRecord
		var status, result string
		pe := &rec.Participation
		err := r.Scan(&pe.ID, &pe.PoliticianID, &pe.ElectionID, &pe.Position, &pe.Slogan, &pe.ElectionType,
			&pe.Region, &status, &pe.SourceNote, &pe.Votes, &result, &pe.Verified, &pe.CreatedAt, &pe.UpdatedAt,
			&rec.PoliticianName, &rec.PoliticianRegion)
		pe.CandidateStatus = model.CandidateStatus(status)
		pe.ElectionResult = model.ElectionResult(result)
		return rec, err
	}, s.wrap, "participations")
}

func (s *sqlStore) DeleteParticipations(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	n, err := s.c.exec(ctx, `DELETE FROM politician_elections WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, s.wrap(err, "delete participations")
	}
	return int(n), nil
}

const (
	qDuplicatePairs = `SELECT COUNT(*) FROM (
		SELECT politician_id FROM politician_elections
		GROUP BY politician_id, election_id HAVING COUNT(*) > 1
	) dup`
	pairIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS uq_politician_elections_pair ON politician_elections(politician_id, election_id)`
)

// EnsurePairIndex builds the unique (politician, election) index. While
// duplicate pairs remain it leaves the table alone and reports false, so a
// database holding legacy duplicates still migrates and can be deduplicated.
func (s *sqlStore) EnsurePairIndex(ctx context.Context) (bool, error) {
	var dups int
	if err := s.c.queryRow(ctx, qDuplicatePairs).Scan(&dups); err != nil {
		return false, s.wrap(err, "count duplicate participations")
	}
	if dups > 0 {
		zap.L().Warn(s.name+": unique participation index deferred until duplicates are removed",
			zap.Int("duplicate_pairs", dups))
		return false, nil
	}
	if _, err := s.c.exec(ctx, pairIndexDDL); err != nil {
		return false, s.wrap(err, "create participation pair index")
	}
	return true, nil
}

func scanParticipation(r row) (model.Participation, error) {
	var pe model.Participation
	var status, result string
	err := r.Scan(&pe.ID, &pe.PoliticianID, &pe.ElectionID, &pe.Position, &pe.Slogan, &pe.ElectionType,
		&pe.Region, &status, &pe.SourceNote, &pe.Votes, &result, &pe.Verified, &pe.CreatedAt, &pe.UpdatedAt)
	pe.CandidateStatus = model.CandidateStatus(status)
	pe.ElectionResult = model.ElectionResult(result)
	return pe, err
}

// --- Policies ---

func (s *sqlStore) GetPolicy(ctx context.Context, id string) (*model.Policy, error) {
	p, err := scanPolicy(s.c.queryRow(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, id))
	if err != nil {
		return nil, s.notFound(err, "get policy %s", id)
	}
	return &p, nil
}

// FindPolicy returns the oldest policy of a politician whose title equals
// title (exact, case-insensitive) or contains it.
func (s *sqlStore) FindPolicy(ctx context.Context, politicianID, title string, exact bool) (*model.Policy, error) {
	cond, arg := `LOWER(title) LIKE ?`, likePattern(title)
	if exact {
		cond, arg = `LOWER(title) = ?`, strings.ToLower(strings.TrimSpace(title))
	}
	p, err := scanPolicy(s.c.queryRow(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE politician_id = ? AND `+cond+` ORDER BY created_at, id LIMIT 1`,
		politicianID, arg,
	))
	if err != nil {
		return nil, s.notFound(err, "find policy %q", title)
	}
	return &p, nil
}

func (s *sqlStore) CreatePolicy(ctx context.Context, p *model.Policy) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = s.now()
	_, err := s.c.exec(ctx,
		`INSERT INTO policies (`+policyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PoliticianID, p.ElectionID, p.Title, p.Description, p.Category, string(p.Status),
		p.ProposedDate.UTC(), p.LastUpdated.UTC(), p.Progress, encodeList(p.Tags), p.SourceURL, p.AIAnalysis,
		p.SupportCount, p.AIExtracted, p.AIConfidence, encodeList(p.RelatedPolicyIDs), p.CreatedAt,
	)
	return s.wrapf(err, "insert policy %q", p.Title)
}

func (s *sqlStore) UpdatePolicyStatus(ctx context.Context, id string, status model.PolicyStatus, progress *int) error {
	sets := []string{"last_updated = ?"}
	args := []any{startOfDay(s.now())}
	if status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(status))
	}
	if progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *progress)
	}
	args = append(args, id)

	n, err := s.c.exec(ctx, `UPDATE policies SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return s.wrapf(err, "update policy %s", id)
	}
	if n == 0 {
		return s.wrapf(ErrNotFound, "policy %s", id)
	}
	return nil
}

func (s *sqlStore) ListPolicies(ctx context.Context, f PolicyFilter) ([]model.PolicyRow, error) {
	q := `SELECT po.id, po.title, po.description, po.category, po.status, po.progress, po.source_url, po.politician_id, p.name
		FROM policies po
		JOIN politicians p ON p.id = po.politician_id
		WHERE 1 = 1`
	var args []any
	if len(f.PoliticianIDs) > 0 {
		q += ` AND po.politician_id IN (` + placeholders(len(f.PoliticianIDs)) + `)`
		for _, id := range f.PoliticianIDs {
			args = append(args, id)
		}
	}
	if f.Category != "" {
		q += ` AND po.category = ?`
		args = append(args, f.Category)
	}
	var kw []string
	for _, k := range f.Keywords {
		if strings.TrimSpace(k) == "" {
			continue
		}
		kw = append(kw, `LOWER(po.title) LIKE ? OR LOWER(po.description) LIKE ?`)
		args = append(args, likePattern(k), likePattern(k))
	}
	if len(kw) > 0 {
		q += ` AND (` + strings.Join(kw, " OR ") + `)`
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	q += ` ORDER BY po.created_at DESC, po.id LIMIT ?`
	args = append(args, limit)

	rs, err := s.c.query(ctx, q, args...)
	if err != nil {
		return nil, s.wrap(err, "list policies")
	}
	return collect(rs, func(r row) (model.PolicyRow, error) {
		var p model.PolicyRow
		var status string
		err := r.Scan(&p.ID, &p.Title, &p.Description, &p.Category, &status, &p.Progress, &p.SourceURL, &p.PoliticianID, &p.PoliticianName)
		p.Status = model.PolicyStatus(status)
		return p, err
	}, s.wrap, "policies")
}

func (s *sqlStore) AllPolicies(ctx context.Context) ([]model.Policy, error) {
	rs, err := s.c.query(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, s.wrap(err, "all policies")
	}
	return collect(rs, scanPolicy, s.wrap, "policies")
}

func scanPolicy(r row) (model.Policy, error) {
	var p model.Policy
	var status string
	var tags, related []byte
	err := r.Scan(&p.ID, &p.PoliticianID, &p.ElectionID, &p.Title, &p.Description, &p.Category, &status,
		&p.ProposedDate, &p.LastUpdated, &p.Progress, &tags, &p.SourceURL, &p.AIAnalysis, &p.SupportCount,
		&p.AIExtracted, &p.AIConfidence, &related, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.Status = model.PolicyStatus(status)
	if err := decodeList(tags, &p.Tags); err != nil {
		return p, err
	}
	return p, decodeList(related, &p.RelatedPolicyIDs)
}

// --- Tracking logs ---

func (s *sqlStore) AddTrackingLog(ctx context.Context, l *model.TrackingLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = s.now()
	if l.Date.IsZero() {
		l.Date = startOfDay(l.CreatedAt)
	}
	_, err := s.c.exec(ctx,
		`INSERT INTO tracking_logs (`+trackingLogColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.PolicyID, l.Date.UTC(), l.Event, l.Description, l.SourceURL, l.SourceName, l.AIExtracted, l.CreatedAt,
	)
	return s.wrapf(err, "insert tracking log for %s", l.PolicyID)
}

func (s *sqlStore) TrackingLogs(ctx context.Context, policyID string) ([]model.TrackingLog, error) {
	rs, err := s.c.query(ctx,
		`SELECT `+trackingLogColumns+` FROM tracking_logs WHERE policy_id = ? ORDER BY log_date DESC, created_at DESC`,
		policyID,
	)
	if err != nil {
		return nil, s.wrapf(err, "tracking logs for %s", policyID)
	}
	return collect(rs, func(r row) (model.TrackingLog, error) {
		var l model.TrackingLog
		err := r.Scan(&l.ID, &l.PolicyID, &l.Date, &l.Event, &l.Description, &l.SourceURL, &l.SourceName, &l.AIExtracted, &l.CreatedAt)
		return l, err
	}, s.wrap, "tracking logs")
}

// --- Policy sources ---

// AddPolicySources inserts sources and skips URLs the policy already has.
func (s *sqlStore) AddPolicySources(ctx context.Context, policyID string, sources []model.PolicySource) (int, error) {
	inserted := 0
	for i := range sources {
		src := &sources[i]
		prepareSource(src, policyID, s.now())
		n, err := s.c.exec(ctx,
			`INSERT INTO policy_sources (`+sourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (policy_id, url) DO NOTHING`,
			src.ID, src.PolicyID, src.URL, src.Title, src.SourceName, utcPtr(src.PublishedDate), src.CreatedAt,
		)
		if err != nil {
			return inserted, s.wrapf(err, "insert source %s", src.URL)
		}
		inserted += int(n)
	}
	return inserted, nil
}

func prepareSource(src *model.PolicySource, policyID string, now time.Time) {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	src.PolicyID = policyID
	src.URL = strings.TrimSpace(src.URL)
	src.CreatedAt = now
}

func (s *sqlStore) ListPolicySources(ctx context.Context, policyID string, limit, offset int) ([]model.PolicySource, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if offset < 0 {
		offset = 0
	}
	rs, err := s.c.query(ctx,
		`SELECT `+sourceColumns+` FROM policy_sources WHERE policy_id = ?
		ORDER BY published_date DESC NULLS LAST, created_at DESC LIMIT ? OFFSET ?`,
		policyID, limit, offset,
	)
	if err != nil {
		return nil, s.wrapf(err, "sources for %s", policyID)
	}
	return collect(rs, func(r row) (model.PolicySource, error) {
		var src model.PolicySource
		err := r.Scan(&src.ID, &src.PolicyID, &src.URL, &src.Title, &src.SourceName, &src.PublishedDate, &src.CreatedAt)
		return src, err
	}, s.wrap, "sources")
}

// --- Tasks ---

func (s *sqlStore) CreateTask(ctx context.Context, t *model.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	params, err := json.Marshal(t.Parameters)
	if err != nil {
		return s.wrap(err, "marshal task parameters")
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err = s.c.exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Type), string(t.Status), t.Priority, string(params), t.Region, t.Prompt, t.ElectionID,
		t.Confidence, t.RequiresReview, t.ResultSummary, nullJSON(t.ResultData), t.ErrorMessage, t.CreatedBy,
		t.CreatedAt, t.UpdatedAt, utcPtr(t.CompletedAt),
	)
	return s.wrapf(err, "insert task %s", t.Type)
}

func (s *sqlStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(s.c.queryRow(ctx, qGetTask, id))
	if err != nil {
		return nil, s.notFound(err, "get task %s", id)
	}
	return &t, nil
}

// UpdateTask applies u only while the task is in one of the from states.
// It reports whether a row changed.
func (s *sqlStore) UpdateTask(ctx context.Context, id string, from []model.TaskStatus, u model.TaskUpdate) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(u.Status), s.now()}
	if u.ResultSummary != "" {
		sets = append(sets, "result_summary = ?")
		args = append(args, u.ResultSummary)
	}
	if len(u.ResultData) > 0 {
		sets = append(sets, "result_data = ?")
		args = append(args, nullJSON(u.ResultData))
	}
	if u.ErrorMessage != "" {
		sets = append(sets, "error_message = ?")
		args = append(args, u.ErrorMessage)
	}
	if u.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, u.CompletedAt.UTC())
	}
	args = append(args, id)
	for _, st := range from {
		args = append(args, string(st))
	}

	n, err := s.c.exec(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return false, s.wrapf(err, "update task %s", id)
	}
	return n > 0, nil
}

func (s *sqlStore) CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	if err := s.c.queryRow(ctx, qCountTasksSince, userID, since.UTC()).Scan(&n); err != nil {
		return 0, s.wrap(err, "count tasks")
	}
	return n, nil
}

func (s *sqlStore) HasTaskForRegionSince(ctx context.Context, taskType model.TaskType, region string, since time.Time) (bool, error) {
	var n int
	err := s.c.queryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE task_type = ? AND region = ? AND created_at >= ?`,
		string(taskType), region, since.UTC(),
	).Scan(&n)
	if err != nil {
		return false, s.wrapf(err, "tasks for region %s", region)
	}
	return n > 0, nil
}

// TaskStatusCounts counts tasks created at or after since, by status.
func (s *sqlStore) TaskStatusCounts(ctx context.Context, since time.Time) (map[model.TaskStatus]int, error) {
	rs, err := s.c.query(ctx, `SELECT status, COUNT(*) FROM tasks WHERE created_at >= ? GROUP BY status`, since.UTC())
	if err != nil {
		return nil, s.wrap(err, "task status counts")
	}
	defer rs.Close()

	out := make(map[model.TaskStatus]int)
	for rs.Next() {
		var status string
		var n int
		if err := rs.Scan(&status, &n); err != nil {
			return nil, s.wrap(err, "scan task status count")
		}
		out[model.TaskStatus(status)] = n
	}
	return out, s.wrap(rs.Err(), "task status counts")
}

// CountStaleTasks counts open tasks that have not moved since updatedBefore.
func (s *sqlStore) CountStaleTasks(ctx context.Context, updatedBefore time.Time) (int, error) {
	var n int
	err := s.c.queryRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status IN (?, ?, ?) AND updated_at < ?`,
		string(model.TaskPending), string(model.TaskScheduled), string(model.TaskProcessing), updatedBefore.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, s.wrap(err, "count stale tasks")
	}
	return n, nil
}

func scanTask(r row) (model.Task, error) {
	var t model.Task
	var typ, status string
	var params, data []byte
	err := r.Scan(&t.ID, &typ, &status, &t.Priority, &params, &t.Region, &t.Prompt, &t.ElectionID,
		&t.Confidence, &t.RequiresReview, &t.ResultSummary, &data, &t.ErrorMessage, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		return t, err
	}
	t.Type = model.TaskType(typ)
	t.Status = model.TaskStatus(status)
	if len(data) > 0 {
		t.ResultData = json.RawMessage(data)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.Parameters); err != nil {
			return t, eris.Wrap(err, "unmarshal task parameters")
		}
	}
	return t, nil
}

// --- Usage logs ---

func (s *sqlStore) CreateUsageLog(ctx context.Context, l *model.UsageLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = s.now()
	_, err := s.c.exec(ctx,
		`INSERT INTO usage_logs (`+usageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.IPAddress, string(l.FunctionType), l.InputText, l.InputURL, l.InputTokens, l.OutputTokens,
		l.EstimatedCost, l.Success, l.Confidence, nullJSON(l.Result), l.PoliticianID, l.IsContributed,
		l.ContributedPolicyID, l.CreatedAt,
	)
	return s.wrapf(err, "insert usage log %s", l.FunctionType)
}

func (s *sqlStore) GetUsageLog(ctx context.Context, id string) (*model.UsageLog, error) {
	var l model.UsageLog
	var fn string
	var result []byte
	err := s.c.queryRow(ctx, qGetUsageLog, id).Scan(&l.ID, &l.UserID, &l.IPAddress, &fn, &l.InputText, &l.InputURL,
		&l.InputTokens, &l.OutputTokens, &l.EstimatedCost, &l.Success, &l.Confidence, &result, &l.PoliticianID,
		&l.IsContributed, &l.ContributedPolicyID, &l.CreatedAt)
	if err != nil {
		return nil, s.notFound(err, "get usage log %s", id)
	}
	l.FunctionType = model.FunctionType(fn)
	if len(result) > 0 {
		l.Result = json.RawMessage(result)
	}
	return &l, nil
}

func (s *sqlStore) CountUsageSince(ctx context.Context, f model.UsageFilter) (int, error) {
	q := `SELECT COUNT(*) FROM usage_logs WHERE created_at >= ?`
	args := []any{f.Since.UTC()}
	if f.FunctionType != "" {
		q += ` AND function_type = ?`
		args = append(args, string(f.FunctionType))
	}
	if f.UserID != "" {
		q += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.IPAddress != "" {
		q += ` AND ip_address = ?`
		args = append(args, f.IPAddress)
	}
	var n int
	if err := s.c.queryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, s.wrap(err, "count usage")
	}
	return n, nil
}

func (s *sqlStore) UsageTotalsSince(ctx context.Context, since time.Time) (UsageTotals, error) {
	var t UsageTotals
	err := s.c.queryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0),
		        COALESCE(SUM(input_tokens + output_tokens), 0),
		        COALESCE(SUM(estimated_cost), 0)
		   FROM usage_logs WHERE created_at >= ?`,
		since.UTC(),
	).Scan(&t.Calls, &t.Failures, &t.Tokens, &t.EstimatedUSD)
	if err != nil {
		return t, s.wrap(err, "usage totals")
	}
	return t, nil
}

// ClaimContribution marks a log as contributed unless it already is. It
// reports whether this call won the claim.
func (s *sqlStore) ClaimContribution(ctx context.Context, logID string) (bool, error) {
	n, err := s.c.exec(ctx,
		`UPDATE usage_logs SET is_contributed = ? WHERE id = ? AND is_contributed = ?`,
		true, logID, false,
	)
	if err != nil {
		return false, s.wrapf(err, "claim usage log %s", logID)
	}
	return n == 1, nil
}

func (s *sqlStore) ReleaseContribution(ctx context.Context, logID string) error {
	_, err := s.c.exec(ctx,
		`UPDATE usage_logs SET is_contributed = ?, contributed_policy_id = NULL WHERE id = ?`,
		false, logID,
	)
	return s.wrapf(err, "release usage log %s", logID)
}

func (s *sqlStore) LinkContribution(ctx context.Context, logID, policyID string) error {
	n, err := s.c.exec(ctx, `UPDATE usage_logs SET contributed_policy_id = ? WHERE id = ?`, policyID, logID)
	if err != nil {
		return s.wrapf(err, "link usage log %s", logID)
	}
	if n == 0 {
		return s.wrapf(ErrNotFound, "usage log %s", logID)
	}
	return nil
}

// --- Users ---

func (s *sqlStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var admin bool
	err := s.c.queryRow(ctx, qIsAdmin, userID).Scan(&admin)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, s.wrapf(err, "profile %s", userID)
	}
	return admin, nil
}

func (s *sqlStore) SetAdmin(ctx context.Context, userID string, admin bool) error {
	_, err := s.c.exec(ctx,
		`INSERT INTO user_profiles (id, is_admin) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET is_admin = excluded.is_admin`,
		userID, admin,
	)
	return s.wrapf(err, "set admin %s", userID)
}

// --- helpers ---

// notFound maps a no-rows scan error onto ErrNotFound.
func (s *sqlStore) notFound(err error, format string, args ...any) error {
	if isNoRows(err) {
		return s.wrapf(ErrNotFound, format, args...)
	}
	return s.wrapf(err, format, args...)
}

func collect[T any](rs rows, scan func(row) (T, error), wrap func(error, string) error, what string) ([]T, error) {
	defer rs.Close()
	out := []T{}
	for rs.Next() {
		v, err := scan(rs)
		if err != nil {
			return nil, wrap(err, "scan "+what)
		}
		out = append(out, v)
	}
	return out, wrap(rs.Err(), "iterate "+what)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func encodeList(v []string) string {
	if v == nil {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeList(b []byte, dst *[]string) error {
	if len(b) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return eris.Wrap(err, "decode list")
	}
	if len(out) > 0 {
		*dst = out
	}
	return nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func likePattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}

func yearRange(year int) (time.Time, time.Time) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
