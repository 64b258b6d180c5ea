package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-tracker/internal/db"
	"github.com/sells-group/policy-tracker/internal/model"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	*sqlStore
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Statements are named by their own text so pgx picks them up when the
	// same query is issued.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for _, q := range hotQueries {
			sql := rebind(q)
			if _, err := conn.Prepare(ctx, sql, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %.40s", sql)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	s := newPostgresStore(pool)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{sqlStore: newSQLStore(pgConn{pool: pool}, "postgres"), pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS elections (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	short_name     TEXT NOT NULL DEFAULT '',
	start_date     DATE NOT NULL,
	end_date       DATE NOT NULL,
	election_date  DATE NOT NULL,
	election_types JSONB NOT NULL DEFAULT '[]',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_elections_date ON elections(election_date);

CREATE TABLE IF NOT EXISTS politicians (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	party            TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'potential',
	position         TEXT NOT NULL DEFAULT '',
	current_position TEXT NOT NULL DEFAULT '',
	region           TEXT NOT NULL DEFAULT '',
	sub_region       TEXT NOT NULL DEFAULT '',
	village          TEXT NOT NULL DEFAULT '',
	bio              TEXT NOT NULL DEFAULT '',
	education        JSONB NOT NULL DEFAULT '[]',
	experience       JSONB NOT NULL DEFAULT '[]',
	education_level  TEXT NOT NULL DEFAULT '',
	birth_year       INTEGER,
	avatar_url       TEXT NOT NULL DEFAULT '',
	slogan           TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_politicians_name ON politicians(name);

CREATE TABLE IF NOT EXISTS politician_elections (
	id               TEXT PRIMARY KEY,
	politician_id    TEXT NOT NULL REFERENCES politicians(id) ON DELETE CASCADE,
	election_id      TEXT NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
	position         TEXT NOT NULL DEFAULT '',
	slogan           TEXT NOT NULL DEFAULT '',
	election_type    TEXT NOT NULL DEFAULT '',
	region           TEXT NOT NULL DEFAULT '',
	candidate_status TEXT NOT NULL DEFAULT 'rumored',
	source_note      TEXT NOT NULL DEFAULT '',
	votes            INTEGER,
	election_result  TEXT NOT NULL DEFAULT '',
	verified         BOOLEAN NOT NULL DEFAULT false,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_politician_elections_pair ON politician_elections(politician_id, election_id);
CREATE INDEX IF NOT EXISTS idx_politician_elections_election ON politician_elections(election_id);

CREATE TABLE IF NOT EXISTS policies (
	id                 TEXT PRIMARY KEY,
	politician_id      TEXT NOT NULL REFERENCES politicians(id) ON DELETE CASCADE,
	election_id        TEXT REFERENCES elections(id) ON DELETE SET NULL,
	title              TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '其他',
	status             TEXT NOT NULL DEFAULT 'Campaign Pledge',
	proposed_date      DATE NOT NULL,
	last_updated       DATE NOT NULL,
	progress           INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	tags               JSONB NOT NULL DEFAULT '[]',
	source_url         TEXT NOT NULL DEFAULT '',
	ai_analysis        TEXT NOT NULL DEFAULT '',
	support_count      INTEGER NOT NULL DEFAULT 0,
	ai_extracted       BOOLEAN NOT NULL DEFAULT false,
	ai_confidence      DOUBLE PRECISION,
	related_policy_ids JSONB NOT NULL DEFAULT '[]',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_policies_politician ON policies(politician_id);

CREATE TABLE IF NOT EXISTS tracking_logs (
	id           TEXT PRIMARY KEY,
	policy_id    TEXT NOT NULL REFERENCES policies(id) ON DELETE CASCADE,
	log_date     DATE NOT NULL,
	event        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	source_url   TEXT NOT NULL DEFAULT '',
	source_name  TEXT NOT NULL DEFAULT '',
	ai_extracted BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tracking_logs_policy ON tracking_logs(policy_id, log_date DESC);

CREATE TABLE IF NOT EXISTS policy_sources (
	id             TEXT PRIMARY KEY,
	policy_id      TEXT NOT NULL REFERENCES policies(id) ON DELETE CASCADE,
	url            TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	source_name    TEXT NOT NULL DEFAULT '',
	published_date DATE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (policy_id, url)
);

CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	task_type       TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	priority        INTEGER NOT NULL DEFAULT 5,
	parameters      JSONB NOT NULL DEFAULT '{}',
	region          TEXT NOT NULL DEFAULT '',
	prompt_template TEXT NOT NULL DEFAULT '',
	election_id     TEXT REFERENCES elections(id) ON DELETE SET NULL,
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
	requires_review BOOLEAN NOT NULL DEFAULT false,
	result_summary  TEXT NOT NULL DEFAULT '',
	result_data     JSONB,
	error_message   TEXT NOT NULL DEFAULT '',
	created_by      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_tasks_creator_created ON tasks(created_by, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_type_region_created ON tasks(task_type, region, created_at);

CREATE TABLE IF NOT EXISTS usage_logs (
	id                    TEXT PRIMARY KEY,
	user_id               TEXT NOT NULL DEFAULT '',
	ip_address            TEXT NOT NULL DEFAULT '',
	function_type         TEXT NOT NULL,
	input_text            TEXT NOT NULL DEFAULT '',
	input_url             TEXT NOT NULL DEFAULT '',
	input_tokens          INTEGER NOT NULL DEFAULT 0,
	output_tokens         INTEGER NOT NULL DEFAULT 0,
	estimated_cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
	success               BOOLEAN NOT NULL DEFAULT false,
	confidence            DOUBLE PRECISION,
	result                JSONB,
	politician_id         TEXT,
	is_contributed        BOOLEAN NOT NULL DEFAULT false,
	contributed_policy_id TEXT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_logs_user ON usage_logs(function_type, user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_logs_ip ON usage_logs(function_type, ip_address, created_at);

CREATE TABLE IF NOT EXISTS user_profiles (
	id       TEXT PRIMARY KEY,
	is_admin BOOLEAN NOT NULL DEFAULT false
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	_, err := s.EnsurePairIndex(ctx)
	return err
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// AddPolicySources copies the batch in one round trip and lets the unique
// key drop URLs the policy already has.
func (s *PostgresStore) AddPolicySources(ctx context.Context, policyID string, sources []model.PolicySource) (int, error) {
	now := s.now()
	rows := make([][]any, 0, len(sources))
	for i := range sources {
		src := &sources[i]
		prepareSource(src, policyID, now)
		rows = append(rows, []any{src.ID, src.PolicyID, src.URL, src.Title, src.SourceName, utcPtr(src.PublishedDate), src.CreatedAt})
	}
	n, err := db.Upsert(ctx, s.pool, db.Batch{
		Table:        "policy_sources",
		Columns:      strings.Split(sourceColumns, ", "),
		ConflictKeys: []string{"policy_id", "url"},
		SkipExisting: true,
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: add sources for %s", policyID)
	}
	return int(n), nil
}

type pgConn struct {
	pool db.Pool
}

func (c pgConn) exec(ctx context.Context, q string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c pgConn) query(ctx context.Context, q string, args ...any) (rows, error) {
	return c.pool.Query(ctx, rebind(q), args...)
}

func (c pgConn) queryRow(ctx context.Context, q string, args ...any) row {
	return c.pool.QueryRow(ctx, rebind(q), args...)
}

// rebind rewrites ? placeholders to $1, $2, ...
func rebind(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] != '?' {
			b.WriteByte(q[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
