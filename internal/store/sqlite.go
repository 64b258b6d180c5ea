package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	*sqlStore
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// Times are written in SQLite's own layout so range filters compare
	// as text.
	if !strings.Contains(dsn, "_time_format=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; conditional updates rely on it.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{sqlStore: newSQLStore(sqliteConn{db: db}, "sqlite"), db: db}, nil
}

// DB exposes the handle for maintenance tasks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS elections (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	short_name     TEXT NOT NULL DEFAULT '',
	start_date     DATE NOT NULL,
	end_date       DATE NOT NULL,
	election_date  DATE NOT NULL,
	election_types TEXT NOT NULL DEFAULT '[]',
	created_at     DATETIME NOT NULL
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
	education        TEXT NOT NULL DEFAULT '[]',
	experience       TEXT NOT NULL DEFAULT '[]',
	education_level  TEXT NOT NULL DEFAULT '',
	birth_year       INTEGER,
	avatar_url       TEXT NOT NULL DEFAULT '',
	slogan           TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
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
	verified         BOOLEAN NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
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
	tags               TEXT NOT NULL DEFAULT '[]',
	source_url         TEXT NOT NULL DEFAULT '',
	ai_analysis        TEXT NOT NULL DEFAULT '',
	support_count      INTEGER NOT NULL DEFAULT 0,
	ai_extracted       BOOLEAN NOT NULL DEFAULT 0,
	ai_confidence      REAL,
	related_policy_ids TEXT NOT NULL DEFAULT '[]',
	created_at         DATETIME NOT NULL
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
	ai_extracted BOOLEAN NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tracking_logs_policy ON tracking_logs(policy_id, log_date);

CREATE TABLE IF NOT EXISTS policy_sources (
	id             TEXT PRIMARY KEY,
	policy_id      TEXT NOT NULL REFERENCES policies(id) ON DELETE CASCADE,
	url            TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	source_name    TEXT NOT NULL DEFAULT '',
	published_date DATE,
	created_at     DATETIME NOT NULL,
	UNIQUE (policy_id, url)
);

CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	task_type       TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	priority        INTEGER NOT NULL DEFAULT 5,
	parameters      TEXT NOT NULL DEFAULT '{}',
	region          TEXT NOT NULL DEFAULT '',
	prompt_template TEXT NOT NULL DEFAULT '',
	election_id     TEXT REFERENCES elections(id) ON DELETE SET NULL,
	confidence      REAL NOT NULL DEFAULT 0,
	requires_review BOOLEAN NOT NULL DEFAULT 0,
	result_summary  TEXT NOT NULL DEFAULT '',
	result_data     TEXT,
	error_message   TEXT NOT NULL DEFAULT '',
	created_by      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	completed_at    DATETIME
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
	estimated_cost        REAL NOT NULL DEFAULT 0,
	success               BOOLEAN NOT NULL DEFAULT 0,
	confidence            REAL,
	result                TEXT,
	politician_id         TEXT,
	is_contributed        BOOLEAN NOT NULL DEFAULT 0,
	contributed_policy_id TEXT,
	created_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_logs_user ON usage_logs(function_type, user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_logs_ip ON usage_logs(function_type, ip_address, created_at);

CREATE TABLE IF NOT EXISTS user_profiles (
	id       TEXT PRIMARY KEY,
	is_admin BOOLEAN NOT NULL DEFAULT 0
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	_, err := s.EnsurePairIndex(ctx)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteConn struct {
	db *sql.DB
}

func (c sqliteConn) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c sqliteConn) query(ctx context.Context, q string, args ...any) (rows, error) {
	rs, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rs}, nil
}

func (c sqliteConn) queryRow(ctx context.Context, q string, args ...any) row {
	return c.db.QueryRowContext(ctx, q, args...)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	r.Rows.Close() //nolint:errcheck
}
