package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Batch describes a bulk insert into Table keyed by ConflictKeys.
type Batch struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	// UpdateCols are overwritten on conflict. Empty with SkipExisting
	// false means every non-key column.
	UpdateCols []string
	// SkipExisting leaves conflicting rows untouched.
	SkipExisting bool
}

func (b Batch) validate() error {
	if len(b.Columns) == 0 {
		return eris.New("db: batch: no columns")
	}
	if len(b.ConflictKeys) == 0 {
		return eris.New("db: batch: no conflict keys")
	}
	return nil
}

func (b Batch) conflictAction() string {
	if b.SkipExisting {
		return "DO NOTHING"
	}
	cols := b.UpdateCols
	if len(cols) == 0 {
		keys := make(map[string]bool, len(b.ConflictKeys))
		for _, k := range b.ConflictKeys {
			keys[k] = true
		}
		for _, c := range b.Columns {
			if !keys[c] {
				cols = append(cols, c)
			}
		}
	}
	if len(cols) == 0 {
		return "DO NOTHING"
	}
	set := make([]string, len(cols))
	for i, c := range cols {
		id := pgx.Identifier{c}.Sanitize()
		set[i] = id + " = EXCLUDED." + id
	}
	return "DO UPDATE SET " + strings.Join(set, ", ")
}

// Upsert copies rows into a transaction-scoped temp table and merges them
// into the target with INSERT ... ON CONFLICT. It returns the number of
// rows written to the target.
func Upsert(ctx context.Context, pool Pool, b Batch, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := b.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: batch: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tmp := "_tmp_" + strings.ReplaceAll(b.Table, ".", "_")
	tmpIdent := pgx.Identifier{tmp}.Sanitize()
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", tmpIdent, tableIdent(b.Table))
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: batch: temp table for %s", b.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tmp}, b.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: batch: copy into %s", tmp)
	}

	cols := columnList(b.Columns)
	merge := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		tableIdent(b.Table), cols, cols, tmpIdent, columnList(b.ConflictKeys), b.conflictAction())
	tag, err := tx.Exec(ctx, merge)
	if err != nil {
		return 0, eris.Wrapf(err, "db: batch: merge into %s", b.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: batch: commit")
	}
	return tag.RowsAffected(), nil
}

func tableIdent(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}

func columnList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(out, ", ")
}
