package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes one bulk upsert target.
type UpsertConfig struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	// UpdateCols limits which columns the conflict branch rewrites.
	// Nil means every non-key column.
	UpdateCols []string
}

func (cfg UpsertConfig) updateColumns() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	keys := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		keys[k] = true
	}
	var out []string
	for _, c := range cfg.Columns {
		if !keys[c] {
			out = append(out, c)
		}
	}
	return out
}

// BulkUpsert inserts rows through a session temp table: COPY the batch in,
// then INSERT ... ON CONFLICT from the temp table into the target. The
// temp table drops itself on commit. Returns the upserted row count.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	temp := "_tmp_upsert_" + cfg.Table
	create := "CREATE TEMP TABLE " + pgx.Identifier{temp}.Sanitize() +
		" (LIKE " + pgx.Identifier{cfg.Table}.Sanitize() + " INCLUDING DEFAULTS) ON COMMIT DROP"
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{temp}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	cols := quoteAndJoin(cfg.Columns)
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{cfg.Table}.Sanitize())
	sb.WriteString(" (" + cols + ") SELECT " + cols + " FROM ")
	sb.WriteString(pgx.Identifier{temp}.Sanitize())
	sb.WriteString(" ON CONFLICT (" + quoteAndJoin(cfg.ConflictKeys) + ") DO UPDATE SET ")
	for i, col := range cfg.updateColumns() {
		if i > 0 {
			sb.WriteString(", ")
		}
		q := pgx.Identifier{col}.Sanitize()
		sb.WriteString(q + " = EXCLUDED." + q)
	}

	tag, err := tx.Exec(ctx, sb.String())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
