package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cmw-cli/internal/db"
	"github.com/sells-group/cmw-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations: the per-item lookups
// and upserts that bulk jobs hammer in a loop.
var preparedStatements = map[string]string{
	"get_price": `SELECT id, category, name, unit, price, currency, source, source_page, created_at FROM prices WHERE id = $1`,
	"upsert_element_suggestion": `INSERT INTO element_suggestions (grp, element, axis, price_id, score, method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (grp, element, axis, price_id) DO UPDATE SET score = EXCLUDED.score, method = EXCLUDED.method`,
	"upsert_cell_suggestion": `INSERT INTO cell_suggestions (cell_id, work_type, price_id, score, method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cell_id, price_id, work_type) DO UPDATE SET score = EXCLUDED.score, method = EXCLUDED.method`,
	"update_task_status": `UPDATE tasks SET status = $1, progress = $2, message = $3 WHERE id = $4`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS prices (
	id          BIGSERIAL PRIMARY KEY,
	category    TEXT,
	name        TEXT NOT NULL,
	unit        TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION,
	currency    TEXT,
	source      TEXT,
	source_page TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(name, unit, source_page)
);

CREATE TABLE IF NOT EXISTS disciplines (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT UNIQUE NOT NULL,
	scope      TEXT NOT NULL CHECK(scope IN ('row','col')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cell_keys (
	id        BIGSERIAL PRIMARY KEY,
	row_index INTEGER NOT NULL,
	col_index INTEGER NOT NULL,
	row_group TEXT NOT NULL,
	row_label TEXT NOT NULL,
	col_group TEXT NOT NULL,
	col_label TEXT NOT NULL,
	UNIQUE(row_index, col_index)
);

CREATE TABLE IF NOT EXISTS discipline_suggestions (
	id         BIGSERIAL PRIMARY KEY,
	discipline TEXT NOT NULL,
	price_id   BIGINT NOT NULL REFERENCES prices(id),
	score      DOUBLE PRECISION,
	method     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'proposed',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(discipline, price_id)
);

CREATE TABLE IF NOT EXISTS element_suggestions (
	id         BIGSERIAL PRIMARY KEY,
	grp        TEXT NOT NULL,
	element    TEXT NOT NULL,
	axis       TEXT NOT NULL CHECK(axis IN ('row','col')),
	price_id   BIGINT NOT NULL REFERENCES prices(id),
	score      DOUBLE PRECISION,
	method     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'proposed',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(grp, element, axis, price_id)
);

CREATE TABLE IF NOT EXISTS cell_suggestions (
	id         BIGSERIAL PRIMARY KEY,
	cell_id    BIGINT NOT NULL REFERENCES cell_keys(id),
	work_type  TEXT NOT NULL DEFAULT '',
	price_id   BIGINT NOT NULL REFERENCES prices(id),
	score      DOUBLE PRECISION,
	method     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'proposed',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(cell_id, price_id, work_type)
);

CREATE TABLE IF NOT EXISTS suggestion_events (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	suggestion_id BIGINT NOT NULL,
	action        TEXT NOT NULL,
	price_id      BIGINT NOT NULL,
	grp           TEXT,
	element       TEXT,
	axis          TEXT,
	source        TEXT,
	source_page   TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS collision_costs (
	cell_id        BIGINT PRIMARY KEY REFERENCES cell_keys(id),
	unit           TEXT,
	price_min      DOUBLE PRECISION,
	price_max      DOUBLE PRECISION,
	scenarios_json JSONB,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cell_risks (
	cell_id        BIGINT PRIMARY KEY REFERENCES cell_keys(id),
	hazard         DOUBLE PRECISION,
	importance     DOUBLE PRECISION,
	difficulty     DOUBLE PRECISION,
	rationale      TEXT,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id          BIGSERIAL PRIMARY KEY,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	progress    INTEGER NOT NULL DEFAULT 0,
	message     TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS task_logs (
	id         BIGSERIAL PRIMARY KEY,
	task_id    BIGINT NOT NULL REFERENCES tasks(id),
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	payload    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_prices_name ON prices(name);
CREATE INDEX IF NOT EXISTS idx_element_suggestions_target ON element_suggestions(grp, element, axis);
CREATE INDEX IF NOT EXISTS idx_element_suggestions_status ON element_suggestions(status);
CREATE INDEX IF NOT EXISTS idx_cell_suggestions_cell ON cell_suggestions(cell_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_task_logs_task ON task_logs(task_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Price catalog

var priceColumns = []string{"category", "name", "unit", "price", "currency", "source", "source_page"}

func (s *PostgresStore) UpsertPrices(ctx context.Context, rows []model.PriceRow) (int, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.Category, r.Name, r.Unit, r.Price, r.Currency, r.Source, r.SourcePage}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "prices",
		Columns:      priceColumns,
		ConflictKeys: []string{"name", "unit", "source_page"},
	}, values)
	return int(n), err
}

func (s *PostgresStore) ListPrices(ctx context.Context, limit int) ([]model.PriceRow, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(category, ''), name, unit, COALESCE(price, 0), COALESCE(currency, ''),
		        COALESCE(source, ''), source_page, created_at
		 FROM prices ORDER BY id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prices")
	}
	defer rows.Close()

	var out []model.PriceRow
	for rows.Next() {
		var p model.PriceRow
		if err := rows.Scan(&p.ID, &p.Category, &p.Name, &p.Unit, &p.Price, &p.Currency, &p.Source, &p.SourcePage, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list prices iterate")
}

func (s *PostgresStore) GetPrice(ctx context.Context, id int64) (*model.PriceRow, error) {
	var p model.PriceRow
	err := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(category, ''), name, unit, COALESCE(price, 0), COALESCE(currency, ''),
		        COALESCE(source, ''), source_page, created_at
		 FROM prices WHERE id = $1`, id,
	).Scan(&p.ID, &p.Category, &p.Name, &p.Unit, &p.Price, &p.Currency, &p.Source, &p.SourcePage, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get price %d", id)
	}
	return &p, nil
}

// Disciplines

func (s *PostgresStore) UpsertDiscipline(ctx context.Context, name string, scope model.Axis) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO disciplines (name, scope) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, string(scope))
	return eris.Wrapf(err, "postgres: upsert discipline %q", name)
}

func (s *PostgresStore) ListDisciplines(ctx context.Context) ([]model.Discipline, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, scope FROM disciplines ORDER BY name ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list disciplines")
	}
	defer rows.Close()

	var out []model.Discipline
	for rows.Next() {
		var d model.Discipline
		if err := rows.Scan(&d.ID, &d.Name, &d.Scope); err != nil {
			return nil, eris.Wrap(err, "postgres: scan discipline")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list disciplines iterate")
}

// Cell keys

func (s *PostgresStore) BulkUpsertCellKeys(ctx context.Context, keys []model.CellKey) (int, error) {
	values := make([][]any, len(keys))
	for i, k := range keys {
		values[i] = []any{k.RowIndex, k.ColIndex, k.RowGroup, k.RowLabel, k.ColGroup, k.ColLabel}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "cell_keys",
		Columns:      []string{"row_index", "col_index", "row_group", "row_label", "col_group", "col_label"},
		ConflictKeys: []string{"row_index", "col_index"},
	}, values)
	return int(n), err
}

func (s *PostgresStore) ListCellKeys(ctx context.Context) ([]model.CellKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, row_index, col_index, row_group, row_label, col_group, col_label
		 FROM cell_keys ORDER BY row_index, col_index`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cell keys")
	}
	defer rows.Close()

	var out []model.CellKey
	for rows.Next() {
		var k model.CellKey
		if err := rows.Scan(&k.ID, &k.RowIndex, &k.ColIndex, &k.RowGroup, &k.RowLabel, &k.ColGroup, &k.ColLabel); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cell key")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list cell keys iterate")
}

func (s *PostgresStore) GetCellKeyByCoord(ctx context.Context, rowIndex, colIndex int) (*model.CellKey, error) {
	var k model.CellKey
	err := s.pool.QueryRow(ctx,
		`SELECT id, row_index, col_index, row_group, row_label, col_group, col_label
		 FROM cell_keys WHERE row_index = $1 AND col_index = $2`,
		rowIndex, colIndex,
	).Scan(&k.ID, &k.RowIndex, &k.ColIndex, &k.RowGroup, &k.RowLabel, &k.ColGroup, &k.ColLabel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cell key (%d,%d)", rowIndex, colIndex)
	}
	return &k, nil
}

func (s *PostgresStore) GetCellKey(ctx context.Context, id int64) (*model.CellKey, error) {
	var k model.CellKey
	err := s.pool.QueryRow(ctx,
		`SELECT id, row_index, col_index, row_group, row_label, col_group, col_label
		 FROM cell_keys WHERE id = $1`, id,
	).Scan(&k.ID, &k.RowIndex, &k.ColIndex, &k.RowGroup, &k.RowLabel, &k.ColGroup, &k.ColLabel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cell key %d", id)
	}
	return &k, nil
}

// Discipline suggestions

func (s *PostgresStore) UpsertDisciplineSuggestion(ctx context.Context, sg *model.DisciplineSuggestion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO discipline_suggestions (discipline, price_id, score, method, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (discipline, price_id) DO UPDATE SET score = EXCLUDED.score, method = EXCLUDED.method`,
		sg.Discipline, sg.PriceID, sg.Score, sg.Method, string(statusOrProposed(sg.Status)))
	return eris.Wrapf(err, "postgres: upsert discipline suggestion %q/%d", sg.Discipline, sg.PriceID)
}

func (s *PostgresStore) ListDisciplineSuggestions(ctx context.Context, discipline string, limit int) ([]model.DisciplineSuggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, discipline, price_id, score, method, status, created_at
		 FROM discipline_suggestions WHERE discipline = $1
		 ORDER BY score DESC NULLS LAST, id ASC LIMIT $2`,
		discipline, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list discipline suggestions")
	}
	defer rows.Close()

	var out []model.DisciplineSuggestion
	for rows.Next() {
		var sg model.DisciplineSuggestion
		if err := rows.Scan(&sg.ID, &sg.Discipline, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan discipline suggestion")
		}
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list discipline suggestions iterate")
}

func (s *PostgresStore) UpdateDisciplineSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discipline_suggestions SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update discipline suggestion %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("discipline suggestion not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) GetDisciplineSuggestion(ctx context.Context, id int64) (*model.DisciplineSuggestion, error) {
	var sg model.DisciplineSuggestion
	err := s.pool.QueryRow(ctx,
		`SELECT id, discipline, price_id, score, method, status, created_at
		 FROM discipline_suggestions WHERE id = $1`, id,
	).Scan(&sg.ID, &sg.Discipline, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get discipline suggestion %d", id)
	}
	return &sg, nil
}

// Element suggestions

func (s *PostgresStore) UpsertElementSuggestion(ctx context.Context, sg *model.ElementSuggestion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO element_suggestions (grp, element, axis, price_id, score, method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (grp, element, axis, price_id) DO UPDATE SET score = EXCLUDED.score, method = EXCLUDED.method`,
		sg.Group, sg.Element, string(sg.Axis), sg.PriceID, sg.Score, sg.Method, string(statusOrProposed(sg.Status)))
	return eris.Wrapf(err, "postgres: upsert element suggestion %q/%q/%d", sg.Group, sg.Element, sg.PriceID)
}

func (s *PostgresStore) ListElementSuggestions(ctx context.Context, filter ElementFilter) ([]model.ElementSuggestion, error) {
	query := `SELECT es.id, es.grp, es.element, es.axis, es.price_id, es.score, es.method, es.status, es.created_at,
	                 p.name, p.unit, COALESCE(p.category, ''), COALESCE(p.price, 0)
	          FROM element_suggestions es JOIN prices p ON p.id = es.price_id
	          WHERE es.grp = $1 AND es.element = $2 AND es.axis = $3`
	args := []any{filter.Group, filter.Element, string(filter.Axis)}

	if filter.Status != "" {
		query += ` AND es.status = $4`
		args = append(args, string(filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY es.score DESC NULLS LAST, es.id ASC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list element suggestions")
	}
	defer rows.Close()

	var out []model.ElementSuggestion
	for rows.Next() {
		var sg model.ElementSuggestion
		if err := rows.Scan(&sg.ID, &sg.Group, &sg.Element, &sg.Axis, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt,
			&sg.PriceName, &sg.PriceUnit, &sg.PriceCategory, &sg.Price); err != nil {
			return nil, eris.Wrap(err, "postgres: scan element suggestion")
		}
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list element suggestions iterate")
}

func (s *PostgresStore) UpdateElementSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE element_suggestions SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update element suggestion %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("element suggestion not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) GetElementSuggestion(ctx context.Context, id int64) (*model.ElementSuggestion, error) {
	var sg model.ElementSuggestion
	err := s.pool.QueryRow(ctx,
		`SELECT es.id, es.grp, es.element, es.axis, es.price_id, es.score, es.method, es.status, es.created_at,
		        p.name, p.unit, COALESCE(p.category, ''), COALESCE(p.price, 0)
		 FROM element_suggestions es JOIN prices p ON p.id = es.price_id
		 WHERE es.id = $1`, id,
	).Scan(&sg.ID, &sg.Group, &sg.Element, &sg.Axis, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt,
		&sg.PriceName, &sg.PriceUnit, &sg.PriceCategory, &sg.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get element suggestion %d", id)
	}
	return &sg, nil
}

// Cell suggestions

func (s *PostgresStore) UpsertCellSuggestion(ctx context.Context, sg *model.CellSuggestion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cell_suggestions (cell_id, work_type, price_id, score, method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cell_id, price_id, work_type) DO UPDATE SET score = EXCLUDED.score, method = EXCLUDED.method`,
		sg.CellID, sg.WorkType, sg.PriceID, sg.Score, sg.Method, string(statusOrProposed(sg.Status)))
	return eris.Wrapf(err, "postgres: upsert cell suggestion %d/%d", sg.CellID, sg.PriceID)
}

func (s *PostgresStore) ListCellSuggestions(ctx context.Context, cellID int64, limit int) ([]model.CellSuggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, cell_id, work_type, price_id, score, method, status, created_at
		 FROM cell_suggestions WHERE cell_id = $1
		 ORDER BY score DESC NULLS LAST, id ASC LIMIT $2`,
		cellID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cell suggestions")
	}
	defer rows.Close()

	var out []model.CellSuggestion
	for rows.Next() {
		var sg model.CellSuggestion
		if err := rows.Scan(&sg.ID, &sg.CellID, &sg.WorkType, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cell suggestion")
		}
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list cell suggestions iterate")
}

func (s *PostgresStore) UpdateCellSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cell_suggestions SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update cell suggestion %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("cell suggestion not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) GetCellSuggestion(ctx context.Context, id int64) (*model.CellSuggestion, error) {
	var sg model.CellSuggestion
	err := s.pool.QueryRow(ctx,
		`SELECT id, cell_id, work_type, price_id, score, method, status, created_at
		 FROM cell_suggestions WHERE id = $1`, id,
	).Scan(&sg.ID, &sg.CellID, &sg.WorkType, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cell suggestion %d", id)
	}
	return &sg, nil
}

// Suggestion audit trail

func (s *PostgresStore) InsertSuggestionEvent(ctx context.Context, e *model.SuggestionEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO suggestion_events (id, kind, suggestion_id, action, price_id, grp, element, axis, source, source_page)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, string(e.Kind), e.SuggestionID, string(e.Action), e.PriceID,
		e.Group, e.Element, string(e.Axis), e.Source, e.SourcePage)
	return eris.Wrap(err, "postgres: insert suggestion event")
}

func (s *PostgresStore) ListSuggestionEvents(ctx context.Context, limit int) ([]model.SuggestionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, suggestion_id, action, price_id, COALESCE(grp, ''), COALESCE(element, ''),
		        COALESCE(axis, ''), COALESCE(source, ''), COALESCE(source_page, ''), created_at
		 FROM suggestion_events ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list suggestion events")
	}
	defer rows.Close()

	var out []model.SuggestionEvent
	for rows.Next() {
		var e model.SuggestionEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.SuggestionID, &e.Action, &e.PriceID,
			&e.Group, &e.Element, &e.Axis, &e.Source, &e.SourcePage, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan suggestion event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list suggestion events iterate")
}

// Estimates

func (s *PostgresStore) UpsertCollisionCost(ctx context.Context, c *model.CollisionCost) error {
	var scenariosJSON any
	if len(c.Scenarios) > 0 {
		b, err := json.Marshal(c.Scenarios)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal scenarios")
		}
		scenariosJSON = string(b)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO collision_costs (cell_id, unit, price_min, price_max, scenarios_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (cell_id) DO UPDATE SET
			unit = EXCLUDED.unit, price_min = EXCLUDED.price_min, price_max = EXCLUDED.price_max,
			scenarios_json = EXCLUDED.scenarios_json, updated_at = now()`,
		c.CellID, c.Unit, c.PriceMin, c.PriceMax, scenariosJSON)
	return eris.Wrapf(err, "postgres: upsert collision cost %d", c.CellID)
}

func (s *PostgresStore) GetCollisionCost(ctx context.Context, cellID int64) (*model.CollisionCost, error) {
	var c model.CollisionCost
	var scenariosJSON *string
	err := s.pool.QueryRow(ctx,
		`SELECT cell_id, COALESCE(unit, ''), price_min, price_max, scenarios_json::text
		 FROM collision_costs WHERE cell_id = $1`, cellID,
	).Scan(&c.CellID, &c.Unit, &c.PriceMin, &c.PriceMax, &scenariosJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get collision cost %d", cellID)
	}
	if scenariosJSON != nil {
		if err := json.Unmarshal([]byte(*scenariosJSON), &c.Scenarios); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal scenarios")
		}
	}
	return &c, nil
}

func (s *PostgresStore) UpsertCellRisk(ctx context.Context, r *model.CellRisk) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cell_risks (cell_id, hazard, importance, difficulty, rationale, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (cell_id) DO UPDATE SET
			hazard = EXCLUDED.hazard, importance = EXCLUDED.importance, difficulty = EXCLUDED.difficulty,
			rationale = EXCLUDED.rationale, updated_at = now()`,
		r.CellID, r.Hazard, r.Importance, r.Difficulty, r.Rationale)
	return eris.Wrapf(err, "postgres: upsert cell risk %d", r.CellID)
}

func (s *PostgresStore) GetCellRisk(ctx context.Context, cellID int64) (*model.CellRisk, error) {
	var r model.CellRisk
	err := s.pool.QueryRow(ctx,
		`SELECT cell_id, hazard, importance, difficulty, COALESCE(rationale, '')
		 FROM cell_risks WHERE cell_id = $1`, cellID,
	).Scan(&r.CellID, &r.Hazard, &r.Importance, &r.Difficulty, &r.Rationale)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cell risk %d", cellID)
	}
	return &r, nil
}

func (s *PostgresStore) CellSummaries(ctx context.Context) ([]model.CellSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT k.row_index, k.col_index, cc.price_min, cc.price_max, cr.hazard, cr.importance, cr.difficulty
		FROM cell_keys k
		LEFT JOIN collision_costs cc ON cc.cell_id = k.id
		LEFT JOIN cell_risks cr ON cr.cell_id = k.id
		WHERE cc.cell_id IS NOT NULL OR cr.cell_id IS NOT NULL
		ORDER BY k.row_index, k.col_index`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cell summaries")
	}
	defer rows.Close()

	var out []model.CellSummary
	for rows.Next() {
		var sum model.CellSummary
		if err := rows.Scan(&sum.RowIndex, &sum.ColIndex, &sum.PriceMin, &sum.PriceMax, &sum.Hazard, &sum.Importance, &sum.Difficulty); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cell summary")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: cell summaries iterate")
}

// Tasks

func (s *PostgresStore) InsertTask(ctx context.Context, typ model.TaskType) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (type, status, progress) VALUES ($1, $2, 0) RETURNING id`,
		string(typ), string(model.TaskQueued),
	).Scan(&id)
	return id, eris.Wrapf(err, "postgres: insert task %s", typ)
}

func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus, progress int, message string) error {
	query := `UPDATE tasks SET status = $1, progress = $2, message = $3`
	switch status {
	case model.TaskRunning:
		query += `, started_at = COALESCE(started_at, now())`
	case model.TaskDone, model.TaskError:
		query += `, finished_at = COALESCE(finished_at, now())`
	}
	query += ` WHERE id = $4`

	tag, err := s.pool.Exec(ctx, query, string(status), progress, message, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update task %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("task not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	var t model.Task
	err := s.pool.QueryRow(ctx,
		`SELECT id, type, status, progress, COALESCE(message, ''), created_at, started_at, finished_at
		 FROM tasks WHERE id = $1`, id,
	).Scan(&t.ID, &t.Type, &t.Status, &t.Progress, &t.Message, &t.CreatedAt, &t.StartedAt, &t.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get task %d", id)
	}
	return &t, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, limit int) ([]model.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, status, progress, COALESCE(message, ''), created_at, started_at, finished_at
		 FROM tasks ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Type, &t.Status, &t.Progress, &t.Message, &t.CreatedAt, &t.StartedAt, &t.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list tasks iterate")
}

func (s *PostgresStore) InsertTaskLog(ctx context.Context, taskID int64, level model.LogLevel, message string, payload map[string]any) error {
	var payloadJSON any
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal task log payload")
		}
		payloadJSON = string(b)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_logs (task_id, level, message, payload) VALUES ($1, $2, $3, $4)`,
		taskID, string(level), message, payloadJSON)
	return eris.Wrapf(err, "postgres: insert task log for %d", taskID)
}

func (s *PostgresStore) ListTaskLogs(ctx context.Context, taskID int64, limit int) ([]model.TaskLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, level, message, payload::text, created_at
		 FROM task_logs WHERE task_id = $1 ORDER BY id ASC LIMIT $2`,
		taskID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list task logs")
	}
	defer rows.Close()

	var out []model.TaskLog
	for rows.Next() {
		var l model.TaskLog
		var payloadJSON *string
		if err := rows.Scan(&l.ID, &l.TaskID, &l.Level, &l.Message, &payloadJSON, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan task log")
		}
		if payloadJSON != nil {
			if err := json.Unmarshal([]byte(*payloadJSON), &l.Payload); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal task log payload")
			}
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list task logs iterate")
}
