package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/cmw-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS prices (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	category    TEXT,
	name        TEXT NOT NULL,
	unit        TEXT NOT NULL DEFAULT '',
	price       REAL,
	currency    TEXT,
	source      TEXT,
	source_page TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(name, unit, source_page)
);

CREATE TABLE IF NOT EXISTS disciplines (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT UNIQUE NOT NULL,
	scope      TEXT NOT NULL CHECK(scope IN ('row','col')),
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cell_keys (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	row_index INTEGER NOT NULL,
	col_index INTEGER NOT NULL,
	row_group TEXT NOT NULL,
	row_label TEXT NOT NULL,
	col_group TEXT NOT NULL,
	col_label TEXT NOT NULL,
	UNIQUE(row_index, col_index)
);

CREATE TABLE IF NOT EXISTS discipline_suggestions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	discipline TEXT NOT NULL,
	price_id   INTEGER NOT NULL REFERENCES prices(id),
	score      REAL,
	method     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'proposed',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(discipline, price_id)
);

CREATE TABLE IF NOT EXISTS element_suggestions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	grp        TEXT NOT NULL,
	element    TEXT NOT NULL,
	axis       TEXT NOT NULL CHECK(axis IN ('row','col')),
	price_id   INTEGER NOT NULL REFERENCES prices(id),
	score      REAL,
	method     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'proposed',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(grp, element, axis, price_id)
);

CREATE TABLE IF NOT EXISTS cell_suggestions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	cell_id    INTEGER NOT NULL REFERENCES cell_keys(id),
	work_type  TEXT NOT NULL DEFAULT '',
	price_id   INTEGER NOT NULL REFERENCES prices(id),
	score      REAL,
	method     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'proposed',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(cell_id, price_id, work_type)
);

CREATE TABLE IF NOT EXISTS suggestion_events (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	suggestion_id INTEGER NOT NULL,
	action        TEXT NOT NULL,
	price_id      INTEGER NOT NULL,
	grp           TEXT,
	element       TEXT,
	axis          TEXT,
	source        TEXT,
	source_page   TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS collision_costs (
	cell_id        INTEGER PRIMARY KEY REFERENCES cell_keys(id),
	unit           TEXT,
	price_min      REAL,
	price_max      REAL,
	scenarios_json TEXT,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cell_risks (
	cell_id        INTEGER PRIMARY KEY REFERENCES cell_keys(id),
	hazard         REAL,
	importance     REAL,
	difficulty     REAL,
	rationale      TEXT,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	progress    INTEGER NOT NULL DEFAULT 0,
	message     TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at  DATETIME,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS task_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    INTEGER NOT NULL REFERENCES tasks(id),
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	payload    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_prices_name ON prices(name);
CREATE INDEX IF NOT EXISTS idx_element_suggestions_target ON element_suggestions(grp, element, axis);
CREATE INDEX IF NOT EXISTS idx_element_suggestions_status ON element_suggestions(status);
CREATE INDEX IF NOT EXISTS idx_cell_suggestions_cell ON cell_suggestions(cell_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_task_logs_task ON task_logs(task_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Price catalog

func (s *SQLiteStore) UpsertPrices(ctx context.Context, rows []model.PriceRow) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert prices")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prices (category, name, unit, price, currency, source, source_page)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, unit, source_page) DO UPDATE SET
			category = excluded.category,
			price    = excluded.price,
			currency = excluded.currency,
			source   = excluded.source`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert price")
	}
	defer stmt.Close() //nolint:errcheck

	count := 0
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Category, r.Name, r.Unit, r.Price, r.Currency, r.Source, r.SourcePage); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert price %q", r.Name)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert prices")
	}
	return count, nil
}

func (s *SQLiteStore) ListPrices(ctx context.Context, limit int) ([]model.PriceRow, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, name, unit, price, currency, source, source_page, created_at
		 FROM prices ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prices")
	}
	defer rows.Close()

	var out []model.PriceRow
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list prices iterate")
}

func (s *SQLiteStore) GetPrice(ctx context.Context, id int64) (*model.PriceRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, category, name, unit, price, currency, source, source_page, created_at
		 FROM prices WHERE id = ?`, id)
	p, err := scanPrice(row)
	if err == errNoRows {
		return nil, nil
	}
	return p, err
}

// Disciplines

func (s *SQLiteStore) UpsertDiscipline(ctx context.Context, name string, scope model.Axis) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO disciplines (name, scope) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, string(scope))
	return eris.Wrapf(err, "sqlite: upsert discipline %q", name)
}

func (s *SQLiteStore) ListDisciplines(ctx context.Context) ([]model.Discipline, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, scope FROM disciplines ORDER BY name ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list disciplines")
	}
	defer rows.Close()

	var out []model.Discipline
	for rows.Next() {
		var d model.Discipline
		if err := rows.Scan(&d.ID, &d.Name, &d.Scope); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan discipline")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list disciplines iterate")
}

// Cell keys

func (s *SQLiteStore) BulkUpsertCellKeys(ctx context.Context, keys []model.CellKey) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert cell keys")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cell_keys (row_index, col_index, row_group, row_label, col_group, col_label)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(row_index, col_index) DO UPDATE SET
			row_group = excluded.row_group,
			row_label = excluded.row_label,
			col_group = excluded.col_group,
			col_label = excluded.col_label`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert cell key")
	}
	defer stmt.Close() //nolint:errcheck

	count := 0
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.RowIndex, k.ColIndex, k.RowGroup, k.RowLabel, k.ColGroup, k.ColLabel); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert cell key (%d,%d)", k.RowIndex, k.ColIndex)
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert cell keys")
	}
	return count, nil
}

func (s *SQLiteStore) ListCellKeys(ctx context.Context) ([]model.CellKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, row_index, col_index, row_group, row_label, col_group, col_label
		 FROM cell_keys ORDER BY row_index, col_index`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cell keys")
	}
	defer rows.Close()

	var out []model.CellKey
	for rows.Next() {
		var k model.CellKey
		if err := rows.Scan(&k.ID, &k.RowIndex, &k.ColIndex, &k.RowGroup, &k.RowLabel, &k.ColGroup, &k.ColLabel); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell key")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list cell keys iterate")
}

func (s *SQLiteStore) GetCellKeyByCoord(ctx context.Context, rowIndex, colIndex int) (*model.CellKey, error) {
	var k model.CellKey
	err := s.db.QueryRowContext(ctx,
		`SELECT id, row_index, col_index, row_group, row_label, col_group, col_label
		 FROM cell_keys WHERE row_index = ? AND col_index = ?`,
		rowIndex, colIndex,
	).Scan(&k.ID, &k.RowIndex, &k.ColIndex, &k.RowGroup, &k.RowLabel, &k.ColGroup, &k.ColLabel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cell key (%d,%d)", rowIndex, colIndex)
	}
	return &k, nil
}

func (s *SQLiteStore) GetCellKey(ctx context.Context, id int64) (*model.CellKey, error) {
	var k model.CellKey
	err := s.db.QueryRowContext(ctx,
		`SELECT id, row_index, col_index, row_group, row_label, col_group, col_label
		 FROM cell_keys WHERE id = ?`, id,
	).Scan(&k.ID, &k.RowIndex, &k.ColIndex, &k.RowGroup, &k.RowLabel, &k.ColGroup, &k.ColLabel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cell key %d", id)
	}
	return &k, nil
}

// Discipline suggestions

func (s *SQLiteStore) UpsertDisciplineSuggestion(ctx context.Context, sg *model.DisciplineSuggestion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discipline_suggestions (discipline, price_id, score, method, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(discipline, price_id) DO UPDATE SET
			score  = excluded.score,
			method = excluded.method`,
		sg.Discipline, sg.PriceID, sg.Score, sg.Method, string(statusOrProposed(sg.Status)))
	return eris.Wrapf(err, "sqlite: upsert discipline suggestion %q/%d", sg.Discipline, sg.PriceID)
}

func (s *SQLiteStore) ListDisciplineSuggestions(ctx context.Context, discipline string, limit int) ([]model.DisciplineSuggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, discipline, price_id, score, method, status, created_at
		 FROM discipline_suggestions WHERE discipline = ?
		 ORDER BY score DESC, id ASC LIMIT ?`,
		discipline, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list discipline suggestions")
	}
	defer rows.Close()

	var out []model.DisciplineSuggestion
	for rows.Next() {
		var sg model.DisciplineSuggestion
		if err := rows.Scan(&sg.ID, &sg.Discipline, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan discipline suggestion")
		}
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list discipline suggestions iterate")
}

func (s *SQLiteStore) UpdateDisciplineSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discipline_suggestions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update discipline suggestion %d", id)
	}
	return checkRowsAffected(res, "discipline suggestion", id)
}

func (s *SQLiteStore) GetDisciplineSuggestion(ctx context.Context, id int64) (*model.DisciplineSuggestion, error) {
	var sg model.DisciplineSuggestion
	err := s.db.QueryRowContext(ctx,
		`SELECT id, discipline, price_id, score, method, status, created_at
		 FROM discipline_suggestions WHERE id = ?`, id,
	).Scan(&sg.ID, &sg.Discipline, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get discipline suggestion %d", id)
	}
	return &sg, nil
}

// Element suggestions

func (s *SQLiteStore) UpsertElementSuggestion(ctx context.Context, sg *model.ElementSuggestion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO element_suggestions (grp, element, axis, price_id, score, method, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(grp, element, axis, price_id) DO UPDATE SET
			score  = excluded.score,
			method = excluded.method`,
		sg.Group, sg.Element, string(sg.Axis), sg.PriceID, sg.Score, sg.Method, string(statusOrProposed(sg.Status)))
	return eris.Wrapf(err, "sqlite: upsert element suggestion %q/%q/%d", sg.Group, sg.Element, sg.PriceID)
}

const elementSuggestionColumns = `
	es.id, es.grp, es.element, es.axis, es.price_id, es.score, es.method, es.status, es.created_at,
	p.name, p.unit, p.category, p.price`

func (s *SQLiteStore) ListElementSuggestions(ctx context.Context, filter ElementFilter) ([]model.ElementSuggestion, error) {
	query := `SELECT` + elementSuggestionColumns + `
		 FROM element_suggestions es JOIN prices p ON p.id = es.price_id
		 WHERE es.grp = ? AND es.element = ? AND es.axis = ?`
	args := []any{filter.Group, filter.Element, string(filter.Axis)}

	if filter.Status != "" {
		query += ` AND es.status = ?`
		args = append(args, string(filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY es.score DESC, es.id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list element suggestions")
	}
	defer rows.Close()

	var out []model.ElementSuggestion
	for rows.Next() {
		sg, err := scanElementSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list element suggestions iterate")
}

func (s *SQLiteStore) UpdateElementSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE element_suggestions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update element suggestion %d", id)
	}
	return checkRowsAffected(res, "element suggestion", id)
}

func (s *SQLiteStore) GetElementSuggestion(ctx context.Context, id int64) (*model.ElementSuggestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+elementSuggestionColumns+`
		 FROM element_suggestions es JOIN prices p ON p.id = es.price_id
		 WHERE es.id = ?`, id)
	sg, err := scanElementSuggestion(row)
	if err == errNoRows {
		return nil, nil
	}
	return sg, err
}

// Cell suggestions

func (s *SQLiteStore) UpsertCellSuggestion(ctx context.Context, sg *model.CellSuggestion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cell_suggestions (cell_id, work_type, price_id, score, method, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cell_id, price_id, work_type) DO UPDATE SET
			score  = excluded.score,
			method = excluded.method`,
		sg.CellID, sg.WorkType, sg.PriceID, sg.Score, sg.Method, string(statusOrProposed(sg.Status)))
	return eris.Wrapf(err, "sqlite: upsert cell suggestion %d/%d", sg.CellID, sg.PriceID)
}

func (s *SQLiteStore) ListCellSuggestions(ctx context.Context, cellID int64, limit int) ([]model.CellSuggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cell_id, work_type, price_id, score, method, status, created_at
		 FROM cell_suggestions WHERE cell_id = ?
		 ORDER BY score DESC, id ASC LIMIT ?`,
		cellID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cell suggestions")
	}
	defer rows.Close()

	var out []model.CellSuggestion
	for rows.Next() {
		var sg model.CellSuggestion
		if err := rows.Scan(&sg.ID, &sg.CellID, &sg.WorkType, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell suggestion")
		}
		out = append(out, sg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list cell suggestions iterate")
}

func (s *SQLiteStore) UpdateCellSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cell_suggestions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update cell suggestion %d", id)
	}
	return checkRowsAffected(res, "cell suggestion", id)
}

func (s *SQLiteStore) GetCellSuggestion(ctx context.Context, id int64) (*model.CellSuggestion, error) {
	var sg model.CellSuggestion
	err := s.db.QueryRowContext(ctx,
		`SELECT id, cell_id, work_type, price_id, score, method, status, created_at
		 FROM cell_suggestions WHERE id = ?`, id,
	).Scan(&sg.ID, &sg.CellID, &sg.WorkType, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cell suggestion %d", id)
	}
	return &sg, nil
}

// Suggestion audit trail

func (s *SQLiteStore) InsertSuggestionEvent(ctx context.Context, e *model.SuggestionEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestion_events (id, kind, suggestion_id, action, price_id, grp, element, axis, source, source_page)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.SuggestionID, string(e.Action), e.PriceID,
		e.Group, e.Element, string(e.Axis), e.Source, e.SourcePage)
	return eris.Wrap(err, "sqlite: insert suggestion event")
}

func (s *SQLiteStore) ListSuggestionEvents(ctx context.Context, limit int) ([]model.SuggestionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, suggestion_id, action, price_id, grp, element, axis, source, source_page, created_at
		 FROM suggestion_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list suggestion events")
	}
	defer rows.Close()

	var out []model.SuggestionEvent
	for rows.Next() {
		var e model.SuggestionEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.SuggestionID, &e.Action, &e.PriceID,
			&e.Group, &e.Element, &e.Axis, &e.Source, &e.SourcePage, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan suggestion event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list suggestion events iterate")
}

// Estimates

func (s *SQLiteStore) UpsertCollisionCost(ctx context.Context, c *model.CollisionCost) error {
	var scenariosJSON sql.NullString
	if len(c.Scenarios) > 0 {
		b, err := json.Marshal(c.Scenarios)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal scenarios")
		}
		scenariosJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collision_costs (cell_id, unit, price_min, price_max, scenarios_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cell_id) DO UPDATE SET
			unit           = excluded.unit,
			price_min      = excluded.price_min,
			price_max      = excluded.price_max,
			scenarios_json = excluded.scenarios_json,
			updated_at     = excluded.updated_at`,
		c.CellID, c.Unit, c.PriceMin, c.PriceMax, scenariosJSON, time.Now().UTC())
	return eris.Wrapf(err, "sqlite: upsert collision cost %d", c.CellID)
}

func (s *SQLiteStore) GetCollisionCost(ctx context.Context, cellID int64) (*model.CollisionCost, error) {
	var c model.CollisionCost
	var scenariosJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT cell_id, COALESCE(unit, ''), price_min, price_max, scenarios_json
		 FROM collision_costs WHERE cell_id = ?`, cellID,
	).Scan(&c.CellID, &c.Unit, &c.PriceMin, &c.PriceMax, &scenariosJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get collision cost %d", cellID)
	}
	if scenariosJSON.Valid {
		if err := json.Unmarshal([]byte(scenariosJSON.String), &c.Scenarios); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal scenarios")
		}
	}
	return &c, nil
}

func (s *SQLiteStore) UpsertCellRisk(ctx context.Context, r *model.CellRisk) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cell_risks (cell_id, hazard, importance, difficulty, rationale, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cell_id) DO UPDATE SET
			hazard     = excluded.hazard,
			importance = excluded.importance,
			difficulty = excluded.difficulty,
			rationale  = excluded.rationale,
			updated_at = excluded.updated_at`,
		r.CellID, r.Hazard, r.Importance, r.Difficulty, r.Rationale, time.Now().UTC())
	return eris.Wrapf(err, "sqlite: upsert cell risk %d", r.CellID)
}

func (s *SQLiteStore) GetCellRisk(ctx context.Context, cellID int64) (*model.CellRisk, error) {
	var r model.CellRisk
	var rationale sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT cell_id, hazard, importance, difficulty, rationale
		 FROM cell_risks WHERE cell_id = ?`, cellID,
	).Scan(&r.CellID, &r.Hazard, &r.Importance, &r.Difficulty, &rationale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cell risk %d", cellID)
	}
	r.Rationale = rationale.String
	return &r, nil
}

func (s *SQLiteStore) CellSummaries(ctx context.Context) ([]model.CellSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT k.row_index, k.col_index, cc.price_min, cc.price_max, cr.hazard, cr.importance, cr.difficulty
		FROM cell_keys k
		LEFT JOIN collision_costs cc ON cc.cell_id = k.id
		LEFT JOIN cell_risks cr ON cr.cell_id = k.id
		WHERE cc.cell_id IS NOT NULL OR cr.cell_id IS NOT NULL
		ORDER BY k.row_index, k.col_index`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cell summaries")
	}
	defer rows.Close()

	var out []model.CellSummary
	for rows.Next() {
		var s model.CellSummary
		if err := rows.Scan(&s.RowIndex, &s.ColIndex, &s.PriceMin, &s.PriceMax, &s.Hazard, &s.Importance, &s.Difficulty); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell summary")
		}
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: cell summaries iterate")
}

// Tasks

func (s *SQLiteStore) InsertTask(ctx context.Context, typ model.TaskType) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (type, status, progress) VALUES (?, ?, 0)`,
		string(typ), string(model.TaskQueued))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert task %s", typ)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: task last insert id")
}

func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus, progress int, message string) error {
	now := time.Now().UTC()
	query := `UPDATE tasks SET status = ?, progress = ?, message = ?`
	args := []any{string(status), progress, message}
	switch status {
	case model.TaskRunning:
		query += `, started_at = COALESCE(started_at, ?)`
		args = append(args, now)
	case model.TaskDone, model.TaskError:
		query += `, finished_at = COALESCE(finished_at, ?)`
		args = append(args, now)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update task %d", id)
	}
	return checkRowsAffected(res, "task", id)
}

func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	var t model.Task
	var message sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, status, progress, message, created_at, started_at, finished_at
		 FROM tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.Type, &t.Status, &t.Progress, &message, &t.CreatedAt, &t.StartedAt, &t.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get task %d", id)
	}
	t.Message = message.String
	return &t, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, limit int) ([]model.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, status, progress, message, created_at, started_at, finished_at
		 FROM tasks ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		var t model.Task
		var message sql.NullString
		if err := rows.Scan(&t.ID, &t.Type, &t.Status, &t.Progress, &message, &t.CreatedAt, &t.StartedAt, &t.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		t.Message = message.String
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list tasks iterate")
}

func (s *SQLiteStore) InsertTaskLog(ctx context.Context, taskID int64, level model.LogLevel, message string, payload map[string]any) error {
	var payloadJSON sql.NullString
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal task log payload")
		}
		payloadJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_logs (task_id, level, message, payload) VALUES (?, ?, ?, ?)`,
		taskID, string(level), message, payloadJSON)
	return eris.Wrapf(err, "sqlite: insert task log for %d", taskID)
}

func (s *SQLiteStore) ListTaskLogs(ctx context.Context, taskID int64, limit int) ([]model.TaskLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, level, message, payload, created_at
		 FROM task_logs WHERE task_id = ? ORDER BY id ASC LIMIT ?`,
		taskID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list task logs")
	}
	defer rows.Close()

	var out []model.TaskLog
	for rows.Next() {
		var l model.TaskLog
		var payloadJSON sql.NullString
		if err := rows.Scan(&l.ID, &l.TaskID, &l.Level, &l.Message, &payloadJSON, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task log")
		}
		if payloadJSON.Valid {
			if err := json.Unmarshal([]byte(payloadJSON.String), &l.Payload); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal task log payload")
			}
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list task logs iterate")
}

// helpers

var errNoRows = eris.New("no rows")

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}

func statusOrProposed(s model.SuggestionStatus) model.SuggestionStatus {
	if s == "" {
		return model.SuggestionProposed
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPrice(row scannable) (*model.PriceRow, error) {
	var p model.PriceRow
	var category, unit, currency, source, sourcePage sql.NullString
	var price sql.NullFloat64
	err := row.Scan(&p.ID, &category, &p.Name, &unit, &price, &currency, &source, &sourcePage, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errNoRows
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan price")
	}
	p.Category = category.String
	p.Unit = unit.String
	p.Price = price.Float64
	p.Currency = currency.String
	p.Source = source.String
	p.SourcePage = sourcePage.String
	return &p, nil
}

func scanElementSuggestion(row scannable) (*model.ElementSuggestion, error) {
	var sg model.ElementSuggestion
	var category sql.NullString
	var price sql.NullFloat64
	err := row.Scan(&sg.ID, &sg.Group, &sg.Element, &sg.Axis, &sg.PriceID, &sg.Score, &sg.Method, &sg.Status, &sg.CreatedAt,
		&sg.PriceName, &sg.PriceUnit, &category, &price)
	if err == sql.ErrNoRows {
		return nil, errNoRows
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan element suggestion")
	}
	sg.PriceCategory = category.String
	sg.Price = price.Float64
	return &sg, nil
}
