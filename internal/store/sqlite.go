package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, one database file
// per deal. Writes go through db; caller SQL goes through ro, a second
// connection opened in read-only mode.
type SQLiteStore struct {
	dealID string
	db     *sql.DB
	ro     *sql.DB
}

// DBPath returns the database file a deal lives in under dataDir. Callers
// that must not create the file on first touch stat this before Open.
func DBPath(dataDir, dealID string) string {
	return filepath.Join(dataDir, dealID+".db")
}

// Open opens (creating if needed) the deal's database under dataDir and
// configures WAL mode. Safe to call on every process start.
func Open(dataDir, dealID string) (*SQLiteStore, error) {
	if dealID == "" {
		return nil, eris.New("sqlite: empty deal id")
	}
	path := DBPath(dataDir, dealID)

	db, err := sql.Open("sqlite", path)
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
	// Single writer per deal; serialize at the pool level so ingestion and
	// conflict scans never interleave statements.
	db.SetMaxOpenConns(1)

	ro, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: open read-only")
	}

	return &SQLiteStore{dealID: dealID, db: db, ro: ro}, nil
}

const factColumns = `document_id, case_name, entity, semantic_key, period,
	raw_value, raw_unit, value, unit, confidence, provenance`

func factTableDDL(name model.FactTable) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id  TEXT NOT NULL REFERENCES source_documents(id),
	case_name    TEXT NOT NULL,
	entity       TEXT NOT NULL DEFAULT '',
	semantic_key TEXT NOT NULL,
	period       TEXT NOT NULL DEFAULT '',
	raw_value    REAL,
	raw_unit     TEXT,
	value        REAL NOT NULL,
	unit         TEXT,
	confidence   TEXT NOT NULL DEFAULT 'LOW',
	provenance   TEXT,
	UNIQUE(case_name, entity, period, semantic_key)
);
CREATE INDEX IF NOT EXISTS idx_%s_key ON %s(semantic_key, entity, period);
`, name, name, name)
}

const baseMigration = `
CREATE TABLE IF NOT EXISTS deal (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	deal_type      TEXT NOT NULL DEFAULT '',
	jurisdiction   TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cases (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS source_documents (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	folder_path TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	label       TEXT NOT NULL DEFAULT '',
	case_name   TEXT NOT NULL DEFAULT '',
	run_id      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'ingesting',
	cell_count  INTEGER NOT NULL DEFAULT 0,
	table_count INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	ingested_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cell_facts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id   TEXT NOT NULL REFERENCES source_documents(id),
	sheet         TEXT NOT NULL,
	address       TEXT NOT NULL,
	row           INTEGER NOT NULL,
	col           INTEGER NOT NULL,
	raw_text      TEXT NOT NULL DEFAULT '',
	numeric_value REAL,
	formula       TEXT NOT NULL DEFAULT '',
	data_type     TEXT NOT NULL DEFAULT '',
	row_header    TEXT NOT NULL DEFAULT '',
	col_header    TEXT NOT NULL DEFAULT '',
	is_assumption INTEGER NOT NULL DEFAULT 0,
	is_output     INTEGER NOT NULL DEFAULT 0,
	case_tag      TEXT NOT NULL DEFAULT '',
	UNIQUE(document_id, sheet, address)
);

CREATE TABLE IF NOT EXISTS data_conflicts (
	id              TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	fact_table      TEXT NOT NULL,
	semantic_key    TEXT NOT NULL,
	entity          TEXT NOT NULL DEFAULT '',
	period          TEXT NOT NULL DEFAULT '',
	document_a      TEXT NOT NULL,
	document_b      TEXT NOT NULL,
	case_a          TEXT NOT NULL DEFAULT '',
	case_b          TEXT NOT NULL DEFAULT '',
	value_a         REAL NOT NULL,
	value_b         REAL NOT NULL,
	unit_a          TEXT NOT NULL DEFAULT '',
	unit_b          TEXT NOT NULL DEFAULT '',
	discrepancy_pct REAL NOT NULL,
	severity        TEXT NOT NULL,
	resolved        INTEGER NOT NULL DEFAULT 0,
	resolution_note TEXT NOT NULL DEFAULT '',
	dedup_key       TEXT NOT NULL UNIQUE,
	detected_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_conflicts_key ON data_conflicts(semantic_key, resolved);

CREATE TABLE IF NOT EXISTS scenario_runs (
	id         TEXT PRIMARY KEY,
	base_case  TEXT NOT NULL,
	overrides  TEXT NOT NULL DEFAULT '{}',
	metrics    TEXT NOT NULL DEFAULT '[]',
	engine     TEXT NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	result     TEXT NOT NULL DEFAULT '{}',
	cost_usd   REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Migrate creates the deal schema. Idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, baseMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate base")
	}
	for _, tbl := range model.FactTables {
		if _, err := s.db.ExecContext(ctx, factTableDDL(tbl)); err != nil {
			return eris.Wrapf(err, "sqlite: migrate %s", tbl)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	_ = s.ro.Close()
	return s.db.Close()
}

// --- deal & cases ---

func (s *SQLiteStore) UpsertDeal(ctx context.Context, d model.Deal) error {
	if d.ID == "" || d.Name == "" {
		return faults.New(faults.Validation, "sqlite: deal requires id and name")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deal (id, name, deal_type, jurisdiction, schema_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
		   deal_type = excluded.deal_type, jurisdiction = excluded.jurisdiction`,
		d.ID, d.Name, d.DealType, d.Jurisdiction, model.SchemaVersion, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert deal")
}

func (s *SQLiteStore) GetDeal(ctx context.Context) (*model.Deal, error) {
	var d model.Deal
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, deal_type, jurisdiction, schema_version, created_at FROM deal LIMIT 1`,
	).Scan(&d.ID, &d.Name, &d.DealType, &d.Jurisdiction, &d.SchemaVersion, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, faults.Newf(faults.NotFound, "deal %s not initialized", s.dealID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get deal")
	}
	return &d, nil
}

func (s *SQLiteStore) EnsureCase(ctx context.Context, name string) error {
	if name == "" {
		name = model.DefaultCase
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cases (id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		uuid.New().String(), name, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: ensure case %s", name)
}

func (s *SQLiteStore) ListCases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM cases ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cases")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan case")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: list cases iterate")
}

// --- documents ---

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc model.SourceDocument) error {
	if doc.ID == "" || doc.Filename == "" {
		return faults.New(faults.Validation, "sqlite: document requires id and filename")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_documents
		 (id, filename, folder_path, kind, category, label, case_name, run_id, status, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.FolderPath, string(doc.Kind), doc.Category,
		doc.Label, doc.CaseName, doc.RunID, string(model.DocIngesting), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: create document %s", doc.Filename)
}

func (s *SQLiteStore) FinishDocument(ctx context.Context, docID string, status model.DocStatus, errMsg string, cells, tables int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE source_documents SET status = ?, error = ?, cell_count = ?, table_count = ? WHERE id = ?`,
		string(status), errMsg, cells, tables, docID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish document %s", docID)
	}
	return checkRowsAffected(res, "document", docID)
}

func (s *SQLiteStore) GetDocument(ctx context.Context, docID string) (*model.SourceDocument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, folder_path, kind, category, label, case_name, run_id,
		        status, cell_count, table_count, error, ingested_at
		 FROM source_documents WHERE id = ?`, docID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, faults.Newf(faults.NotFound, "document %s", docID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", docID)
	}
	doc.DealID = s.dealID
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]model.SourceDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, folder_path, kind, category, label, case_name, run_id,
		        status, cell_count, table_count, error, ingested_at
		 FROM source_documents ORDER BY ingested_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.SourceDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		doc.DealID = s.dealID
		docs = append(docs, *doc)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

// --- facts ---

func validateFact(f model.Fact) error {
	switch {
	case f.DocumentID == "":
		return faults.New(faults.Validation, "fact: missing document id")
	case f.SemanticKey == "":
		return faults.New(faults.Validation, "fact: missing semantic key")
	case f.CaseName == "":
		return faults.New(faults.Validation, "fact: missing case name")
	case math.IsNaN(f.Value) || math.IsInf(f.Value, 0):
		return faults.Newf(faults.Validation, "fact %s: non-numeric value", f.SemanticKey)
	}
	for _, tbl := range model.FactTables {
		if f.Table == tbl {
			return nil
		}
	}
	return faults.Newf(faults.Validation, "fact: unknown table %q", f.Table)
}

// UpsertFact inserts or replaces a fact on its natural key. The displaced
// prior row, if any, is returned so the consistency checker can compare
// against it before the replacement becomes the only visible value. A
// validation failure aborts only this record.
func (s *SQLiteStore) UpsertFact(ctx context.Context, f model.Fact) (int64, *model.Fact, error) {
	if err := validateFact(f); err != nil {
		return 0, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	var prior *model.Fact
	row := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, %s FROM %s WHERE case_name = ? AND entity = ? AND period = ? AND semantic_key = ?`,
		factColumns, f.Table),
		f.CaseName, f.Entity, f.Period, f.SemanticKey)
	p, err := scanFact(row, f.Table)
	if err != nil && err != sql.ErrNoRows {
		return 0, nil, eris.Wrapf(err, "sqlite: read prior %s", f.Table)
	}
	if err == nil {
		p.DealID = s.dealID
		prior = p
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(case_name, entity, period, semantic_key) DO UPDATE SET
		   document_id = excluded.document_id,
		   raw_value = excluded.raw_value, raw_unit = excluded.raw_unit,
		   value = excluded.value, unit = excluded.unit,
		   confidence = excluded.confidence, provenance = excluded.provenance`,
		f.Table, factColumns),
		f.DocumentID, f.CaseName, f.Entity, f.SemanticKey, f.Period,
		f.RawValue, f.RawUnit, f.Value, f.Unit, string(f.Confidence), f.Provenance,
	)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "sqlite: upsert %s", f.Table)
	}

	var id int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id FROM %s WHERE case_name = ? AND entity = ? AND period = ? AND semantic_key = ?`, f.Table),
		f.CaseName, f.Entity, f.Period, f.SemanticKey).Scan(&id)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "sqlite: read upserted id %s", f.Table)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, eris.Wrap(err, "sqlite: commit upsert")
	}
	return id, prior, nil
}

func (s *SQLiteStore) InsertCellFact(ctx context.Context, cf model.CellFact) (int64, error) {
	if cf.DocumentID == "" || cf.Sheet == "" || cf.Address == "" {
		return 0, faults.New(faults.Validation, "cell fact: missing document, sheet, or address")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cell_facts
		 (document_id, sheet, address, row, col, raw_text, numeric_value, formula,
		  data_type, row_header, col_header, is_assumption, is_output, case_tag)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document_id, sheet, address) DO UPDATE SET
		   raw_text = excluded.raw_text, numeric_value = excluded.numeric_value,
		   formula = excluded.formula, data_type = excluded.data_type,
		   row_header = excluded.row_header, col_header = excluded.col_header,
		   is_assumption = excluded.is_assumption, is_output = excluded.is_output,
		   case_tag = excluded.case_tag`,
		cf.DocumentID, cf.Sheet, cf.Address, cf.Row, cf.Col, cf.RawText,
		cf.NumericValue, cf.Formula, cf.DataType, cf.RowHeader, cf.ColHeader,
		boolInt(cf.IsAssumption), boolInt(cf.IsOutput), cf.CaseTag,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert cell %s!%s", cf.Sheet, cf.Address)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM cell_facts WHERE document_id = ? AND sheet = ? AND address = ?`,
		cf.DocumentID, cf.Sheet, cf.Address).Scan(&id)
	return id, eris.Wrap(err, "sqlite: read cell id")
}

func (s *SQLiteStore) CellFactsByDocument(ctx context.Context, documentID string) ([]model.CellFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, sheet, address, row, col, raw_text, numeric_value,
		        formula, data_type, row_header, col_header, is_assumption, is_output, case_tag
		 FROM cell_facts WHERE document_id = ? ORDER BY sheet, row, col`, documentID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query cells for %s", documentID)
	}
	defer rows.Close()

	var cells []model.CellFact
	for rows.Next() {
		var cf model.CellFact
		var isAssumption, isOutput int
		if err := rows.Scan(&cf.ID, &cf.DocumentID, &cf.Sheet, &cf.Address, &cf.Row, &cf.Col,
			&cf.RawText, &cf.NumericValue, &cf.Formula, &cf.DataType,
			&cf.RowHeader, &cf.ColHeader, &isAssumption, &isOutput, &cf.CaseTag); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell fact")
		}
		cf.DealID = s.dealID
		cf.IsAssumption = isAssumption != 0
		cf.IsOutput = isOutput != 0
		cells = append(cells, cf)
	}
	return cells, eris.Wrap(rows.Err(), "sqlite: iterate cell facts")
}

func (s *SQLiteStore) FactsMatching(ctx context.Context, filter FactFilter) ([]model.Fact, error) {
	query := fmt.Sprintf(
		`SELECT id, %s FROM %s WHERE semantic_key = ? AND entity = ? AND period = ?`,
		factColumns, filter.Table)
	args := []any{filter.SemanticKey, filter.Entity, filter.Period}
	if filter.ExcludeDoc != "" {
		query += ` AND document_id != ?`
		args = append(args, filter.ExcludeDoc)
	}
	return s.queryFacts(ctx, filter.Table, query, args...)
}

func (s *SQLiteStore) FactsForKey(ctx context.Context, table model.FactTable, semanticKey, entity string) ([]model.Fact, error) {
	return s.queryFacts(ctx, table, fmt.Sprintf(
		`SELECT id, %s FROM %s WHERE semantic_key = ? AND entity = ? ORDER BY period`,
		factColumns, table), semanticKey, entity)
}

func (s *SQLiteStore) FactsByDocument(ctx context.Context, documentID string) ([]model.Fact, error) {
	var all []model.Fact
	for _, table := range model.FactTables {
		facts, err := s.queryFacts(ctx, table, fmt.Sprintf(
			`SELECT id, %s FROM %s WHERE document_id = ? ORDER BY semantic_key, period`,
			factColumns, table), documentID)
		if err != nil {
			return nil, err
		}
		all = append(all, facts...)
	}
	return all, nil
}

func (s *SQLiteStore) FactsByCase(ctx context.Context, table model.FactTable, caseName string) ([]model.Fact, error) {
	return s.queryFacts(ctx, table, fmt.Sprintf(
		`SELECT id, %s FROM %s WHERE case_name = ? ORDER BY semantic_key, period`,
		factColumns, table), caseName)
}

func (s *SQLiteStore) queryFacts(ctx context.Context, table model.FactTable, query string, args ...any) ([]model.Fact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", table)
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		f, err := scanFact(rows, table)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", table)
		}
		f.DealID = s.dealID
		facts = append(facts, *f)
	}
	return facts, eris.Wrapf(rows.Err(), "sqlite: iterate %s", table)
}

// --- conflicts ---

// InsertConflict writes a conflict unless the identical pair+values was
// already recorded. Returns whether a new row was written.
func (s *SQLiteStore) InsertConflict(ctx context.Context, c model.DataConflict) (bool, error) {
	if c.DocumentA == "" || c.DocumentB == "" {
		return false, faults.New(faults.Validation, "conflict: missing document references")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	dedup := fmt.Sprintf("%s|%.9g|%.9g|%s", c.PairKey(), c.ValueA, c.ValueB, c.Kind)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO data_conflicts
		 (id, kind, fact_table, semantic_key, entity, period, document_a, document_b,
		  case_a, case_b, value_a, value_b, unit_a, unit_b, discrepancy_pct,
		  severity, dedup_key, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dedup_key) DO NOTHING`,
		c.ID, string(c.Kind), string(c.Table), c.SemanticKey, c.Entity, c.Period,
		c.DocumentA, c.DocumentB, c.CaseA, c.CaseB, c.ValueA, c.ValueB,
		c.UnitA, c.UnitB, c.DiscrepancyPct, string(c.Severity), dedup, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert conflict")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: conflict rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, onlyOpen bool) ([]model.DataConflict, error) {
	query := `SELECT id, kind, fact_table, semantic_key, entity, period, document_a,
	          document_b, case_a, case_b, value_a, value_b, unit_a, unit_b,
	          discrepancy_pct, severity, resolved, resolution_note, detected_at
	          FROM data_conflicts`
	if onlyOpen {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY detected_at`
	return s.queryConflicts(ctx, query)
}

func (s *SQLiteStore) ConflictsForKeys(ctx context.Context, semanticKeys []string) ([]model.DataConflict, error) {
	if len(semanticKeys) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(semanticKeys))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT id, kind, fact_table, semantic_key, entity, period, document_a,
	          document_b, case_a, case_b, value_a, value_b, unit_a, unit_b,
	          discrepancy_pct, severity, resolved, resolution_note, detected_at
	          FROM data_conflicts WHERE resolved = 0 AND semantic_key IN (` + placeholders + `)`
	args := make([]any, len(semanticKeys))
	for i, k := range semanticKeys {
		args[i] = k
	}
	return s.queryConflicts(ctx, query, args...)
}

func (s *SQLiteStore) queryConflicts(ctx context.Context, query string, args ...any) ([]model.DataConflict, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query conflicts")
	}
	defer rows.Close()

	var out []model.DataConflict
	for rows.Next() {
		var c model.DataConflict
		var resolved int
		err := rows.Scan(&c.ID, &c.Kind, &c.Table, &c.SemanticKey, &c.Entity, &c.Period,
			&c.DocumentA, &c.DocumentB, &c.CaseA, &c.CaseB, &c.ValueA, &c.ValueB,
			&c.UnitA, &c.UnitB, &c.DiscrepancyPct, &c.Severity, &resolved,
			&c.ResolutionNote, &c.DetectedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conflict")
		}
		c.DealID = s.dealID
		c.Resolved = resolved != 0
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate conflicts")
}

func (s *SQLiteStore) ResolveConflict(ctx context.Context, conflictID, note string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE data_conflicts SET resolved = 1, resolution_note = ? WHERE id = ?`,
		note, conflictID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve conflict %s", conflictID)
	}
	return checkRowsAffected(res, "conflict", conflictID)
}

// --- scenario runs ---

func (s *SQLiteStore) InsertScenarioRun(ctx context.Context, run model.ScenarioRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	overrides, err := json.Marshal(run.Overrides)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal overrides")
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}
	result, err := json.Marshal(run.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scenario result")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scenario_runs (id, base_case, overrides, metrics, engine, summary, result, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BaseCase, string(overrides), string(metrics), string(run.Engine),
		run.Summary, string(result), run.CostUSD, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: insert scenario run")
}

// --- raw query ---

// Query executes caller SQL on the read-only connection and returns column
// names plus row values with []byte normalized to string.
func (s *SQLiteStore) Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	rows, err := s.ro.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, faults.Wrap(faults.Query, err, "sqlite: query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, eris.Wrap(err, "sqlite: query columns")
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, eris.Wrap(err, "sqlite: query scan")
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	return cols, out, eris.Wrap(rows.Err(), "sqlite: query iterate")
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return faults.Newf(faults.NotFound, "%s %s", entity, id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFact(row scannable, table model.FactTable) (*model.Fact, error) {
	var f model.Fact
	var rawUnit, unit, provenance sql.NullString
	var rv sql.NullFloat64
	err := row.Scan(&f.ID, &f.DocumentID, &f.CaseName, &f.Entity, &f.SemanticKey,
		&f.Period, &rv, &rawUnit, &f.Value, &unit, &f.Confidence, &provenance)
	if err != nil {
		return nil, err
	}
	if rv.Valid {
		f.RawValue = rv.Float64
	}
	f.RawUnit = rawUnit.String
	f.Unit = unit.String
	f.Provenance = provenance.String
	f.Table = table
	return &f, nil
}

func scanDocument(row scannable) (*model.SourceDocument, error) {
	var doc model.SourceDocument
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FolderPath, &doc.Kind, &doc.Category,
		&doc.Label, &doc.CaseName, &doc.RunID, &doc.Status, &doc.CellCount,
		&doc.TableCount, &doc.Error, &doc.IngestedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
