// Package queryengine serves the deal's read side: guarded structured
// queries over the fact tables and what-if scenario evaluation routed to
// either the in-process formula evaluator or the external finance
// calculator.
package queryengine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/dealroom-cli/internal/classify"
	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/finance"
	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/store"
)

// Engine answers queries and scenarios for one deal.
type Engine struct {
	store store.Store
	calc  finance.Calculator
	audit *store.AuditLog
}

// New builds an engine. calc may be nil when no external calculator is
// configured; TVM scenarios then fail with a validation error.
func New(st store.Store, calc finance.Calculator) *Engine {
	return &Engine{store: st, calc: calc}
}

// WithAudit attaches a per-deal audit log.
func (e *Engine) WithAudit(a *store.AuditLog) *Engine {
	e.audit = a
	return e
}

// Filters is the named-filter query surface: every field is optional
// except that a table must be resolvable from Table or Category.
type Filters struct {
	Table       model.FactTable
	Category    string
	CaseName    string
	SemanticKey string
	Entity      string
	PeriodFrom  string
	PeriodTo    string
}

// compile turns named filters into one parameterized statement. Caller
// values only ever travel as bind parameters.
func (f Filters) compile() (string, []any, error) {
	table := f.Table
	if table == "" {
		if f.Category == "" {
			return "", nil, faults.New(faults.Validation, "query: a table or category filter is required")
		}
		t, ok := classify.TableForCategory(strings.ToLower(f.Category))
		if !ok {
			return "", nil, faults.Newf(faults.Validation, "query: unknown category %q", f.Category)
		}
		table = t
	}

	var sb strings.Builder
	fmt.Fprintf(&sb,
		`SELECT case_name, entity, semantic_key, period, value, unit, confidence FROM %s WHERE 1=1`,
		table)
	var args []any
	if f.CaseName != "" {
		sb.WriteString(` AND case_name = ?`)
		args = append(args, f.CaseName)
	}
	if f.SemanticKey != "" {
		sb.WriteString(` AND semantic_key = ?`)
		args = append(args, f.SemanticKey)
	}
	if f.Entity != "" {
		sb.WriteString(` AND entity = ?`)
		args = append(args, f.Entity)
	}
	if f.PeriodFrom != "" {
		sb.WriteString(` AND period >= ?`)
		args = append(args, f.PeriodFrom)
	}
	if f.PeriodTo != "" {
		sb.WriteString(` AND period <= ?`)
		args = append(args, f.PeriodTo)
	}
	sb.WriteString(` ORDER BY semantic_key, period, case_name`)
	return sb.String(), args, nil
}

// QueryFacts runs the named-filter path.
func (e *Engine) QueryFacts(ctx context.Context, f Filters) (*model.QueryResult, error) {
	query, args, err := f.compile()
	if err != nil {
		return nil, err
	}
	return e.run(ctx, query, args...)
}

// QuerySQL runs caller-supplied SQL after the blocklist guard. The store
// executes it on a read-only connection regardless.
func (e *Engine) QuerySQL(ctx context.Context, query string, args ...any) (*model.QueryResult, error) {
	if err := Guard(query); err != nil {
		return nil, err
	}
	return e.run(ctx, query, args...)
}

func (e *Engine) run(ctx context.Context, query string, args ...any) (*model.QueryResult, error) {
	started := time.Now()
	cols, rows, err := e.store.Query(ctx, query, args...)
	if e.audit != nil {
		e.audit.Record("query", map[string]int{"rows": len(rows)}, time.Since(started), err)
	}
	if err != nil {
		return nil, err
	}

	result := &model.QueryResult{
		Columns:      cols,
		Rows:         rows,
		CasesPresent: []string{},
		Status:       "ok",
	}
	result.CasesPresent = distinctColumn(cols, rows, "case_name")

	// Every response names the open conflicts touching its metrics so a
	// consumer is never shown disputed data as settled.
	keys := distinctColumn(cols, rows, "semantic_key")
	if len(keys) > 0 {
		conflicts, err := e.store.ConflictsForKeys(ctx, keys)
		if err != nil {
			return nil, err
		}
		result.OpenConflicts = conflicts
		if len(conflicts) > 0 {
			result.Status = "disputed"
		}
	}
	return result, nil
}

func distinctColumn(cols []string, rows [][]any, name string) []string {
	idx := -1
	for i, c := range cols {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return []string{}
	}
	seen := map[string]bool{}
	for _, row := range rows {
		if idx < len(row) {
			if s, ok := row[idx].(string); ok && s != "" {
				seen[s] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// --- scenarios ---

// tvmKeywords mark a metric as time-value-of-money class: those requests
// are delegated whole to the external calculator.
var tvmKeywords = []string{"npv", "irr", "payback", "decline"}

// RouteFor decides which engine answers a metric set. Pure function: one
// TVM-class metric routes the whole request externally, otherwise the
// in-process evaluator recomputes from stored values.
func RouteFor(metrics []string) model.ScenarioEngine {
	for _, m := range metrics {
		lower := strings.ToLower(m)
		for _, kw := range tvmKeywords {
			if strings.Contains(lower, kw) {
				return model.EngineExternal
			}
		}
	}
	return model.EngineInternal
}

// ScenarioRequest is one what-if evaluation: overrides applied on top of a
// named base case, asked for by output metric names.
type ScenarioRequest struct {
	BaseCase  string
	Overrides map[string]float64
	Metrics   []string
}

// ScenarioResult carries the computed metric values plus the raw external
// result when the calculator answered.
type ScenarioResult struct {
	RunID   string
	Engine  model.ScenarioEngine
	Values  map[string]float64
	Finance *finance.Result
	CostUSD float64
}

// RunScenario routes, evaluates, and appends a ScenarioRun row. The run
// log records every answered scenario regardless of engine.
func (e *Engine) RunScenario(ctx context.Context, req ScenarioRequest) (*ScenarioResult, error) {
	if len(req.Metrics) == 0 {
		return nil, faults.New(faults.Validation, "scenario: no metrics requested")
	}
	if req.BaseCase == "" {
		req.BaseCase = model.DefaultCase
	}

	result := &ScenarioResult{
		RunID:  uuid.NewString(),
		Engine: RouteFor(req.Metrics),
		Values: map[string]float64{},
	}

	switch result.Engine {
	case model.EngineExternal:
		if e.calc == nil {
			return nil, faults.New(faults.Validation, "scenario: TVM metrics requested but no calculator configured")
		}
		baseCase, err := e.baseCaseFacts(ctx, req.BaseCase)
		if err != nil {
			return nil, err
		}
		res, err := e.calc.Evaluate(ctx, baseCase, req.Overrides, req.Metrics)
		if err != nil {
			return nil, err
		}
		result.Finance = res
		result.CostUSD = res.Cost
		if res.NPV != nil {
			result.Values["npv"] = *res.NPV
		}
		if res.IRR != nil {
			result.Values["irr"] = *res.IRR
		}
		if res.Payback != nil {
			result.Values["payback"] = *res.Payback
		}
	case model.EngineInternal:
		if err := e.evaluateInternal(ctx, req, result.Values); err != nil {
			return nil, err
		}
	}

	run := model.ScenarioRun{
		ID:        result.RunID,
		BaseCase:  req.BaseCase,
		Overrides: req.Overrides,
		Metrics:   req.Metrics,
		Engine:    result.Engine,
		Summary:   fmt.Sprintf("%d metric(s) via %s engine", len(req.Metrics), result.Engine),
		Result:    toResultPayload(result.Values),
		CostUSD:   result.CostUSD,
	}
	if err := e.store.InsertScenarioRun(ctx, run); err != nil {
		return nil, err
	}
	if e.audit != nil {
		e.audit.Record("scenario", map[string]int{"metrics": len(req.Metrics)}, 0, nil)
	}
	zap.L().Info("scenario evaluated",
		zap.String("run_id", result.RunID),
		zap.String("engine", string(result.Engine)),
		zap.Strings("metrics", req.Metrics),
	)
	return result, nil
}

// baseCaseFacts collects every typed fact in the base case, the payload
// shipped to the external calculator.
func (e *Engine) baseCaseFacts(ctx context.Context, caseName string) ([]model.Fact, error) {
	var all []model.Fact
	for _, table := range model.FactTables {
		facts, err := e.store.FactsByCase(ctx, table, caseName)
		if err != nil {
			return nil, err
		}
		all = append(all, facts...)
	}
	if len(all) == 0 {
		return nil, faults.Newf(faults.NotFound, "scenario: no facts in case %q", caseName)
	}
	return all, nil
}

// evaluateInternal answers each metric from stored values: when the metric
// fact came from a spreadsheet cell with a formula, the formula is
// re-evaluated over the stored grid with overrides substituted at the
// cells their semantic keys map to; otherwise the stored (or overridden)
// value is returned as-is.
func (e *Engine) evaluateInternal(ctx context.Context, req ScenarioRequest, out map[string]float64) error {
	facts, err := e.baseCaseFacts(ctx, req.BaseCase)
	if err != nil {
		return err
	}
	byKey := make(map[string]model.Fact, len(facts))
	for _, f := range facts {
		if _, dup := byKey[f.SemanticKey]; !dup {
			byKey[f.SemanticKey] = f
		}
	}

	for _, metric := range req.Metrics {
		fact, ok := byKey[metric]
		if !ok {
			return faults.Newf(faults.NotFound, "scenario: no stored fact for metric %q in case %q", metric, req.BaseCase)
		}
		if v, overridden := req.Overrides[metric]; overridden {
			out[metric] = v
			continue
		}

		v, err := e.recomputeFromGrid(ctx, fact, byKey, req.Overrides)
		if err != nil {
			zap.L().Debug("formula recompute unavailable, using stored value",
				zap.String("metric", metric), zap.Error(err))
			out[metric] = fact.Value
			continue
		}
		out[metric] = v
	}
	return nil
}

// recomputeFromGrid re-evaluates the cell formula behind a fact, with
// override values substituted at the cells owning the overridden keys.
func (e *Engine) recomputeFromGrid(ctx context.Context, fact model.Fact, byKey map[string]model.Fact, overrides map[string]float64) (float64, error) {
	if !strings.Contains(fact.Provenance, "!") {
		return 0, faults.Newf(faults.Query, "fact %s has no cell provenance", fact.SemanticKey)
	}
	cells, err := e.store.CellFactsByDocument(ctx, fact.DocumentID)
	if err != nil {
		return 0, err
	}
	if len(cells) == 0 {
		return 0, faults.Newf(faults.Query, "document %s has no stored cell grid", fact.DocumentID)
	}

	cellOverrides := make(map[string]float64, len(overrides))
	for key, value := range overrides {
		if src, ok := byKey[key]; ok && src.DocumentID == fact.DocumentID && strings.Contains(src.Provenance, "!") {
			cellOverrides[src.Provenance] = value
		}
	}

	return newEvaluator(cells, cellOverrides).valueOf(fact.Provenance)
}

func toResultPayload(values map[string]float64) map[string]any {
	payload := make(map[string]any, len(values))
	for k, v := range values {
		payload[k] = v
	}
	return payload
}
