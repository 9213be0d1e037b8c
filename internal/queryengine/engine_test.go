package queryengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealroom-cli/internal/finance"
	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/store"
)

func newTestEngine(t *testing.T, calc finance.Calculator) (*Engine, store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), "deal-1")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.CreateDocument(ctx, model.SourceDocument{
		ID: "doc-1", Filename: "model.xlsx", Kind: model.KindSpreadsheet,
	}))
	return New(st, calc), st
}

func seedFact(t *testing.T, st store.Store, f model.Fact) {
	t.Helper()
	if f.DocumentID == "" {
		f.DocumentID = "doc-1"
	}
	if f.CaseName == "" {
		f.CaseName = model.DefaultCase
	}
	if f.Entity == "" {
		f.Entity = "asset"
	}
	require.NoError(t, st.EnsureCase(context.Background(), f.CaseName))
	_, _, err := st.UpsertFact(context.Background(), f)
	require.NoError(t, err)
}

func TestQueryFacts_NamedFilters(t *testing.T) {
	e, st := newTestEngine(t, nil)
	ctx := context.Background()
	seedFact(t, st, model.Fact{Table: model.TableProduction, SemanticKey: "oil_production", Period: "2025-01", Value: 376, Unit: "boed"})
	seedFact(t, st, model.Fact{Table: model.TableProduction, SemanticKey: "oil_production", Period: "2025-02", Value: 359, Unit: "boed"})
	seedFact(t, st, model.Fact{Table: model.TableProduction, SemanticKey: "gas_production", Period: "2025-01", Value: 1200, Unit: "boed"})

	res, err := e.QueryFacts(ctx, Filters{
		Category:    "production",
		SemanticKey: "oil_production",
		PeriodFrom:  "2025-01",
		PeriodTo:    "2025-01",
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{model.DefaultCase}, res.CasesPresent)
	assert.Equal(t, "ok", res.Status)
	assert.Empty(t, res.OpenConflicts)
}

func TestQueryFacts_RequiresTable(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.QueryFacts(context.Background(), Filters{CaseName: "base_case"})
	assert.Error(t, err)
}

func TestQuerySQL_GuardRejectsInjection(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.QuerySQL(context.Background(), "SELECT * FROM production_series; DROP TABLE production_series;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked keyword")
}

func TestQuerySQL_ReadPath(t *testing.T) {
	e, st := newTestEngine(t, nil)
	seedFact(t, st, model.Fact{Table: model.TableFinancial, SemanticKey: "revenue", Period: "2025", Value: 412.5, Unit: "usd_mm"})

	res, err := e.QuerySQL(context.Background(),
		"SELECT semantic_key, value FROM financial_series WHERE period = ?", "2025")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "revenue", res.Rows[0][0])
}

func TestQuery_ReportsOpenConflicts(t *testing.T) {
	e, st := newTestEngine(t, nil)
	ctx := context.Background()
	seedFact(t, st, model.Fact{Table: model.TableProduction, SemanticKey: "oil_production", Period: "2025-01", Value: 986, Unit: "boed"})

	_, err := st.InsertConflict(ctx, model.DataConflict{
		ID: "c-1", Kind: model.ConflictValueMismatch, Table: model.TableProduction,
		SemanticKey: "oil_production", Entity: "asset", Period: "2025-01",
		DocumentA: "doc-1", DocumentB: "doc-2", ValueA: 986, ValueB: 376,
		DiscrepancyPct: 61.9, Severity: model.SeverityCritical,
	})
	require.NoError(t, err)

	res, err := e.QueryFacts(ctx, Filters{Table: model.TableProduction})
	require.NoError(t, err)
	assert.Equal(t, "disputed", res.Status)
	require.Len(t, res.OpenConflicts, 1)
	assert.Equal(t, model.SeverityCritical, res.OpenConflicts[0].Severity)
}

func TestRouteFor(t *testing.T) {
	assert.Equal(t, model.EngineInternal, RouteFor([]string{"total_capex", "revenue"}))
	assert.Equal(t, model.EngineExternal, RouteFor([]string{"npv"}))
	assert.Equal(t, model.EngineExternal, RouteFor([]string{"revenue", "irr"}), "one TVM metric routes the whole request")
	assert.Equal(t, model.EngineExternal, RouteFor([]string{"NPV10"}))
	assert.Equal(t, model.EngineExternal, RouteFor([]string{"decline_curve"}))
	assert.Equal(t, model.EngineExternal, RouteFor([]string{"payback_years"}))
}

type stubCalc struct {
	res *finance.Result
	err error

	gotOverrides map[string]float64
	gotMetrics   []string
}

func (s *stubCalc) Evaluate(_ context.Context, _ []model.Fact, overrides map[string]float64, metrics []string) (*finance.Result, error) {
	s.gotOverrides = overrides
	s.gotMetrics = metrics
	return s.res, s.err
}

func TestRunScenario_ExternalRouting(t *testing.T) {
	npv := 412.7
	calc := &stubCalc{res: &finance.Result{NPV: &npv, Engine: "dcf-v2", Cost: 0.05}}
	e, st := newTestEngine(t, calc)
	ctx := context.Background()
	seedFact(t, st, model.Fact{Table: model.TableFinancial, SemanticKey: "revenue", Period: "2025", Value: 412.5, Unit: "usd_mm"})

	res, err := e.RunScenario(ctx, ScenarioRequest{
		Overrides: map[string]float64{"oil_commodity_price": 75},
		Metrics:   []string{"npv"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.EngineExternal, res.Engine)
	assert.InDelta(t, 412.7, res.Values["npv"], 1e-9)
	assert.Equal(t, []string{"npv"}, calc.gotMetrics)

	// The run is appended to the scenario log.
	_, rows, err := st.Query(ctx, "SELECT engine, cost_usd FROM scenario_runs")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "external", rows[0][0])
}

func TestRunScenario_InternalFormulaRecompute(t *testing.T) {
	e, st := newTestEngine(t, nil)
	ctx := context.Background()

	// price * volume = revenue, stored as a spreadsheet grid.
	price, volume := 50.0, 100.0
	for _, cf := range []model.CellFact{
		{DocumentID: "doc-1", Sheet: "Model", Address: "B1", NumericValue: &price, DataType: "numeric"},
		{DocumentID: "doc-1", Sheet: "Model", Address: "B2", NumericValue: &volume, DataType: "numeric"},
		{DocumentID: "doc-1", Sheet: "Model", Address: "B3", Formula: "B1*B2", DataType: "formula"},
	} {
		_, err := st.InsertCellFact(ctx, cf)
		require.NoError(t, err)
	}
	seedFact(t, st, model.Fact{Table: model.TableScalar, SemanticKey: "oil_commodity_price", Value: 50, Unit: "usd", Provenance: "Model!B1"})
	seedFact(t, st, model.Fact{Table: model.TableProduction, SemanticKey: "oil_production", Value: 100, Unit: "kbbl", Provenance: "Model!B2"})
	seedFact(t, st, model.Fact{Table: model.TableFinancial, SemanticKey: "revenue", Value: 5000, Unit: "usd", Provenance: "Model!B3"})

	res, err := e.RunScenario(ctx, ScenarioRequest{
		Overrides: map[string]float64{"oil_commodity_price": 75},
		Metrics:   []string{"revenue"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.EngineInternal, res.Engine)
	assert.InDelta(t, 7500, res.Values["revenue"], 1e-9, "override flows through the stored formula")
}

func TestRunScenario_InternalStoredValueFallback(t *testing.T) {
	e, st := newTestEngine(t, nil)
	seedFact(t, st, model.Fact{Table: model.TableCosts, SemanticKey: "opex", Value: 9.8, Unit: "usd", Provenance: "page 3 row 2"})

	res, err := e.RunScenario(context.Background(), ScenarioRequest{Metrics: []string{"opex"}})
	require.NoError(t, err)
	assert.InDelta(t, 9.8, res.Values["opex"], 1e-9, "no grid provenance, stored value answers")
}

func TestRunScenario_UnknownMetric(t *testing.T) {
	e, st := newTestEngine(t, nil)
	seedFact(t, st, model.Fact{Table: model.TableCosts, SemanticKey: "opex", Value: 9.8, Unit: "usd"})

	_, err := e.RunScenario(context.Background(), ScenarioRequest{Metrics: []string{"mystery_metric"}})
	assert.Error(t, err)
}

func TestRunScenario_TVMWithoutCalculator(t *testing.T) {
	e, st := newTestEngine(t, nil)
	seedFact(t, st, model.Fact{Table: model.TableFinancial, SemanticKey: "revenue", Value: 1, Unit: "usd"})

	_, err := e.RunScenario(context.Background(), ScenarioRequest{Metrics: []string{"irr"}})
	assert.Error(t, err)
}

func TestRunScenario_NoMetrics(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.RunScenario(context.Background(), ScenarioRequest{})
	assert.Error(t, err)
}
