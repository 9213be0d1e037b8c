package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealroom-cli/internal/model"
)

func classifyObs(t *testing.T, obs model.RawObservation, doc DocContext) model.Classification {
	t.Helper()
	cl, err := NewHeuristic().Classify(context.Background(), obs, doc)
	require.NoError(t, err)
	return cl
}

func TestHeuristic_OilProduction(t *testing.T) {
	cl := classifyObs(t, model.RawObservation{
		RawText:        "376",
		ContextHeaders: []string{"Oil Production (kbbl)", "Jan 2025"},
	}, DocContext{Filename: "field_model.xlsx"})

	assert.Equal(t, "oil_production", cl.SemanticKey)
	assert.Equal(t, "production", cl.Category)
	assert.Equal(t, model.TableProduction, cl.Table)
	assert.Equal(t, "kbbl", cl.Unit)
	assert.Equal(t, "2025-01", cl.Period)
	assert.Equal(t, model.ConfidenceHigh, cl.Confidence)
}

func TestHeuristic_GasStreamSplit(t *testing.T) {
	cl := classifyObs(t, model.RawObservation{
		RawText:        "1200",
		ContextHeaders: []string{"Gas Production (MMcf)", "2025-01"},
	}, DocContext{})

	assert.Equal(t, "gas_production", cl.SemanticKey)
	assert.Equal(t, "mmcf", cl.Unit)
}

func TestHeuristic_FiscalIsAssumption(t *testing.T) {
	cl := classifyObs(t, model.RawObservation{
		RawText:        "12.5%",
		ContextHeaders: []string{"Royalty Rate"},
	}, DocContext{})

	assert.Equal(t, "royalty_rate", cl.SemanticKey)
	assert.Equal(t, model.TableFiscal, cl.Table)
	assert.True(t, cl.IsAssumption)
	assert.False(t, cl.IsOutput)
}

func TestHeuristic_FormulaCellIsOutput(t *testing.T) {
	cl := classifyObs(t, model.RawObservation{
		RawText:        "4510",
		FormulaText:    "SUM(B2:B13)",
		ContextHeaders: []string{"NPV10 ($MM)"},
	}, DocContext{})

	assert.Equal(t, "npv", cl.SemanticKey)
	assert.True(t, cl.IsOutput)
	assert.False(t, cl.IsAssumption)
}

func TestHeuristic_CaseDetection(t *testing.T) {
	cl := classifyObs(t, model.RawObservation{
		RawText:        "986",
		ContextHeaders: []string{"Oil Production", "Management Case"},
	}, DocContext{CaseName: "base_case"})
	assert.Equal(t, "management_case", cl.CaseName)

	cl = classifyObs(t, model.RawObservation{
		RawText:        "986",
		ContextHeaders: []string{"Oil Production"},
	}, DocContext{CaseName: "cpr_case"})
	assert.Equal(t, "cpr_case", cl.CaseName)
}

func TestHeuristic_UnmatchedIsUnclassified(t *testing.T) {
	cl := classifyObs(t, model.RawObservation{
		RawText:        "42",
		ContextHeaders: []string{"Row 7", "Misc"},
	}, DocContext{Filename: "scan001.pdf"})

	assert.Equal(t, model.CategoryUnclassified, cl.Category)
	assert.Empty(t, cl.SemanticKey)
	assert.Equal(t, model.ConfidenceLow, cl.Confidence)
}

func TestHeuristic_EntityFromDocLabel(t *testing.T) {
	cl := classifyObs(t, model.RawObservation{
		RawText:        "12.4",
		ContextHeaders: []string{"Proved Reserves (MMbbl)"},
	}, DocContext{Label: "Permian Field A"})

	assert.Equal(t, "oil_reserves", cl.SemanticKey)
	assert.Equal(t, "Permian Field A", cl.Entity)
}

func TestTableForCategory(t *testing.T) {
	table, ok := TableForCategory("costs")
	require.True(t, ok)
	assert.Equal(t, model.TableCosts, table)

	_, ok = TableForCategory(model.CategoryUnclassified)
	assert.False(t, ok)
}

func TestUnitClassFor(t *testing.T) {
	_, ok := UnitClassFor(model.TableScalar)
	assert.False(t, ok, "scalar datapoints are stored as reported")

	class, ok := UnitClassFor(model.TableProduction)
	require.True(t, ok)
	assert.Equal(t, "rate", string(class))
}
