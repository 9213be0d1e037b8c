package consistency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/store"
)

func newTestChecker(t *testing.T) (*Checker, store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), "deal-1")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st), st
}

func addDoc(t *testing.T, st store.Store, id string) {
	t.Helper()
	require.NoError(t, st.CreateDocument(context.Background(), model.SourceDocument{
		ID: id, Filename: id + ".xlsx", Kind: model.KindSpreadsheet,
	}))
}

func productionFact(doc string, value float64, period string) model.Fact {
	return model.Fact{
		Table:       model.TableProduction,
		DocumentID:  doc,
		CaseName:    "base_case",
		Entity:      "field_a",
		SemanticKey: "oil_production",
		Period:      period,
		Value:       value,
		Unit:        "kbbl",
		Confidence:  model.ConfidenceHigh,
	}
}

// insert upserts and pairs the fact with whatever row it displaced, the
// same shape the orchestrator hands to Scan.
func insert(t *testing.T, st store.Store, f model.Fact) Inserted {
	t.Helper()
	_, prior, err := st.UpsertFact(context.Background(), f)
	require.NoError(t, err)
	return Inserted{Fact: f, Prior: prior}
}

func TestScan_DisplacedValueMismatchCritical(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "model-a")
	addDoc(t, st, "model-b")

	insert(t, st, productionFact("model-a", 376, "2025-01"))
	// Same coordinate from a second source displaces the first row; the
	// conflict is detected against the displaced value, not the history.
	in := insert(t, st, productionFact("model-b", 986, "2025-01"))
	require.NotNil(t, in.Prior)
	assert.Equal(t, "model-a", in.Prior.DocumentID)

	res, err := checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)

	conflicts, err := st.ListConflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, model.ConflictValueMismatch, c.Kind)
	assert.Equal(t, model.SeverityCritical, c.Severity)
	assert.InDelta(t, 61.866, c.DiscrepancyPct, 0.01)
	assert.ElementsMatch(t, []string{"model-a", "model-b"}, []string{c.DocumentA, c.DocumentB})
}

func TestScan_RescanDoesNotDuplicate(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "model-a")
	addDoc(t, st, "model-b")

	insert(t, st, productionFact("model-a", 376, "2025-01"))
	in := insert(t, st, productionFact("model-b", 986, "2025-01"))

	for i := 0; i < 3; i++ {
		_, err := checker.Scan(ctx, []Inserted{in})
		require.NoError(t, err)
	}

	conflicts, err := st.ListConflicts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
}

func TestScan_RevisedValueConflictsAnew(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "model-a")
	addDoc(t, st, "model-b")

	insert(t, st, productionFact("model-a", 376, "2025-01"))
	in := insert(t, st, productionFact("model-b", 986, "2025-01"))
	_, err := checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)

	// The first source re-ingested with a revised value displaces the
	// second source's row: a different pair of values, a fresh conflict.
	in = insert(t, st, productionFact("model-a", 400, "2025-01"))
	_, err = checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)

	conflicts, err := st.ListConflicts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, conflicts, 2)
}

func TestScan_OwnHistoryIsNotAConflict(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "model-a")

	insert(t, st, productionFact("model-a", 376, "2025-01"))
	in := insert(t, st, productionFact("model-a", 400, "2025-01"))
	require.NotNil(t, in.Prior)

	res, err := checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)
	assert.Zero(t, res.Conflicts, "a document replacing its own value is not a disagreement")
}

func TestScan_SeverityBoundaries(t *testing.T) {
	// Both band edges land in WARNING.
	assert.Equal(t, model.SeverityWarning, Band(5.0))
	assert.Equal(t, model.SeverityWarning, Band(20.0))
	assert.Equal(t, model.SeverityInfo, Band(4.999))
	assert.Equal(t, model.SeverityCritical, Band(20.001))
}

func TestDiscrepancy(t *testing.T) {
	assert.InDelta(t, 61.866, Discrepancy(376, 986), 0.01)
	assert.InDelta(t, 61.866, Discrepancy(986, 376), 0.01, "order-independent")
	assert.InDelta(t, 100, Discrepancy(0, 5), 1e-9)
	assert.Equal(t, 0.0, Discrepancy(0, 0), "epsilon floor keeps zero pairs finite")
}

func TestScan_UnitMismatchBeatsNumericSimilarity(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "model-a")
	addDoc(t, st, "model-b")

	insert(t, st, productionFact("model-a", 376, "2025-01"))
	b := productionFact("model-b", 376, "2025-01")
	b.Unit = "boed"
	in := insert(t, st, b)

	res, err := checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)
	require.Equal(t, 1, res.Conflicts)

	conflicts, err := st.ListConflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictUnitInconsistency, conflicts[0].Kind)
	assert.Equal(t, model.SeverityCritical, conflicts[0].Severity)
}

func TestScan_EqualValuesNoConflict(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "model-a")
	addDoc(t, st, "model-b")

	insert(t, st, productionFact("model-a", 376, "2025-01"))
	in := insert(t, st, productionFact("model-b", 376, "2025-01"))

	res, err := checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Compared)
	assert.Zero(t, res.Conflicts)
}

func TestScan_CrossCaseComparison(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "model-a")

	mgmt := productionFact("model-a", 986, "2025-01")
	mgmt.CaseName = "management_case"
	insert(t, st, mgmt)

	cpr := productionFact("model-a", 376, "2025-01")
	cpr.CaseName = "cpr_case"
	in := insert(t, st, cpr)
	require.Nil(t, in.Prior, "different cases are different coordinates")

	res, err := checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts, "same document, different cases still compared")

	conflicts, err := st.ListConflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.ElementsMatch(t,
		[]string{"management_case", "cpr_case"},
		[]string{conflicts[0].CaseA, conflicts[0].CaseB})
}

func TestScan_MonthExceedingYearTotal(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "annual-report")
	addDoc(t, st, "monthly-export")

	insert(t, st, productionFact("annual-report", 4000, "2025"))
	in := insert(t, st, productionFact("monthly-export", 4500, "2025-03"))

	res, err := checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)
	require.Equal(t, 1, res.Conflicts)

	conflicts, err := st.ListConflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictPeriodOverlap, conflicts[0].Kind)
	assert.Equal(t, "2025-03/2025", conflicts[0].Period)
}

func TestScan_MonthWithinYearTotalIsFine(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "annual-report")
	addDoc(t, st, "monthly-export")

	insert(t, st, productionFact("annual-report", 4000, "2025"))
	in := insert(t, st, productionFact("monthly-export", 350, "2025-03"))

	res, err := checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)
	assert.Zero(t, res.Conflicts)
}

func TestCompareDocuments_MissingInSource(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "model-a")
	addDoc(t, st, "model-b")

	insert(t, st, productionFact("model-a", 376, "2025-01"))
	gas := productionFact("model-a", 1200, "2025-02")
	gas.SemanticKey = "gas_production"
	gas.Unit = "mcf"
	insert(t, st, gas)

	b := productionFact("model-b", 380, "2025-03")
	insert(t, st, b)

	conflicts, err := checker.CompareDocuments(ctx, "model-a", "model-b")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictMissingInSource, conflicts[0].Kind)
	assert.Equal(t, "gas_production", conflicts[0].SemanticKey)
	assert.Equal(t, "model-b", conflicts[0].DocumentB)
}

func TestScan_NoProactiveMissingInSource(t *testing.T) {
	checker, st := newTestChecker(t)
	ctx := context.Background()
	addDoc(t, st, "model-a")

	in := insert(t, st, productionFact("model-a", 376, "2025-01"))
	res, err := checker.Scan(ctx, []Inserted{in})
	require.NoError(t, err)
	assert.Zero(t, res.Conflicts, "a fact with no counterpart is not a conflict")
}
