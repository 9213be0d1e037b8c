// Package consistency detects disagreements between source documents: the
// same metric coordinate reported with different values or units, and
// overlapping-period inconsistencies. It runs after each document's facts
// are committed and writes DataConflict rows; it never mutates facts.
package consistency

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/store"
)

// Epsilon floors the discrepancy denominator so near-zero pairs do not
// produce infinite percentages.
const Epsilon = 1e-9

// valueTolerance treats floating-point round-trip noise as agreement.
const valueTolerance = 1e-9

// Discrepancy returns the relative disagreement between two values as a
// percentage of the larger magnitude.
func Discrepancy(a, b float64) float64 {
	denom := math.Max(math.Max(math.Abs(a), math.Abs(b)), Epsilon)
	return math.Abs(a-b) / denom * 100
}

// Band maps a discrepancy percentage onto a severity. Both boundaries
// (exactly 5 and exactly 20) fall in WARNING.
func Band(discrepancyPct float64) model.Severity {
	switch {
	case discrepancyPct > 20:
		return model.SeverityCritical
	case discrepancyPct >= 5:
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}

// Checker scans committed facts for cross-source disagreements.
type Checker struct {
	store store.Store
}

// New builds a checker over one deal's store.
func New(s store.Store) *Checker {
	return &Checker{store: s}
}

// Inserted pairs a just-written fact with the row its upsert displaced.
// Prior is nil when the coordinate was new. The displaced row is the only
// surviving record of a different document's value at the same coordinate,
// which is why the scan must consume it rather than re-query the table.
type Inserted struct {
	Fact  model.Fact
	Prior *model.Fact
}

// ScanResult summarizes one scan invocation.
type ScanResult struct {
	Compared  int
	Conflicts int
}

// Scan detects disagreements for a batch of freshly committed facts. Three
// passes per fact: against the displaced prior row when it came from a
// different document (same coordinate, last-writer-wins replacement);
// against co-existing rows at the same (key, entity, period) in other
// cases; and against coarser/finer overlapping periods. Identical pairs
// rescanned later are deduplicated by the store; a changed value produces
// a fresh conflict row.
func (c *Checker) Scan(ctx context.Context, inserted []Inserted) (ScanResult, error) {
	var result ScanResult
	for _, in := range inserted {
		f := in.Fact

		// A replaced value from another source is a disagreement between
		// co-existing documents, not the value's own history.
		if in.Prior != nil && in.Prior.DocumentID != f.DocumentID {
			result.Compared++
			wrote, err := c.record(ctx, comparePair(f, *in.Prior))
			if err != nil {
				return result, err
			}
			if wrote {
				result.Conflicts++
			}
		}

		others, err := c.store.FactsMatching(ctx, store.FactFilter{
			Table:       f.Table,
			SemanticKey: f.SemanticKey,
			Entity:      f.Entity,
			Period:      f.Period,
		})
		if err != nil {
			return result, err
		}
		for _, o := range others {
			if o.DocumentID == f.DocumentID && o.CaseName == f.CaseName {
				continue // the fact's own row
			}
			result.Compared++
			wrote, err := c.record(ctx, comparePair(f, o))
			if err != nil {
				return result, err
			}
			if wrote {
				result.Conflicts++
			}
		}

		n, err := c.scanOverlappingPeriods(ctx, f)
		if err != nil {
			return result, err
		}
		result.Conflicts += n
	}
	if result.Conflicts > 0 {
		zap.L().Info("consistency scan found conflicts",
			zap.Int("compared", result.Compared),
			zap.Int("conflicts", result.Conflicts),
		)
	}
	return result, nil
}

// comparePair classifies one disagreement. Sides are ordered by document
// then case so scanning the pair from either end produces an identical row
// for the store's deduplication. Unit mismatch wins over numeric
// similarity: values in different units are incomparable no matter how
// close they look.
func comparePair(a, b model.Fact) *model.DataConflict {
	if b.DocumentID+"|"+b.CaseName < a.DocumentID+"|"+a.CaseName {
		a, b = b, a
	}
	if a.Unit != b.Unit && a.Unit != "" && b.Unit != "" {
		c := newConflict(a, b, model.ConflictUnitInconsistency)
		c.DiscrepancyPct = 0
		c.Severity = model.SeverityCritical
		return &c
	}
	pct := Discrepancy(a.Value, b.Value)
	if math.Abs(a.Value-b.Value) <= valueTolerance {
		return nil
	}
	c := newConflict(a, b, model.ConflictValueMismatch)
	c.DiscrepancyPct = pct
	c.Severity = Band(pct)
	return &c
}

// scanOverlappingPeriods flags a finer-grained quantity that exceeds the
// coarser total covering it (a month reported above its year, a day above
// its month). Same-granularity overlap is exact equality and is handled by
// the main pass.
func (c *Checker) scanOverlappingPeriods(ctx context.Context, f model.Fact) (int, error) {
	if f.Period == "" {
		return 0, nil
	}
	all, err := c.store.FactsForKey(ctx, f.Table, f.SemanticKey, f.Entity)
	if err != nil {
		return 0, err
	}

	wrote := 0
	for _, o := range all {
		if o.Period == f.Period || o.Unit != f.Unit {
			continue
		}
		fine, coarse := f, o
		if len(fine.Period) < len(coarse.Period) {
			fine, coarse = coarse, fine
		}
		if !strings.HasPrefix(fine.Period, coarse.Period+"-") {
			continue
		}
		if fine.Value <= coarse.Value+valueTolerance {
			continue
		}
		conflict := newConflict(fine, coarse, model.ConflictPeriodOverlap)
		conflict.Period = fine.Period + "/" + coarse.Period
		conflict.DiscrepancyPct = Discrepancy(fine.Value, coarse.Value)
		conflict.Severity = Band(conflict.DiscrepancyPct)
		ok, err := c.record(ctx, &conflict)
		if err != nil {
			return wrote, err
		}
		if ok {
			wrote++
		}
	}
	return wrote, nil
}

// CompareDocuments raises missing_in_source conflicts for metrics present
// in one named document but absent from the other. This check is only run
// on explicit request, never proactively during ingestion.
func (c *Checker) CompareDocuments(ctx context.Context, docA, docB string) ([]model.DataConflict, error) {
	factsA, err := c.store.FactsByDocument(ctx, docA)
	if err != nil {
		return nil, err
	}
	factsB, err := c.store.FactsByDocument(ctx, docB)
	if err != nil {
		return nil, err
	}

	var conflicts []model.DataConflict
	conflicts = append(conflicts, missingFrom(factsA, factsB, docB)...)
	conflicts = append(conflicts, missingFrom(factsB, factsA, docA)...)
	for i := range conflicts {
		if _, err := c.record(ctx, &conflicts[i]); err != nil {
			return conflicts, err
		}
	}
	return conflicts, nil
}

// missingFrom returns one conflict per semantic key that has facts in
// `present` but none in `absent`.
func missingFrom(present, absent []model.Fact, absentDoc string) []model.DataConflict {
	covered := make(map[string]bool, len(absent))
	for _, f := range absent {
		covered[string(f.Table)+"|"+f.SemanticKey] = true
	}

	seen := make(map[string]bool)
	var out []model.DataConflict
	for _, f := range present {
		key := string(f.Table) + "|" + f.SemanticKey
		if covered[key] || seen[key] {
			continue
		}
		seen[key] = true
		c := newConflict(f, model.Fact{DocumentID: absentDoc}, model.ConflictMissingInSource)
		c.Severity = model.SeverityWarning
		out = append(out, c)
	}
	return out
}

func newConflict(a, b model.Fact, kind model.ConflictKind) model.DataConflict {
	return model.DataConflict{
		ID:          uuid.NewString(),
		DealID:      a.DealID,
		Kind:        kind,
		Table:       a.Table,
		SemanticKey: a.SemanticKey,
		Entity:      a.Entity,
		Period:      a.Period,
		DocumentA:   a.DocumentID,
		DocumentB:   b.DocumentID,
		CaseA:       a.CaseName,
		CaseB:       b.CaseName,
		ValueA:      a.Value,
		ValueB:      b.Value,
		UnitA:       a.Unit,
		UnitB:       b.Unit,
		DetectedAt:  time.Now().UTC(),
	}
}

func (c *Checker) record(ctx context.Context, conflict *model.DataConflict) (bool, error) {
	if conflict == nil {
		return false, nil
	}
	return c.store.InsertConflict(ctx, *conflict)
}
