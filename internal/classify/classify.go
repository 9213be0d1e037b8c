// Package classify turns raw parsed observations into semantic labels:
// what metric a number is, what unit and period it belongs to, and which
// scenario case it came from.
package classify

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/dealroom-cli/internal/config"
	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/units"
	"github.com/sells-group/dealroom-cli/pkg/anthropic"
)

// DocContext carries document-level hints into per-observation classification.
type DocContext struct {
	Filename string
	Category string
	Label    string
	CaseName string
}

// Classifier labels one observation. Implementations must be safe for
// concurrent use; classification failure is never fatal to a document.
type Classifier interface {
	Classify(ctx context.Context, obs model.RawObservation, doc DocContext) (model.Classification, error)
}

var tableForCategory = map[string]model.FactTable{
	"production": model.TableProduction,
	"reserves":   model.TableReserves,
	"financial":  model.TableFinancial,
	"costs":      model.TableCosts,
	"fiscal":     model.TableFiscal,
	"scalar":     model.TableScalar,
}

// TableForCategory maps a semantic category onto its typed fact table.
// Unclassified (and unknown) categories have no typed table.
func TableForCategory(category string) (model.FactTable, bool) {
	t, ok := tableForCategory[category]
	return t, ok
}

// UnitClassFor returns the unit-normalization class a fact table's values
// belong to. Scalar datapoints carry heterogeneous units and are stored
// as reported.
func UnitClassFor(table model.FactTable) (units.Class, bool) {
	switch table {
	case model.TableProduction:
		return units.ClassRate, true
	case model.TableReserves:
		return units.ClassVolume, true
	case model.TableFinancial, model.TableCosts, model.TableFiscal:
		return units.ClassCurrency, true
	}
	return "", false
}

// New selects the classifier implementation from config. The claude
// provider degrades to the heuristic when no API key is configured.
func New(cfg config.ClassifierConfig) Classifier {
	if cfg.Provider == "claude" {
		if cfg.Key == "" {
			zap.L().Warn("classifier: claude provider selected but no api key configured, using heuristic")
			return NewHeuristic()
		}
		return NewClaude(anthropic.NewClient(cfg.Key), cfg.Model)
	}
	return NewHeuristic()
}
