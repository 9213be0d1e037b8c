package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealroom-cli/internal/classify"
	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/finance"
	"github.com/sells-group/dealroom-cli/internal/ingest"
	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/queryengine"
	"github.com/sells-group/dealroom-cli/internal/store"
	"github.com/sells-group/dealroom-cli/internal/units"
)

// dealEnv wires one deal's store and the components on top of it.
type dealEnv struct {
	store        *store.SQLiteStore
	audit        *store.AuditLog
	orchestrator *ingest.Orchestrator
	engine       *queryengine.Engine
}

// openDeal opens (and on first use creates) a deal's database and builds
// the component graph over it.
func openDeal(ctx context.Context, dealID string) (*dealEnv, error) {
	return buildDealEnv(ctx, dealID, true)
}

// openExistingDeal is the read-side variant: unknown deals stay unknown
// instead of being created on first touch.
func openExistingDeal(ctx context.Context, dealID string) (*dealEnv, error) {
	return buildDealEnv(ctx, dealID, false)
}

func buildDealEnv(ctx context.Context, dealID string, create bool) (*dealEnv, error) {
	if !create {
		// Opening would create the database file; read paths check first so
		// a typo'd deal id leaves nothing behind on disk.
		if _, err := os.Stat(store.DBPath(cfg.Store.DataDir, dealID)); err != nil {
			return nil, faults.Newf(faults.NotFound, "deal %s not found", dealID)
		}
	}
	st, err := store.Open(cfg.Store.DataDir, dealID)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	if _, err := st.GetDeal(ctx); err != nil {
		if !create || !faults.Is(err, faults.NotFound) {
			st.Close() //nolint:errcheck
			return nil, err
		}
		if err := st.UpsertDeal(ctx, model.Deal{ID: dealID, Name: dealID}); err != nil {
			st.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "create deal %s", dealID)
		}
	}

	cache, err := units.NewRefCache(cfg.Units.AliasFile)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	normalizer := units.New(cfg.Units, cache, nil)
	classifier := classify.New(cfg.Classifier)
	audit := store.NewAuditLog(cfg.Store.DataDir, dealID)

	var calc finance.Calculator
	if cfg.Calculator.BaseURL != "" {
		calc = finance.NewHTTPCalculator(cfg.Calculator)
	}

	return &dealEnv{
		store:        st,
		audit:        audit,
		orchestrator: ingest.New(st, classifier, normalizer, cfg.Ingest, cfg.PDF).WithAudit(audit),
		engine:       queryengine.New(st, calc).WithAudit(audit),
	}, nil
}

func (e *dealEnv) Close() {
	e.store.Close() //nolint:errcheck
}
