package store

import (
	"context"

	"github.com/sells-group/dealroom-cli/internal/model"
)

// Typed upsert entry points, one per fact table. Each stamps the table and
// delegates to UpsertFact, so call sites can't write a record to the wrong
// table by mistyping a string.

func (s *SQLiteStore) UpsertProduction(ctx context.Context, f model.Fact) (int64, *model.Fact, error) {
	f.Table = model.TableProduction
	return s.UpsertFact(ctx, f)
}

func (s *SQLiteStore) UpsertReserve(ctx context.Context, f model.Fact) (int64, *model.Fact, error) {
	f.Table = model.TableReserves
	return s.UpsertFact(ctx, f)
}

func (s *SQLiteStore) UpsertFinancial(ctx context.Context, f model.Fact) (int64, *model.Fact, error) {
	f.Table = model.TableFinancial
	return s.UpsertFact(ctx, f)
}

func (s *SQLiteStore) UpsertCostBenchmark(ctx context.Context, f model.Fact) (int64, *model.Fact, error) {
	f.Table = model.TableCosts
	return s.UpsertFact(ctx, f)
}

func (s *SQLiteStore) UpsertFiscalTerm(ctx context.Context, f model.Fact) (int64, *model.Fact, error) {
	f.Table = model.TableFiscal
	return s.UpsertFact(ctx, f)
}

func (s *SQLiteStore) UpsertScalar(ctx context.Context, f model.Fact) (int64, *model.Fact, error) {
	f.Table = model.TableScalar
	return s.UpsertFact(ctx, f)
}
