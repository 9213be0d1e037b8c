package store

import (
	"context"

	"github.com/sells-group/dealroom-cli/internal/model"
)

// FactFilter selects co-existing facts at a coordinate for conflict scans.
// Case is deliberately absent: scans compare across cases and documents.
type FactFilter struct {
	Table       model.FactTable
	SemanticKey string
	Entity      string
	Period      string
	ExcludeDoc  string // skip facts owned by this document
}

// Store is the persistence contract for one deal. A Store instance owns
// exactly one deal's database file; deals never share a connection.
type Store interface {
	// Deal and cases
	UpsertDeal(ctx context.Context, d model.Deal) error
	GetDeal(ctx context.Context) (*model.Deal, error)
	EnsureCase(ctx context.Context, name string) error
	ListCases(ctx context.Context) ([]string, error)

	// Documents
	CreateDocument(ctx context.Context, doc model.SourceDocument) error
	FinishDocument(ctx context.Context, docID string, status model.DocStatus, errMsg string, cells, tables int) error
	GetDocument(ctx context.Context, docID string) (*model.SourceDocument, error)
	ListDocuments(ctx context.Context) ([]model.SourceDocument, error)

	// Facts. UpsertFact replaces on the natural key and returns the
	// displaced prior row, which the consistency checker consumes before
	// the replacement is otherwise observable.
	UpsertFact(ctx context.Context, f model.Fact) (int64, *model.Fact, error)
	InsertCellFact(ctx context.Context, cf model.CellFact) (int64, error)
	// CellFactsByDocument returns one spreadsheet's cell grid, used by the
	// in-process formula evaluator.
	CellFactsByDocument(ctx context.Context, documentID string) ([]model.CellFact, error)
	FactsMatching(ctx context.Context, filter FactFilter) ([]model.Fact, error)
	// FactsForKey returns every period's facts for one (table, key, entity),
	// used by the consistency checker's overlapping-period pass.
	FactsForKey(ctx context.Context, table model.FactTable, semanticKey, entity string) ([]model.Fact, error)
	FactsByCase(ctx context.Context, table model.FactTable, caseName string) ([]model.Fact, error)
	// FactsByDocument returns one document's facts across all typed tables.
	FactsByDocument(ctx context.Context, documentID string) ([]model.Fact, error)

	// Conflicts
	InsertConflict(ctx context.Context, c model.DataConflict) (bool, error)
	ListConflicts(ctx context.Context, onlyOpen bool) ([]model.DataConflict, error)
	ConflictsForKeys(ctx context.Context, semanticKeys []string) ([]model.DataConflict, error)
	ResolveConflict(ctx context.Context, conflictID, note string) error

	// Scenario runs
	InsertScenarioRun(ctx context.Context, run model.ScenarioRun) error

	// Query executes caller SQL on a read-only connection. Guarding the
	// statement text is the query engine's job; this is the second layer.
	Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
