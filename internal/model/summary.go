package model

import "time"

// RunStatus is the terminal state of a batch ingestion run.
type RunStatus string

const (
	RunComplete RunStatus = "complete"
	RunPartial  RunStatus = "partial"
	RunFailed   RunStatus = "failed"
)

// FileResult summarizes one file's ingestion inside a batch run.
type FileResult struct {
	Path        string      `json:"path"`
	DocumentID  string      `json:"document_id,omitempty"`
	Status      DocStatus   `json:"status"`
	Phase       IngestPhase `json:"phase"`
	FactsAdded  int         `json:"facts_added"`
	CellsAdded  int         `json:"cells_added"`
	RowsSkipped int         `json:"rows_skipped"`
	Conflicts   int         `json:"conflicts"`
	Error       string      `json:"error,omitempty"`
	SkipReasons []string    `json:"skip_reasons,omitempty"`
	Duration    int64       `json:"duration_ms"`
}

// IngestSummary is the run-level accumulation over a batch. Nothing is a
// silent partial success: every dropped row, skipped conversion, and
// detected conflict is counted here.
type IngestSummary struct {
	RunID          string       `json:"run_id"`
	DealID         string       `json:"deal_id"`
	Status         RunStatus    `json:"status"`
	FilesListed    int          `json:"files_listed"`
	FilesIngested  int          `json:"files_ingested"`
	FilesFailed    int          `json:"files_failed"`
	FilesSkipped   int          `json:"files_skipped"`
	FactsAdded     int          `json:"facts_added"`
	CellsAdded     int          `json:"cells_added"`
	RowsSkipped    int          `json:"rows_skipped"`
	ConflictsFound int          `json:"conflicts_found"`
	Files          []FileResult `json:"files"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
}

// Add folds one file's result into the run summary.
func (s *IngestSummary) Add(fr FileResult) {
	s.Files = append(s.Files, fr)
	switch fr.Status {
	case DocComplete:
		s.FilesIngested++
	case DocFailed:
		s.FilesFailed++
	}
	s.FactsAdded += fr.FactsAdded
	s.CellsAdded += fr.CellsAdded
	s.RowsSkipped += fr.RowsSkipped
	s.ConflictsFound += fr.Conflicts
}

// QueryResult is a structured query response. CasesPresent and OpenConflicts
// are always populated so a consumer is never shown disputed data as settled.
type QueryResult struct {
	Columns       []string       `json:"columns"`
	Rows          [][]any        `json:"rows"`
	CasesPresent  []string       `json:"cases_present"`
	OpenConflicts []DataConflict `json:"open_conflicts"`
	Status        string         `json:"status"`
}
