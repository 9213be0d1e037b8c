package model

import (
	"path/filepath"
	"strings"
	"time"
)

// DocKind identifies the parser family for a source file.
type DocKind string

const (
	KindSpreadsheet DocKind = "spreadsheet"
	KindPDF         DocKind = "pdf"
	KindCSV         DocKind = "csv"
)

// KindForPath maps a file extension to its parser family. Returns "" for
// extensions no parser handles.
func KindForPath(path string) DocKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return KindSpreadsheet
	case ".pdf":
		return KindPDF
	case ".csv", ".txt":
		return KindCSV
	default:
		return ""
	}
}

// DocStatus is the terminal-state machine for a source document.
type DocStatus string

const (
	DocIngesting DocStatus = "ingesting"
	DocComplete  DocStatus = "complete"
	DocFailed    DocStatus = "failed"
)

// IngestPhase tracks where a file is inside the per-file pipeline.
type IngestPhase string

const (
	PhasePending          IngestPhase = "pending"
	PhaseParsing          IngestPhase = "parsing"
	PhaseClassifying      IngestPhase = "classifying"
	PhaseNormalizing      IngestPhase = "normalizing"
	PhasePersisting       IngestPhase = "persisting"
	PhaseConflictScanning IngestPhase = "conflict_scanning"
	PhaseComplete         IngestPhase = "complete"
	PhaseFailed           IngestPhase = "failed"
)

// SourceDocument is one ingested file. Immutable once status is complete,
// except for resolved flags on descendant conflicts.
type SourceDocument struct {
	ID         string    `json:"id"`
	DealID     string    `json:"deal_id"`
	Filename   string    `json:"filename"`
	FolderPath string    `json:"folder_path"`
	Kind       DocKind   `json:"kind"`
	Category   string    `json:"category"`
	Label      string    `json:"label"`
	CaseName   string    `json:"case_name"`
	RunID      string    `json:"run_id"`
	Status     DocStatus `json:"status"`
	CellCount  int       `json:"cell_count"`
	TableCount int       `json:"table_count"`
	Error      string    `json:"error,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}
