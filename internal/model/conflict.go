package model

import "time"

// ConflictKind classifies a detected disagreement between two facts.
type ConflictKind string

const (
	ConflictValueMismatch     ConflictKind = "value_mismatch"
	ConflictUnitInconsistency ConflictKind = "unit_inconsistency"
	ConflictPeriodOverlap     ConflictKind = "overlapping_period_mismatch"
	ConflictMissingInSource   ConflictKind = "missing_in_source"
)

// Severity bands a conflict's discrepancy for review prioritization.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// DataConflict records one disagreement between two source documents at the
// same coordinate. Created only by the consistency checker; mutated only
// when a caller marks it resolved. Conflict rows are append-only and are
// never auto-resolved by a later overwrite of either side.
type DataConflict struct {
	ID             string       `json:"id"`
	DealID         string       `json:"deal_id"`
	Kind           ConflictKind `json:"kind"`
	Table          FactTable    `json:"table"`
	SemanticKey    string       `json:"semantic_key"`
	Entity         string       `json:"entity"`
	Period         string       `json:"period"`
	DocumentA      string       `json:"document_a"`
	DocumentB      string       `json:"document_b"`
	CaseA          string       `json:"case_a"`
	CaseB          string       `json:"case_b"`
	ValueA         float64      `json:"value_a"`
	ValueB         float64      `json:"value_b"`
	UnitA          string       `json:"unit_a"`
	UnitB          string       `json:"unit_b"`
	DiscrepancyPct float64      `json:"discrepancy_pct"`
	Severity       Severity     `json:"severity"`
	Resolved       bool         `json:"resolved"`
	ResolutionNote string       `json:"resolution_note,omitempty"`
	DetectedAt     time.Time    `json:"detected_at"`
}

// PairKey returns an order-independent identity for the conflicting pair,
// used to deduplicate repeated scans of the same two documents.
func (c DataConflict) PairKey() string {
	a, b := c.DocumentA, c.DocumentB
	if b < a {
		a, b = b, a
	}
	return a + "|" + b + "|" + string(c.Table) + "|" + c.SemanticKey + "|" + c.Entity + "|" + c.Period
}
