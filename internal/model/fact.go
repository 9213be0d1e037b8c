package model

// Confidence tiers a fact's classification certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// FactTable names a typed fact table in the deal schema.
type FactTable string

const (
	TableProduction FactTable = "production_series"
	TableReserves   FactTable = "reserve_estimates"
	TableFinancial  FactTable = "financial_series"
	TableCosts      FactTable = "cost_benchmarks"
	TableFiscal     FactTable = "fiscal_terms"
	TableScalar     FactTable = "scalar_datapoints"
)

// FactTables lists every typed fact table, in schema order.
var FactTables = []FactTable{
	TableProduction, TableReserves, TableFinancial,
	TableCosts, TableFiscal, TableScalar,
}

// Fact is one normalized quantitative observation. For time-series tables
// the tuple (deal, case, entity, period, semantic key) is unique; re-ingest
// of the same coordinate replaces the row last-writer-wins.
type Fact struct {
	ID          int64      `json:"id"`
	DealID      string     `json:"deal_id"`
	DocumentID  string     `json:"document_id"`
	Table       FactTable  `json:"table"`
	CaseName    string     `json:"case_name"`
	Entity      string     `json:"entity"`
	SemanticKey string     `json:"semantic_key"`
	Period      string     `json:"period"`
	RawValue    float64    `json:"raw_value"`
	RawUnit     string     `json:"raw_unit"`
	Value       float64    `json:"value"`
	Unit        string     `json:"unit"`
	Confidence  Confidence `json:"confidence"`
	Provenance  string     `json:"provenance"`
}

// Cell data types. CellTypeCircular marks a formula cell whose cached value
// was an error sentinel: the formula text is kept for provenance but the
// cell never participates in formula re-evaluation.
const (
	CellTypeText     = "text"
	CellTypeNumeric  = "numeric"
	CellTypeFormula  = "formula"
	CellTypeCircular = "circular_formula"
)

// CellFact is one populated spreadsheet cell, unique per
// (deal, document, sheet, address).
type CellFact struct {
	ID           int64    `json:"id"`
	DealID       string   `json:"deal_id"`
	DocumentID   string   `json:"document_id"`
	Sheet        string   `json:"sheet"`
	Address      string   `json:"address"`
	Row          int      `json:"row"`
	Col          int      `json:"col"`
	RawText      string   `json:"raw_text"`
	NumericValue *float64 `json:"numeric_value,omitempty"`
	Formula      string   `json:"formula,omitempty"`
	DataType     string   `json:"data_type"`
	RowHeader    string   `json:"row_header,omitempty"`
	ColHeader    string   `json:"col_header,omitempty"`
	IsAssumption bool     `json:"is_assumption"`
	IsOutput     bool     `json:"is_output"`
	CaseTag      string   `json:"case_tag,omitempty"`
}
