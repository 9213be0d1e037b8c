package model

// RawObservation is the common intermediate shape all three source parsers
// emit: one candidate datapoint with enough surrounding context for the
// classifier to label it.
type RawObservation struct {
	// Location is free-text provenance: "Sheet1!B12", "page 3 row 2", "line 14".
	Location       string   `json:"location"`
	Sheet          string   `json:"sheet,omitempty"`
	Address        string   `json:"address,omitempty"`
	Row            int      `json:"row"`
	Col            int      `json:"col"`
	RawText        string   `json:"raw_text"`
	NumericValue   *float64 `json:"numeric_value,omitempty"`
	FormulaText    string   `json:"formula_text,omitempty"`
	ContextHeaders []string `json:"context_headers,omitempty"`
	// Circular marks cells whose cached value is an error sentinel. The
	// formula text is retained but the cell is excluded from re-evaluation.
	Circular bool `json:"circular,omitempty"`
}

// Classification is the classifier adapter's verdict for one observation.
type Classification struct {
	SemanticKey  string     `json:"semantic_key"`
	Category     string     `json:"category"`
	Table        FactTable  `json:"table"`
	Unit         string     `json:"unit,omitempty"`
	Period       string     `json:"period,omitempty"`
	Entity       string     `json:"entity,omitempty"`
	CaseName     string     `json:"case_name,omitempty"`
	IsAssumption bool       `json:"is_assumption"`
	IsOutput     bool       `json:"is_output"`
	Confidence   Confidence `json:"confidence"`
}

// CategoryUnclassified is the heuristic fallback's verdict when nothing
// matches. Unclassified observations are persisted as cell facts only.
const CategoryUnclassified = "unclassified"
