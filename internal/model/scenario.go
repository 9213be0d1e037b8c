package model

import "time"

// ScenarioEngine names which engine answered a what-if request.
type ScenarioEngine string

const (
	EngineInternal ScenarioEngine = "internal"
	EngineExternal ScenarioEngine = "external"
)

// ScenarioRun is one derived/what-if computation, append-only.
type ScenarioRun struct {
	ID        string             `json:"id"`
	DealID    string             `json:"deal_id"`
	BaseCase  string             `json:"base_case"`
	Overrides map[string]float64 `json:"overrides"`
	Metrics   []string           `json:"metrics"`
	Engine    ScenarioEngine     `json:"engine"`
	Summary   string             `json:"summary"`
	Result    map[string]any     `json:"result"`
	CostUSD   float64            `json:"cost_usd"`
	CreatedAt time.Time          `json:"created_at"`
}
