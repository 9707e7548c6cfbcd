package model

// ScenarioItem is one free-text work line inside a remediation scenario,
// optionally reconciled against a catalog item.
type ScenarioItem struct {
	Work     string   `json:"work"`
	Quantity float64  `json:"quantity,omitempty"`
	PriceID  *int64   `json:"price_id,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	Total    *float64 `json:"total,omitempty"`
}

// Scenario is one LLM-proposed remediation option for a collision.
type Scenario struct {
	Name      string         `json:"name"`
	Rationale string         `json:"rationale,omitempty"`
	Items     []ScenarioItem `json:"items,omitempty"`
	Total     *float64       `json:"total,omitempty"`
}

// CollisionCost is the persisted cost range for one cell. Upserted on
// recompute, not versioned.
type CollisionCost struct {
	CellID    int64      `json:"cell_id"`
	Unit      string     `json:"unit,omitempty"`
	PriceMin  *float64   `json:"price_min,omitempty"`
	PriceMax  *float64   `json:"price_max,omitempty"`
	Scenarios []Scenario `json:"scenarios,omitempty"`
}

// CellRisk is the persisted risk estimate for one cell. All three
// dimensions are in [0,1]. Upserted on recompute.
type CellRisk struct {
	CellID     int64    `json:"cell_id"`
	Hazard     *float64 `json:"hazard,omitempty"`
	Importance *float64 `json:"importance,omitempty"`
	Difficulty *float64 `json:"difficulty,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
}

// CellSummary aggregates per-cell estimates for matrix export.
type CellSummary struct {
	RowIndex   int      `json:"row_index"`
	ColIndex   int      `json:"col_index"`
	PriceMin   *float64 `json:"price_min,omitempty"`
	PriceMax   *float64 `json:"price_max,omitempty"`
	Hazard     *float64 `json:"hazard,omitempty"`
	Importance *float64 `json:"importance,omitempty"`
	Difficulty *float64 `json:"difficulty,omitempty"`
}
