// Package model defines the domain types shared across the workbench:
// the price catalog, the collision matrix, suggestions and their audit
// trail, cost/risk estimates, and background tasks.
package model

import "time"

// PriceRow is a single catalog item from an imported price list.
// Rows are immutable once inserted except on re-import, which upserts
// keyed by (name, unit, source_page).
type PriceRow struct {
	ID         int64     `json:"id"`
	Category   string    `json:"category,omitempty"`
	Name       string    `json:"name"`
	Unit       string    `json:"unit,omitempty"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency,omitempty"`
	Source     string    `json:"source,omitempty"`
	SourcePage string    `json:"source_page,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CostCategory buckets a collision cost into severity bands.
type CostCategory string

const (
	CostMinor  CostCategory = "Minor"
	CostMedium CostCategory = "Medium"
	CostMajor  CostCategory = "Major"
)

// CategoryByCost maps an estimated cost to its severity band.
// Returns "" when no cost is known.
func CategoryByCost(cost *float64) CostCategory {
	if cost == nil {
		return ""
	}
	switch {
	case *cost <= 50_000:
		return CostMinor
	case *cost <= 500_000:
		return CostMedium
	default:
		return CostMajor
	}
}
