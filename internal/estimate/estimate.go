// Package estimate reconciles LLM cost scenarios against the price catalog
// and derives per-cell cost bounds.
package estimate

import (
	"regexp"

	"github.com/sells-group/cmw-cli/internal/llm"
	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/textutil"
)

// matchThreshold is the minimum token overlap for a scenario line to claim
// a catalog item.
const matchThreshold = 0.3

// MatchBest finds the catalog item whose name best overlaps the free-text
// work description. Overlap below the threshold returns nil.
func MatchBest(work string, prices []model.PriceRow) *model.PriceRow {
	if len(textutil.TokenSet(work)) == 0 {
		return nil
	}

	var best *model.PriceRow
	bestScore := 0.0
	for i := range prices {
		score := textutil.Overlap(work, prices[i].Name)
		if score > bestScore {
			bestScore = score
			best = &prices[i]
		}
	}
	if bestScore < matchThreshold {
		return nil
	}
	return best
}

// measureRe finds an inline quantity with a unit stem, e.g. "10 м2" or
// "2,5 м3".
var measureRe = regexp.MustCompile(`([0-9]+(?:[.,][0-9]+)?)\s*(шт|компл|м2|м3|п\.?\s?м|м\b)`)

// lineQuantity resolves a scenario line's quantity: an explicit value wins,
// then a measure embedded in the work text, then one unit as the
// conservative floor.
func lineQuantity(quantity float64, work string) float64 {
	if quantity > 0 {
		return quantity
	}
	if m := measureRe.FindStringSubmatch(textutil.Normalize(work)); m != nil {
		if v, ok := textutil.ParsePrice(m[1]); ok && v > 0 {
			return v
		}
	}
	return 1
}

// Reconcile attaches catalog matches to every scenario line item, computes
// per-scenario totals, and derives the cell-level cost range. Scenario
// totals override the provider's raw price bounds when at least one line
// matched; otherwise the provider bounds pass through.
func Reconcile(cellID int64, est *llm.CollisionEstimate, prices []model.PriceRow) *model.CollisionCost {
	if est == nil {
		return nil
	}

	cost := &model.CollisionCost{
		CellID:   cellID,
		Unit:     est.Unit,
		PriceMin: est.PriceMin,
		PriceMax: est.PriceMax,
	}

	var totals []float64
	for _, sc := range est.Scenarios {
		scenario := model.Scenario{Name: sc.Name, Rationale: sc.Rationale}
		scenarioTotal := 0.0
		matched := false
		for _, item := range sc.Items {
			line := model.ScenarioItem{Work: item.Work, Quantity: item.Quantity}
			if p := MatchBest(item.Work, prices); p != nil {
				id := p.ID
				price := p.Price
				qty := lineQuantity(item.Quantity, item.Work)
				total := price * qty
				line.PriceID = &id
				line.Unit = p.Unit
				line.Price = &price
				line.Quantity = qty
				line.Total = &total
				scenarioTotal += total
				matched = true
			}
			scenario.Items = append(scenario.Items, line)
		}
		if matched {
			t := scenarioTotal
			scenario.Total = &t
			totals = append(totals, t)
		}
		cost.Scenarios = append(cost.Scenarios, scenario)
	}

	if len(totals) > 0 {
		minT, maxT := totals[0], totals[0]
		for _, t := range totals[1:] {
			if t < minT {
				minT = t
			}
			if t > maxT {
				maxT = t
			}
		}
		cost.PriceMin = &minT
		cost.PriceMax = &maxT
	}

	return cost
}
