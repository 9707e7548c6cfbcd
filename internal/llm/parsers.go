package llm

import (
	"encoding/json"

	"github.com/sells-group/cmw-cli/internal/model"
)

// RankResult is one entry of a rerank answer: the candidate's original
// index and its LLM-assigned relevance score.
type RankResult struct {
	Index int
	Score float64
}

// Decision is one accept/reject verdict for a suggestion.
type Decision struct {
	SuggestionID int64
	PriceID      int64
	Action       model.SuggestionStatus
	Quantity     *float64
	UnitPrice    *float64
}

// CollisionEstimate is a parsed cost-scenario answer before catalog
// reconciliation.
type CollisionEstimate struct {
	Unit      string
	PriceMin  *float64
	PriceMax  *float64
	Scenarios []model.Scenario
}

// RiskEstimate is a parsed risk answer. Dimensions are clamped to [0,1].
type RiskEstimate struct {
	Hazard     *float64
	Importance *float64
	Difficulty *float64
	Rationale  string
}

// arrayField extracts an array from content: either the content is a bare
// JSON array, or an object wrapping one under any of the given field names
// (falling back to the first array-valued field).
func arrayField(content string, fields ...string) []json.RawMessage {
	var bare []json.RawMessage
	if err := json.Unmarshal([]byte(content), &bare); err == nil {
		return bare
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
		return nil
	}
	for _, f := range fields {
		var arr []json.RawMessage
		if raw, ok := wrapped[f]; ok && json.Unmarshal(raw, &arr) == nil {
			return arr
		}
	}
	for _, raw := range wrapped {
		var arr []json.RawMessage
		if json.Unmarshal(raw, &arr) == nil && arr != nil {
			return arr
		}
	}
	return nil
}

// ParseRankList decodes a rerank answer: [{index, score}] bare or wrapped.
// Malformed entries are dropped; nil when nothing valid remains.
func ParseRankList(content string) []RankResult {
	var results []RankResult
	for _, raw := range arrayField(content, "rank", "results") {
		var entry struct {
			Index *int     `json:"index"`
			Score *float64 `json:"score"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.Index == nil || entry.Score == nil {
			continue
		}
		results = append(results, RankResult{Index: *entry.Index, Score: *entry.Score})
	}
	return results
}

// ParseDecisions decodes an accept/reject answer:
// [{suggestion_id|id, price_id?, action, quantity?, unit_price?}].
func ParseDecisions(content string) []Decision {
	var decisions []Decision
	for _, raw := range arrayField(content, "decisions", "items") {
		var entry struct {
			SuggestionID *int64   `json:"suggestion_id"`
			ID           *int64   `json:"id"`
			PriceID      *int64   `json:"price_id"`
			Action       string   `json:"action"`
			Quantity     *float64 `json:"quantity"`
			UnitPrice    *float64 `json:"unit_price"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}

		d := Decision{Quantity: entry.Quantity, UnitPrice: entry.UnitPrice}
		switch entry.Action {
		case "accept":
			d.Action = model.SuggestionAccepted
		case "reject":
			d.Action = model.SuggestionRejected
		default:
			continue
		}
		if entry.SuggestionID != nil {
			d.SuggestionID = *entry.SuggestionID
		} else if entry.ID != nil {
			d.SuggestionID = *entry.ID
		}
		if entry.PriceID != nil {
			d.PriceID = *entry.PriceID
		}
		if d.SuggestionID == 0 && d.PriceID == 0 {
			continue
		}
		decisions = append(decisions, d)
	}
	return decisions
}

// ParseCollisionEstimate decodes a cost-scenario answer:
// {unit, price_min, price_max, scenarios:[{name, rationale, items:[{work, quantity?}]}]}.
// Returns nil when neither a price bound nor a scenario survives.
func ParseCollisionEstimate(content string) *CollisionEstimate {
	var entry struct {
		Unit      string   `json:"unit"`
		PriceMin  *float64 `json:"price_min"`
		PriceMax  *float64 `json:"price_max"`
		Scenarios []struct {
			Name      string `json:"name"`
			Rationale string `json:"rationale"`
			Items     []struct {
				Work     string   `json:"work"`
				Quantity *float64 `json:"quantity"`
			} `json:"items"`
		} `json:"scenarios"`
	}
	if err := json.Unmarshal([]byte(content), &entry); err != nil {
		return nil
	}

	est := &CollisionEstimate{Unit: entry.Unit, PriceMin: entry.PriceMin, PriceMax: entry.PriceMax}
	for _, s := range entry.Scenarios {
		if s.Name == "" {
			continue
		}
		scenario := model.Scenario{Name: s.Name, Rationale: s.Rationale}
		for _, it := range s.Items {
			if it.Work == "" {
				continue
			}
			item := model.ScenarioItem{Work: it.Work}
			if it.Quantity != nil && *it.Quantity > 0 {
				item.Quantity = *it.Quantity
			}
			scenario.Items = append(scenario.Items, item)
		}
		est.Scenarios = append(est.Scenarios, scenario)
	}

	if est.PriceMin == nil && est.PriceMax == nil && len(est.Scenarios) == 0 {
		return nil
	}
	return est
}

// ParseRiskEstimate decodes {hazard, importance, difficulty, rationale}.
// Dimensions outside [0,1] are clamped. Returns nil when no dimension is
// present.
func ParseRiskEstimate(content string) *RiskEstimate {
	var entry struct {
		Hazard     *float64 `json:"hazard"`
		Importance *float64 `json:"importance"`
		Difficulty *float64 `json:"difficulty"`
		Rationale  string   `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(content), &entry); err != nil {
		return nil
	}
	if entry.Hazard == nil && entry.Importance == nil && entry.Difficulty == nil {
		return nil
	}
	return &RiskEstimate{
		Hazard:     clamp01(entry.Hazard),
		Importance: clamp01(entry.Importance),
		Difficulty: clamp01(entry.Difficulty),
		Rationale:  entry.Rationale,
	}
}

func clamp01(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	if out < 0 {
		out = 0
	}
	if out > 1 {
		out = 1
	}
	return &out
}
