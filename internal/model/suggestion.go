package model

import "time"

// SuggestionStatus tracks the review state of a suggestion.
type SuggestionStatus string

const (
	SuggestionProposed SuggestionStatus = "proposed"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// SuggestionKind names the target variant a suggestion belongs to.
type SuggestionKind string

const (
	KindDiscipline SuggestionKind = "discipline"
	KindElement    SuggestionKind = "element"
	KindCell       SuggestionKind = "cell"
)

// MethodHeuristicLLM is the generation method recorded on every built
// suggestion. The tag reflects pipeline capability, not whether the LLM
// step actually ran for that candidate.
const MethodHeuristicLLM = "heuristic+llm"

// DisciplineSuggestion links a catalog item to a discipline.
// Unique per (discipline, price_id).
type DisciplineSuggestion struct {
	ID         int64            `json:"id"`
	Discipline string           `json:"discipline"`
	PriceID    int64            `json:"price_id"`
	Score      *float64         `json:"score,omitempty"`
	Method     string           `json:"method"`
	Status     SuggestionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ElementSuggestion links a catalog item to an element target.
// Unique per (grp, element, axis, price_id).
type ElementSuggestion struct {
	ID        int64            `json:"id"`
	Group     string           `json:"grp"`
	Element   string           `json:"element"`
	Axis      Axis             `json:"axis"`
	PriceID   int64            `json:"price_id"`
	Score     *float64         `json:"score,omitempty"`
	Method    string           `json:"method"`
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`

	// Denormalized catalog fields filled by list queries.
	PriceName     string  `json:"price_name,omitempty"`
	PriceUnit     string  `json:"price_unit,omitempty"`
	PriceCategory string  `json:"price_category,omitempty"`
	Price         float64 `json:"price,omitempty"`
}

// CellSuggestion links a catalog item to a matrix cell with an optional
// informational work-type classification.
// Unique per (cell_id, price_id, work_type).
type CellSuggestion struct {
	ID        int64            `json:"id"`
	CellID    int64            `json:"cell_id"`
	WorkType  string           `json:"work_type,omitempty"`
	PriceID   int64            `json:"price_id"`
	Score     *float64         `json:"score,omitempty"`
	Method    string           `json:"method"`
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// SuggestionEvent is an append-only audit record of a status transition
// away from proposed, with a denormalized snapshot of target and catalog
// provenance. Events are never mutated or deleted.
type SuggestionEvent struct {
	ID           string           `json:"id"`
	Kind         SuggestionKind   `json:"kind"`
	SuggestionID int64            `json:"suggestion_id"`
	Action       SuggestionStatus `json:"action"`
	PriceID      int64            `json:"price_id"`
	Group        string           `json:"grp,omitempty"`
	Element      string           `json:"element,omitempty"`
	Axis         Axis             `json:"axis,omitempty"`
	Source       string           `json:"source,omitempty"`
	SourcePage   string           `json:"source_page,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}
