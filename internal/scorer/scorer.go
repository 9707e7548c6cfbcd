package scorer

import (
	"strings"

	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/textutil"
)

// Scorer computes heuristic relevance of catalog items against matrix
// targets. Scores are non-negative; ties are broken later by stable sort.
type Scorer struct {
	tables *Tables
}

// New creates a Scorer. Nil tables fall back to the defaults.
func New(tables *Tables) *Scorer {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Scorer{tables: tables}
}

// itemText is the normalized searchable text of a catalog item.
func itemText(p *model.PriceRow) string {
	return textutil.Normalize(p.Name + " " + p.Unit + " " + p.Category)
}

// ScoreDiscipline scores one catalog item against a discipline code:
// +1.0 per discipline keyword found as a substring, +0.5 when the
// discipline's bonus stems match.
func (s *Scorer) ScoreDiscipline(discipline string, p *model.PriceRow) float64 {
	base := itemText(p)
	score := 0.0
	for _, k := range s.tables.Disciplines[discipline] {
		if strings.Contains(base, textutil.Normalize(k)) {
			score += 1
		}
	}
	if re, ok := disciplineBonuses[discipline]; ok && re.MatchString(base) {
		score += 0.5
	}
	return score
}

// ScoreElement scores one catalog item against an element target:
// +1.0 per element keyword, +0.5 per group keyword, +0.5 per token of the
// element label itself found in the item text.
func (s *Scorer) ScoreElement(group, element string, p *model.PriceRow) float64 {
	base := itemText(p)
	score := 0.0
	for _, k := range s.tables.Elements[element] {
		if strings.Contains(base, textutil.Normalize(k)) {
			score += 1
		}
	}
	for _, k := range s.tables.Groups[group] {
		if strings.Contains(base, textutil.Normalize(k)) {
			score += 0.5
		}
	}
	for _, t := range splitLabel(element) {
		if strings.Contains(base, t) {
			score += 0.5
		}
	}
	return score
}

// ScoreCell scores one catalog item against a cell: +0.75 per token of the
// four cell-context labels found in the item text.
func (s *Scorer) ScoreCell(key *model.CellKey, p *model.PriceRow) float64 {
	base := itemText(p)
	score := 0.0
	for _, label := range []string{key.RowGroup, key.RowLabel, key.ColGroup, key.ColLabel} {
		for _, t := range strings.Fields(textutil.Normalize(label)) {
			if t != "" && strings.Contains(base, t) {
				score += 0.75
			}
		}
	}
	return score
}

// splitLabel breaks an element label into normalized tokens on whitespace
// and slashes (labels like "Пол / Кровля" carry two usable stems).
func splitLabel(label string) []string {
	norm := textutil.Normalize(label)
	var out []string
	for _, t := range strings.FieldsFunc(norm, func(r rune) bool { return r == ' ' || r == '/' }) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
