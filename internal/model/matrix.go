package model

// Axis identifies which matrix dimension an element belongs to.
type Axis string

const (
	AxisRow Axis = "row"
	AxisCol Axis = "col"
)

// MatrixElement is a labeled entry on one matrix axis, grouped under a
// discipline heading (e.g. "Радиаторы" under "ОВ (Отоп.)").
type MatrixElement struct {
	Group string `json:"group"`
	Label string `json:"label"`
}

// MatrixData is the parsed collision matrix: row and column elements plus
// the raw grid values at their intersections.
type MatrixData struct {
	Columns []MatrixElement `json:"columns"`
	Rows    []MatrixElement `json:"rows"`
	Grid    [][]string      `json:"grid"`
}

// ElementTarget addresses one element on one axis for suggestion building.
type ElementTarget struct {
	Group   string `json:"grp"`
	Element string `json:"element"`
	Axis    Axis   `json:"axis"`
}

// Targets flattens the matrix into element targets, columns first, matching
// the order bulk jobs iterate in.
func (m *MatrixData) Targets() []ElementTarget {
	targets := make([]ElementTarget, 0, len(m.Columns)+len(m.Rows))
	for _, c := range m.Columns {
		targets = append(targets, ElementTarget{Group: c.Group, Element: c.Label, Axis: AxisCol})
	}
	for _, r := range m.Rows {
		targets = append(targets, ElementTarget{Group: r.Group, Element: r.Label, Axis: AxisRow})
	}
	return targets
}

// CellKey is a persisted matrix coordinate with its denormalized row and
// column element names. One row per (row_index, col_index).
type CellKey struct {
	ID       int64  `json:"id"`
	RowIndex int    `json:"row_index"`
	ColIndex int    `json:"col_index"`
	RowGroup string `json:"row_group"`
	RowLabel string `json:"row_label"`
	ColGroup string `json:"col_group"`
	ColLabel string `json:"col_label"`
}

// Discipline is a named engineering trade used as a coarse mapping target.
type Discipline struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Scope Axis   `json:"scope"`
}
