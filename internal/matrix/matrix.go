// Package matrix parses the collision-matrix CSV and renders the enriched
// export. The source format is positional: row 0 carries column group
// headings (propagated rightward across blanks), row 1 the column labels,
// and data rows start at index 2 with group and label in the first two
// cells.
package matrix

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cmw-cli/internal/model"
)

// Load reads and parses the matrix CSV at path.
func Load(path string) (*model.MatrixData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "matrix: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Parse(f)
}

// Parse parses the positional matrix CSV format.
func Parse(r io.Reader) (*model.MatrixData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "matrix: parse csv")
	}
	if len(records) < 3 {
		return nil, eris.New("matrix: csv is incomplete, need group row, label row and at least one data row")
	}

	colGroupRow := records[0]
	colLabelRow := records[1]

	// Column groups propagate rightward: a blank group cell inherits the
	// last non-blank one.
	var columns []model.MatrixElement
	currentGroup := ""
	for i := 2; i < len(colLabelRow); i++ {
		if i < len(colGroupRow) {
			if g := strings.TrimSpace(colGroupRow[i]); g != "" {
				currentGroup = g
			}
		}
		label := strings.TrimSpace(colLabelRow[i])
		if label == "" {
			continue
		}
		columns = append(columns, model.MatrixElement{Group: currentGroup, Label: label})
	}

	var rows []model.MatrixElement
	var grid [][]string
	currentGroup = ""

	for _, record := range records[2:] {
		if len(record) == 0 {
			continue
		}
		if isSeparator(record) {
			continue
		}

		if g := strings.TrimSpace(record[0]); g != "" {
			currentGroup = g
		}
		label := ""
		if len(record) > 1 {
			label = strings.TrimSpace(record[1])
		}
		if label == "" {
			continue
		}

		rows = append(rows, model.MatrixElement{Group: currentGroup, Label: label})
		values := make([]string, len(columns))
		for c := 2; c < len(record) && c-2 < len(columns); c++ {
			values[c-2] = strings.TrimSpace(record[c])
		}
		grid = append(grid, values)
	}

	return &model.MatrixData{Columns: columns, Rows: rows, Grid: grid}, nil
}

// isSeparator reports whether a data record carries no values past the
// group and label cells.
func isSeparator(record []string) bool {
	for _, c := range record[min(2, len(record)):] {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// CellKeys flattens the matrix into one key per (row, column) coordinate.
func CellKeys(m *model.MatrixData) []model.CellKey {
	keys := make([]model.CellKey, 0, len(m.Rows)*len(m.Columns))
	for ri, row := range m.Rows {
		for ci, col := range m.Columns {
			keys = append(keys, model.CellKey{
				RowIndex: ri,
				ColIndex: ci,
				RowGroup: row.Group,
				RowLabel: row.Label,
				ColGroup: col.Group,
				ColLabel: col.Label,
			})
		}
	}
	return keys
}

// DisciplineGroups returns the distinct row and column group headings in
// first-seen order.
func DisciplineGroups(m *model.MatrixData) (rowGroups, colGroups []string) {
	return distinctGroups(m.Rows), distinctGroups(m.Columns)
}

func distinctGroups(elements []model.MatrixElement) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range elements {
		if e.Group == "" {
			continue
		}
		if _, ok := seen[e.Group]; ok {
			continue
		}
		seen[e.Group] = struct{}{}
		out = append(out, e.Group)
	}
	return out
}
