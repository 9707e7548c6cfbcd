package matrix

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cmw-cli/internal/model"
)

var exportHeader = []string{
	"Row Group", "Row Label", "Col Group", "Col Label",
	"Cost Min", "Cost Max", "Category",
	"Hazard", "Importance", "Difficulty",
}

// Export renders the enriched matrix CSV: one record per cell key with its
// cost range, the category derived from the higher cost bound, and the
// three risk dimensions. Cells without estimates export empty fields.
func Export(keys []model.CellKey, summaries []model.CellSummary) ([]byte, error) {
	type coord struct{ ri, ci int }
	byCoord := make(map[coord]model.CellSummary, len(summaries))
	for _, s := range summaries {
		byCoord[coord{s.RowIndex, s.ColIndex}] = s
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, eris.Wrap(err, "matrix: write export header")
	}

	for _, k := range keys {
		sum := byCoord[coord{k.RowIndex, k.ColIndex}]
		cost := sum.PriceMax
		if cost == nil {
			cost = sum.PriceMin
		}
		record := []string{
			k.RowGroup, k.RowLabel, k.ColGroup, k.ColLabel,
			formatFloat(sum.PriceMin), formatFloat(sum.PriceMax),
			string(model.CategoryByCost(cost)),
			formatFloat(sum.Hazard), formatFloat(sum.Importance), formatFloat(sum.Difficulty),
		}
		if err := w.Write(record); err != nil {
			return nil, eris.Wrap(err, "matrix: write export record")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "matrix: flush export")
	}
	return buf.Bytes(), nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
