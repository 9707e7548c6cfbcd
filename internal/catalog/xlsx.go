package catalog

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/cmw-cli/internal/model"
)

// ReadXLSX parses a price-list workbook. Every sheet is read as one table:
// the sheet name becomes the default category, the first row the header.
func ReadXLSX(path, source, sourcePage string) ([]model.PriceRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}

	var rows []model.PriceRow
	for _, sheet := range f.Sheets {
		if len(sheet.Rows) < 2 {
			continue
		}
		keys := columnKeys(rowToStrings(sheet.Rows[0]))
		for _, r := range sheet.Rows[1:] {
			if row := recordToRow(keys, rowToStrings(r), sheet.Name, source, sourcePage); row != nil {
				rows = append(rows, *row)
			}
		}
	}

	return Dedupe(rows), nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}
