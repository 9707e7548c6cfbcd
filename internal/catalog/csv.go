package catalog

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cmw-cli/internal/model"
)

// ReadCSV parses a price-list CSV. The first record is the header; column
// roles are resolved from it. Separator and blank records are skipped.
func ReadCSV(ctx context.Context, r io.Reader, source, sourcePage string) ([]model.PriceRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var keys []string
	var rows []model.PriceRow
	first := true
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "catalog: csv read cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "catalog: read csv row")
		}

		if first {
			first = false
			keys = columnKeys(record)
			// Headerless tables start with data in the first record.
			if headerless(record) {
				if row := recordToRow(keys, record, "", source, sourcePage); row != nil {
					rows = append(rows, *row)
				}
			}
			continue
		}

		if row := recordToRow(keys, record, "", source, sourcePage); row != nil {
			rows = append(rows, *row)
		}
	}

	return Dedupe(rows), nil
}

// headerless reports whether the first record already looks like data: no
// cell maps to a known column role.
func headerless(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" && headerKey(cell) != "" {
			return false
		}
	}
	return true
}
