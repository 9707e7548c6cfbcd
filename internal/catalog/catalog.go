// Package catalog imports price-list files into catalog rows. Supported
// inputs are CSV and XLSX tables with a header row naming the columns in
// Russian; column roles are recognized by header stems, with a positional
// fallback (name, unit, price) for headerless tables.
package catalog

import (
	"strings"

	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/textutil"
)

// column roles inside a price table.
const (
	colName     = "name"
	colUnit     = "unit"
	colPrice    = "price"
	colCategory = "category"
)

// headerKey maps a header cell to a column role, or "" when unrecognized.
func headerKey(h string) string {
	s := textutil.Normalize(h)
	if s == "" {
		return ""
	}
	switch {
	case strings.Contains(s, "наимен"), strings.Contains(s, "работ"), strings.Contains(s, "услуг"):
		return colName
	case strings.Contains(s, "ед"), strings.Contains(s, "измер"):
		return colUnit
	case strings.Contains(s, "стоим"), strings.Contains(s, "цена"), strings.Contains(s, "руб"):
		return colPrice
	case strings.Contains(s, "катег"), strings.Contains(s, "раздел"):
		return colCategory
	}
	return ""
}

// columnKeys resolves roles for every header cell. When no cell is
// recognized the typical order name | unit | price is assumed.
func columnKeys(header []string) []string {
	keys := make([]string, len(header))
	recognized := false
	for i, h := range header {
		keys[i] = headerKey(h)
		if keys[i] != "" {
			recognized = true
		}
	}
	if !recognized {
		for len(keys) < 3 {
			keys = append(keys, "")
		}
		keys[0] = colName
		if keys[1] == "" {
			keys[1] = colUnit
		}
		if keys[2] == "" {
			keys[2] = colPrice
		}
	}
	return keys
}

// recordToRow builds a catalog row from one table record. Rows without a
// name are dropped (nil return).
func recordToRow(keys, record []string, category, source, sourcePage string) *model.PriceRow {
	row := model.PriceRow{
		Category:   category,
		Currency:   "RUB",
		Source:     source,
		SourcePage: sourcePage,
	}
	for i, cell := range record {
		if i >= len(keys) {
			break
		}
		text := strings.TrimSpace(cell)
		if text == "" {
			continue
		}
		switch keys[i] {
		case colName:
			row.Name = text
		case colUnit:
			row.Unit = text
		case colPrice:
			if v, ok := textutil.ParsePrice(text); ok {
				row.Price = v
			}
		case colCategory:
			row.Category = text
		}
	}
	if row.Name == "" {
		return nil
	}
	return &row
}

// Dedupe keeps the first row per (name, unit, source page), matching the
// upsert key of the store.
func Dedupe(rows []model.PriceRow) []model.PriceRow {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		key := strings.ToLower(r.Name) + "|" + strings.ToLower(r.Unit) + "|" + r.SourcePage
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
