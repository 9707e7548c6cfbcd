package suggest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/scorer"
	"github.com/sells-group/cmw-cli/internal/store"
)

func newTestBuilder(t *testing.T) (*Builder, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	b := NewBuilder(st, scorer.New(nil), nil, Options{})
	return b, st
}

func seedCatalog(t *testing.T, st *store.SQLiteStore, names ...string) []model.PriceRow {
	t.Helper()
	rows := make([]model.PriceRow, len(names))
	for i, n := range names {
		rows[i] = model.PriceRow{Name: n, Unit: "шт", Source: "garant", SourcePage: "p1"}
	}
	_, err := st.UpsertPrices(context.Background(), rows)
	require.NoError(t, err)
	prices, err := st.ListPrices(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, prices, len(names))
	return prices
}

func TestBuildDisciplineSuggestions(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()
	seedCatalog(t, st, "Монтаж радиатора отопления", "Кладка кирпича")

	count, err := b.BuildDisciplineSuggestions(ctx, []string{"ОВ"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := st.ListDisciplineSuggestions(ctx, "ОВ", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Монтаж радиатора отопления", mustPriceName(t, st, got[0].PriceID))
	require.NotNil(t, got[0].Score)
	assert.InDelta(t, 2.5, *got[0].Score, 0.001)
	assert.Equal(t, model.MethodHeuristicLLM, got[0].Method)
	assert.Equal(t, model.SuggestionProposed, got[0].Status)
}

func TestBuildElementSuggestions(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()
	seedCatalog(t, st, "Прокладка трубы стальной", "Кладка кирпича")

	m := &model.MatrixData{
		Columns: []model.MatrixElement{{Group: "ОВ (Отоп.)", Label: "Трубы"}},
		Rows:    []model.MatrixElement{{Group: "АР", Label: "Стены"}},
	}

	count, targets, err := b.BuildElementSuggestions(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	require.Len(t, targets, 2)
	assert.Equal(t, model.AxisCol, targets[0].Axis)

	got, err := st.ListElementSuggestions(ctx, store.ElementFilter{
		Group:   "ОВ (Отоп.)",
		Element: "Трубы",
		Axis:    model.AxisCol,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Прокладка трубы стальной", got[0].PriceName)
	require.NotNil(t, got[0].Score)
	assert.InDelta(t, 1.5, *got[0].Score, 0.001)
}

func TestBuildCellSuggestions(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()
	seedCatalog(t, st, "Пробивка отверстий в стены под трубы", "Кладка кирпича")

	_, err := st.BulkUpsertCellKeys(ctx, []model.CellKey{
		{RowIndex: 0, ColIndex: 0, RowGroup: "АР", RowLabel: "Стены", ColGroup: "ОВ", ColLabel: "Трубы"},
	})
	require.NoError(t, err)
	keys, err := st.ListCellKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	result, err := b.BuildCellSuggestions(ctx, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, keys[0].ID, result.CellID)
	assert.Equal(t, 2, result.Count)
	// Both items classify as pipe work through the cell labels, deduplicated
	assert.Equal(t, []string{"Трубы/Дренаж"}, result.WorkTypes)

	got, err := st.ListCellSuggestions(ctx, keys[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Пробивка отверстий в стены под трубы", mustPriceName(t, st, got[0].PriceID))
	require.NotNil(t, got[0].Score)
	assert.InDelta(t, 1.5, *got[0].Score, 0.001)
	assert.Equal(t, "Трубы/Дренаж", got[0].WorkType)
}

func TestBuildCellSuggestionsMissingKey(t *testing.T) {
	b, _ := newTestBuilder(t)

	_, err := b.BuildCellSuggestions(context.Background(), 3, 4, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cell key not found at (3,4)")
}

func mustPriceName(t *testing.T, st *store.SQLiteStore, id int64) string {
	t.Helper()
	p, err := st.GetPrice(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Name
}
