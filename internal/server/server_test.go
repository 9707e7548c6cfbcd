package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/scorer"
	"github.com/sells-group/cmw-cli/internal/store"
	"github.com/sells-group/cmw-cli/internal/suggest"
	"github.com/sells-group/cmw-cli/internal/task"
)

const testMatrixCSV = `,,АР,,КР
,,Стены,Потолок,Балки
АР,Стены,x,,x
,Витражи,,x,
КР,Балки,x,x,
`

func newTestServer(t *testing.T) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	matrixPath := filepath.Join(t.TempDir(), "matrix.csv")
	require.NoError(t, os.WriteFile(matrixPath, []byte(testMatrixCSV), 0o644))

	builder := suggest.NewBuilder(st, scorer.New(nil), nil, suggest.Options{})
	runner := task.NewRunner(st, task.Deps{Builder: builder, MatrixPath: matrixPath})
	return New(st, builder, runner, matrixPath).Handler(), st
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr.Code, out
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	code, body := doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetMatrix(t *testing.T) {
	h, _ := newTestServer(t)
	code, body := doJSON(t, h, http.MethodGet, "/api/matrix", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["columns"], 3)
	assert.Len(t, body["rows"], 3)
	assert.NotEmpty(t, body["source"])
}

func TestListPrices(t *testing.T) {
	h, st := newTestServer(t)
	_, err := st.UpsertPrices(context.Background(), []model.PriceRow{
		{Name: "Прокладка труб", Unit: "п.м", Price: 500, Source: "garant", SourcePage: "p1"},
	})
	require.NoError(t, err)

	code, body := doJSON(t, h, http.MethodGet, "/api/prices", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])
	assert.Len(t, body["prices"], 1)
}

func TestSaveDisciplines(t *testing.T) {
	h, _ := newTestServer(t)
	code, body := doJSON(t, h, http.MethodPost, "/api/disciplines/save", "")
	require.Equal(t, http.StatusOK, code)
	// АР and КР appear on both axes: four upsert attempts, two distinct names
	assert.Equal(t, float64(4), body["inserted"])
	assert.Equal(t, float64(2), body["total"])
	assert.Len(t, body["disciplines"], 2)
}

func TestUpdateSuggestionStatusAppendsEvent(t *testing.T) {
	h, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.UpsertPrices(ctx, []model.PriceRow{
		{Name: "Монтаж радиатора", Unit: "шт", Source: "garant", SourcePage: "p7"},
	})
	require.NoError(t, err)
	prices, err := st.ListPrices(ctx, 0)
	require.NoError(t, err)

	score := 2.5
	require.NoError(t, st.UpsertDisciplineSuggestion(ctx, &model.DisciplineSuggestion{
		Discipline: "ОВ", PriceID: prices[0].ID, Score: &score, Method: "keyword",
	}))
	rows, err := st.ListDisciplineSuggestions(ctx, "ОВ", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	path := "/api/suggestions/disciplines/" + itoa(rows[0].ID)
	code, body := doJSON(t, h, http.MethodPatch, path, `{"status":"accepted"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "accepted", body["status"])

	got, err := st.GetDisciplineSuggestion(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionAccepted, got.Status)

	code, body = doJSON(t, h, http.MethodGet, "/api/events/suggestions", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), body["total"])
	event := body["events"].([]any)[0].(map[string]any)
	assert.Equal(t, "discipline", event["kind"])
	assert.Equal(t, "accepted", event["action"])
	assert.Equal(t, "ОВ", event["grp"])
	assert.Equal(t, "p7", event["source_page"])
}

func TestUpdateCellSuggestionStatusDenormalizesContext(t *testing.T) {
	h, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.UpsertPrices(ctx, []model.PriceRow{
		{Name: "Пробивка отверстий", Unit: "шт", Source: "garant", SourcePage: "p3"},
	})
	require.NoError(t, err)
	prices, err := st.ListPrices(ctx, 0)
	require.NoError(t, err)

	_, err = st.BulkUpsertCellKeys(ctx, []model.CellKey{
		{RowIndex: 0, ColIndex: 0, RowGroup: "АР", RowLabel: "Стены", ColGroup: "ОВ", ColLabel: "Трубы"},
	})
	require.NoError(t, err)
	keys, err := st.ListCellKeys(ctx)
	require.NoError(t, err)

	require.NoError(t, st.UpsertCellSuggestion(ctx, &model.CellSuggestion{
		CellID: keys[0].ID, PriceID: prices[0].ID, Method: "keyword",
	}))
	rows, err := st.ListCellSuggestions(ctx, keys[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	path := "/api/suggestions/cells/" + itoa(rows[0].ID)
	code, body := doJSON(t, h, http.MethodPatch, path, `{"status":"rejected"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])

	code, body = doJSON(t, h, http.MethodGet, "/api/events/suggestions", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), body["total"])
	event := body["events"].([]any)[0].(map[string]any)
	assert.Equal(t, "cell", event["kind"])
	assert.Equal(t, "АР / Стены", event["grp"])
	assert.Equal(t, "ОВ / Трубы", event["element"])
	assert.Equal(t, "p3", event["source_page"])
}

func TestUpdateSuggestionStatusNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	code, body := doJSON(t, h, http.MethodPatch, "/api/suggestions/elements/9999", `{"status":"accepted"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Suggestion not found", body["error"])
}

func TestUpdateSuggestionStatusBadRequest(t *testing.T) {
	h, _ := newTestServer(t)

	code, body := doJSON(t, h, http.MethodPatch, "/api/suggestions/cells/1", `{"status":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Required: numeric :id and body { status }", body["error"])

	code, body = doJSON(t, h, http.MethodPatch, "/api/suggestions/bogus/1", `{"status":"accepted"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown suggestion kind", body["error"])
}

func TestCellEstimate(t *testing.T) {
	h, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.BulkUpsertCellKeys(ctx, []model.CellKey{
		{RowIndex: 0, ColIndex: 0, RowGroup: "АР", RowLabel: "Стены", ColGroup: "КР", ColLabel: "Балки"},
	})
	require.NoError(t, err)
	keys, err := st.ListCellKeys(ctx)
	require.NoError(t, err)

	pmin, pmax := 1000.0, 5000.0
	require.NoError(t, st.UpsertCollisionCost(ctx, &model.CollisionCost{
		CellID: keys[0].ID, Unit: "компл", PriceMin: &pmin, PriceMax: &pmax,
	}))

	code, body := doJSON(t, h, http.MethodGet, "/api/cells/0/0/estimate", "")
	require.Equal(t, http.StatusOK, code)
	est := body["estimate"].(map[string]any)
	assert.Equal(t, float64(1000), est["price_min"])
	assert.Equal(t, "компл", est["unit"])
}

func TestCellEstimateNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	code, body := doJSON(t, h, http.MethodGet, "/api/cells/5/5/estimate", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Cell not found", body["error"])
}

func TestStartTaskUnknownType(t *testing.T) {
	h, _ := newTestServer(t)
	code, body := doJSON(t, h, http.MethodPost, "/api/tasks/", `{"type":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown task type", body["error"])
}

func TestTaskLifecycle(t *testing.T) {
	h, _ := newTestServer(t)

	code, body := doJSON(t, h, http.MethodPost, "/api/tasks/", `{"type":"sync_cells"}`)
	require.Equal(t, http.StatusOK, code)
	id := itoa(int64(body["id"].(float64)))

	var taskBody map[string]any
	require.Eventually(t, func() bool {
		code, b := doJSON(t, h, http.MethodGet, "/api/tasks/"+id, "")
		if code != http.StatusOK {
			return false
		}
		taskBody = b
		status := b["task"].(map[string]any)["status"]
		return status == "done" || status == "error"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "done", taskBody["task"].(map[string]any)["status"])

	code, body = doJSON(t, h, http.MethodGet, "/api/tasks/"+id+"/logs", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["total"])

	// Cancelling a finished task is a no-op
	code, body = doJSON(t, h, http.MethodPost, "/api/tasks/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestGetTaskNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	code, body := doJSON(t, h, http.MethodGet, "/api/tasks/9999", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Task not found", body["error"])
}

func TestExportMatrix(t *testing.T) {
	h, st := newTestServer(t)

	_, err := st.BulkUpsertCellKeys(context.Background(), []model.CellKey{
		{RowIndex: 0, ColIndex: 0, RowGroup: "АР", RowLabel: "Стены", ColGroup: "КР", ColLabel: "Балки"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/matrix/export", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "matrix_export.csv")
	assert.True(t, strings.HasPrefix(rr.Body.String(), "Row Group,Row Label,Col Group,Col Label"))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
