package task

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/scorer"
	"github.com/sells-group/cmw-cli/internal/store"
	"github.com/sells-group/cmw-cli/internal/suggest"
)

const testMatrixCSV = `,,АР,,КР
,,Стены,Потолок,Балки
АР,Стены,x,,x
,Витражи,,x,
КР,Балки,x,x,
`

func newTestRunner(t *testing.T, matrixCSV string) (*Runner, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	matrixPath := filepath.Join(t.TempDir(), "matrix.csv")
	require.NoError(t, os.WriteFile(matrixPath, []byte(matrixCSV), 0o644))

	r := NewRunner(st, Deps{
		Builder:    suggest.NewBuilder(st, scorer.New(nil), nil, suggest.Options{}),
		MatrixPath: matrixPath,
	})
	return r, st
}

// waitTerminal polls until the task reaches done or error.
func waitTerminal(t *testing.T, st *store.SQLiteStore, id int64) *model.Task {
	t.Helper()
	var task *model.Task
	require.Eventually(t, func() bool {
		tk, err := st.GetTask(context.Background(), id)
		if err != nil || tk == nil {
			return false
		}
		task = tk
		return tk.Status == model.TaskDone || tk.Status == model.TaskError
	}, 5*time.Second, 10*time.Millisecond)
	return task
}

func TestStartUnknownType(t *testing.T) {
	r, _ := newTestRunner(t, testMatrixCSV)

	_, err := r.Start(context.Background(), model.TaskType("bogus"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task type")
}

func TestSyncCellsTask(t *testing.T) {
	r, st := newTestRunner(t, testMatrixCSV)
	ctx := context.Background()

	id, err := r.Start(ctx, model.TaskSyncCells)
	require.NoError(t, err)

	task := waitTerminal(t, st, id)
	assert.Equal(t, model.TaskDone, task.Status)
	assert.Equal(t, 100, task.Progress)
	assert.Equal(t, "Готово", task.Message)
	assert.NotNil(t, task.StartedAt)
	assert.NotNil(t, task.FinishedAt)

	keys, err := st.ListCellKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 9)

	logs, err := st.ListTaskLogs(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "Всего ячеек", logs[0].Message)
	assert.Equal(t, float64(9), logs[0].Payload["count"])
}

func TestSyncCellsTaskBadMatrixPath(t *testing.T) {
	r, st := newTestRunner(t, testMatrixCSV)
	r.matrixPath = filepath.Join(t.TempDir(), "missing.csv")

	id, err := r.Start(context.Background(), model.TaskSyncCells)
	require.NoError(t, err)

	task := waitTerminal(t, st, id)
	assert.Equal(t, model.TaskError, task.Status)
	assert.NotEmpty(t, task.Message)

	logs, err := st.ListTaskLogs(context.Background(), id, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, model.LogError, logs[len(logs)-1].Level)
}

func TestBuildCellSuggestionsAllTask(t *testing.T) {
	r, st := newTestRunner(t, testMatrixCSV)
	ctx := context.Background()

	_, err := st.UpsertPrices(ctx, []model.PriceRow{
		{Name: "Пробивка отверстий в стены", Unit: "шт", Source: "garant", SourcePage: "p1"},
	})
	require.NoError(t, err)
	_, err = st.BulkUpsertCellKeys(ctx, []model.CellKey{
		{RowIndex: 0, ColIndex: 0, RowGroup: "АР", RowLabel: "Стены", ColGroup: "КР", ColLabel: "Балки"},
	})
	require.NoError(t, err)

	id, err := r.Start(ctx, model.TaskBuildCellSuggestionsAll)
	require.NoError(t, err)

	task := waitTerminal(t, st, id)
	assert.Equal(t, model.TaskDone, task.Status)
	assert.Equal(t, "Готово", task.Message)

	keys, err := st.ListCellKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	got, err := st.ListCellSuggestions(ctx, keys[0].ID, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAutoApproveElementsFallbackWithoutProvider(t *testing.T) {
	r, st := newTestRunner(t, testMatrixCSV)
	ctx := context.Background()

	_, err := st.UpsertPrices(ctx, []model.PriceRow{
		{Name: "Кладка стен", Unit: "м2", Source: "garant", SourcePage: "p1"},
		{Name: "Штукатурка стен", Unit: "м2", Source: "garant", SourcePage: "p1"},
	})
	require.NoError(t, err)
	prices, err := st.ListPrices(ctx, 0)
	require.NoError(t, err)
	require.Len(t, prices, 2)

	hi, lo := 0.9, 0.4
	require.NoError(t, st.UpsertElementSuggestion(ctx, &model.ElementSuggestion{
		Group: "АР", Element: "Стены", Axis: model.AxisCol,
		PriceID: prices[0].ID, Score: &hi, Method: "keyword",
	}))
	require.NoError(t, st.UpsertElementSuggestion(ctx, &model.ElementSuggestion{
		Group: "АР", Element: "Стены", Axis: model.AxisCol,
		PriceID: prices[1].ID, Score: &lo, Method: "keyword",
	}))

	id, err := r.Start(ctx, model.TaskAutoApproveElements)
	require.NoError(t, err)

	task := waitTerminal(t, st, id)
	assert.Equal(t, model.TaskDone, task.Status)

	// No provider: the highest score is accepted, the rest rejected
	got, err := st.ListElementSuggestions(ctx, store.ElementFilter{
		Group: "АР", Element: "Стены", Axis: model.AxisCol,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, prices[0].ID, got[0].PriceID)
	assert.Equal(t, model.SuggestionAccepted, got[0].Status)
	assert.Equal(t, model.SuggestionRejected, got[1].Status)

	events, err := st.ListSuggestionEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	actions := map[int64]model.SuggestionStatus{}
	for _, e := range events {
		assert.Equal(t, model.KindElement, e.Kind)
		assert.Equal(t, "АР", e.Group)
		assert.Equal(t, "Стены", e.Element)
		assert.Equal(t, model.AxisCol, e.Axis)
		assert.Equal(t, "p1", e.SourcePage)
		actions[e.PriceID] = e.Action
	}
	assert.Equal(t, model.SuggestionAccepted, actions[prices[0].ID])
	assert.Equal(t, model.SuggestionRejected, actions[prices[1].ID])
}

func TestPanickedJobBecomesTaskError(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	ctx := context.Background()
	_, err = st.BulkUpsertCellKeys(ctx, []model.CellKey{
		{RowIndex: 0, ColIndex: 0, RowGroup: "АР", RowLabel: "Стены", ColGroup: "КР", ColLabel: "Балки"},
	})
	require.NoError(t, err)

	// No builder wired: the cell suggestion job panics on the nil pointer
	r := NewRunner(st, Deps{})

	id, err := r.Start(ctx, model.TaskBuildCellSuggestionsAll)
	require.NoError(t, err)

	task := waitTerminal(t, st, id)
	assert.Equal(t, model.TaskError, task.Status)
	assert.Contains(t, task.Message, "panic:")
}

func TestCancelQueuedTask(t *testing.T) {
	r, st := newTestRunner(t, testMatrixCSV)
	ctx := context.Background()

	// A bare task row with no goroutine behind it, as after a restart
	id, err := st.InsertTask(ctx, model.TaskSyncCells)
	require.NoError(t, err)

	require.NoError(t, r.Cancel(ctx, id))

	task, err := st.GetTask(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, model.TaskError, task.Status)
	assert.Equal(t, "Cancelled by user", task.Message)
	assert.Equal(t, 0, task.Progress)

	logs, err := st.ListTaskLogs(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.LogWarn, logs[0].Level)
	assert.Equal(t, "Задача отменена пользователем", logs[0].Message)
}

// gateStore blocks cell key lookups until released, so a bulk job can be
// held mid-iteration.
type gateStore struct {
	store.Store
	gate    chan struct{}
	entered chan struct{}
	lookups atomic.Int32
}

func (g *gateStore) GetCellKeyByCoord(ctx context.Context, rowIndex, colIndex int) (*model.CellKey, error) {
	g.lookups.Add(1)
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.gate
	return g.Store.GetCellKeyByCoord(ctx, rowIndex, colIndex)
}

func TestCancelRunningTaskStopsProcessing(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	_, err = st.UpsertPrices(ctx, []model.PriceRow{
		{Name: "Пробивка отверстий", Unit: "шт", Source: "garant", SourcePage: "p1"},
	})
	require.NoError(t, err)
	_, err = st.BulkUpsertCellKeys(ctx, []model.CellKey{
		{RowIndex: 0, ColIndex: 0, RowGroup: "АР", RowLabel: "Стены", ColGroup: "КР", ColLabel: "Балки"},
		{RowIndex: 0, ColIndex: 1, RowGroup: "АР", RowLabel: "Стены", ColGroup: "ОВ", ColLabel: "Трубы"},
		{RowIndex: 1, ColIndex: 0, RowGroup: "АР", RowLabel: "Витражи", ColGroup: "КР", ColLabel: "Балки"},
	})
	require.NoError(t, err)

	gs := &gateStore{Store: st, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	r := NewRunner(gs, Deps{
		Builder: suggest.NewBuilder(gs, scorer.New(nil), nil, suggest.Options{}),
	})

	id, err := r.Start(ctx, model.TaskBuildCellSuggestionsAll)
	require.NoError(t, err)

	// First cell lookup is in flight; cancel before releasing it
	<-gs.entered
	require.NoError(t, r.Cancel(ctx, id))
	close(gs.gate)

	// The in-flight iteration finishes, then the ctx check stops the loop
	assert.Never(t, func() bool { return gs.lookups.Load() > 1 }, 300*time.Millisecond, 20*time.Millisecond)

	task, err := st.GetTask(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, model.TaskError, task.Status)
	assert.Equal(t, "Cancelled by user", task.Message)
	assert.Equal(t, 0, task.Progress)

	// Partial writes from the completed iteration are kept
	keys, err := st.ListCellKeys(ctx)
	require.NoError(t, err)
	got, err := st.ListCellSuggestions(ctx, keys[0].ID, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCancelTerminalTaskIsNoOp(t *testing.T) {
	r, st := newTestRunner(t, testMatrixCSV)
	ctx := context.Background()

	id, err := st.InsertTask(ctx, model.TaskSyncCells)
	require.NoError(t, err)
	require.NoError(t, st.UpdateTaskStatus(ctx, id, model.TaskDone, 100, "Готово"))

	require.NoError(t, r.Cancel(ctx, id))

	task, err := st.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, task.Status)
	assert.Equal(t, "Готово", task.Message)

	logs, err := st.ListTaskLogs(ctx, id, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestCancelMissingTask(t *testing.T) {
	r, _ := newTestRunner(t, testMatrixCSV)

	err := r.Cancel(context.Background(), 9999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task not found")
}

func TestRunnerClearsCancelAfterFinish(t *testing.T) {
	r, st := newTestRunner(t, testMatrixCSV)

	id, err := r.Start(context.Background(), model.TaskSyncCells)
	require.NoError(t, err)
	waitTerminal(t, st, id)

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.cancels[id]
		return !ok
	}, time.Second, 10*time.Millisecond)
}
