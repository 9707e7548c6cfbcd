// Package task runs the bulk background jobs: cell-key sync, suggestion
// builds, auto-approval, and collision cost/risk computation. Each task is
// one supervised goroutine with its own cancellable context; progress and
// logs are persisted through the store so the API can poll them.
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cmw-cli/internal/matrix"
	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/store"
)

// progress cadence: how many processed targets between status updates.
const (
	progressEvery     = 20
	progressEveryCell = 50
)

// cancelledMessage is the terminal message of a user-cancelled task.
const cancelledMessage = "Cancelled by user"

// Runner starts and supervises background tasks.
type Runner struct {
	store      store.Store
	jobs       *jobDeps
	matrixPath string

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

// NewRunner creates a Runner. deps carries the collaborators jobs need.
func NewRunner(st store.Store, deps Deps) *Runner {
	return &Runner{
		store:      st,
		matrixPath: deps.MatrixPath,
		jobs: &jobDeps{
			store:         st,
			builder:       deps.Builder,
			llm:           deps.LLM,
			catalogLimit:  deps.CatalogLimit,
			acceptedLimit: deps.AcceptedLimit,
		},
		cancels: make(map[int64]context.CancelFunc),
	}
}

// Start inserts a queued task row, spawns its goroutine, and returns the
// task id immediately.
func (r *Runner) Start(ctx context.Context, typ model.TaskType) (int64, error) {
	if !model.KnownTaskType(typ) {
		return 0, eris.Errorf("unknown task type: %s", typ)
	}

	id, err := r.store.InsertTask(ctx, typ)
	if err != nil {
		return 0, err
	}

	// The job outlives the request context.
	jobCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()

	go r.run(jobCtx, id, typ)
	return id, nil
}

// Cancel cancels a task's context and force-sets its status. Progress
// stays at the last reported value. Terminal tasks are left untouched.
func (r *Runner) Cancel(ctx context.Context, id int64) error {
	t, err := r.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return eris.Errorf("task not found: %d", id)
	}
	if t.Status == model.TaskDone || t.Status == model.TaskError {
		return nil
	}

	r.mu.Lock()
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	r.mu.Unlock()

	if err := r.store.UpdateTaskStatus(ctx, id, model.TaskError, t.Progress, cancelledMessage); err != nil {
		return err
	}
	return r.store.InsertTaskLog(ctx, id, model.LogWarn, "Задача отменена пользователем", nil)
}

// run supervises one job: panics become task errors, cancellation leaves
// the status Cancel already wrote, and any other failure is logged and
// recorded on the task row.
func (r *Runner) run(ctx context.Context, id int64, typ model.TaskType) {
	defer func() {
		r.mu.Lock()
		if cancel, ok := r.cancels[id]; ok {
			cancel()
			delete(r.cancels, id)
		}
		r.mu.Unlock()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			zap.L().Error("task panicked", zap.Int64("task_id", id), zap.String("type", string(typ)), zap.Any("panic", rec))
			r.fail(id, msg)
		}
	}()

	var err error
	switch typ {
	case model.TaskSyncCells:
		err = r.jobs.syncCells(ctx, id, r.matrixPath)
	case model.TaskBuildCellSuggestionsAll:
		err = r.jobs.buildCellSuggestionsAll(ctx, id)
	case model.TaskAutoApproveElements:
		err = r.jobs.autoApproveElements(ctx, id, r.matrixPath)
	case model.TaskComputeCollisionsAll:
		err = r.jobs.computeCollisionsAll(ctx, id)
	case model.TaskComputeRiskAll:
		err = r.jobs.computeRiskAll(ctx, id)
	}

	if err != nil {
		if ctx.Err() != nil {
			// Cancel already wrote the terminal status.
			return
		}
		zap.L().Error("task failed", zap.Int64("task_id", id), zap.String("type", string(typ)), zap.Error(err))
		r.fail(id, err.Error())
	}
}

// fail records a job failure on the task row. Store errors here are only
// logged: the job is already past saving.
func (r *Runner) fail(id int64, msg string) {
	ctx := context.Background()
	if err := r.store.InsertTaskLog(ctx, id, model.LogError, msg, nil); err != nil {
		zap.L().Error("task error log write failed", zap.Int64("task_id", id), zap.Error(err))
	}
	if err := r.store.UpdateTaskStatus(ctx, id, model.TaskError, 100, msg); err != nil {
		zap.L().Error("task status write failed", zap.Int64("task_id", id), zap.Error(err))
	}
}

// loadMatrix is the shared matrix source for jobs that iterate targets.
func loadMatrix(path string) (*model.MatrixData, error) {
	return matrix.Load(path)
}
