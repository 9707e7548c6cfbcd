package store

import (
	"context"

	"github.com/sells-group/cmw-cli/internal/model"
)

// ElementFilter addresses element suggestions of one matrix target.
type ElementFilter struct {
	Group   string                 `json:"grp"`
	Element string                 `json:"element"`
	Axis    model.Axis             `json:"axis"`
	Status  model.SuggestionStatus `json:"status,omitempty"`
	Limit   int                    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the collision workbench.
type Store interface {
	// Price catalog
	UpsertPrices(ctx context.Context, rows []model.PriceRow) (int, error)
	ListPrices(ctx context.Context, limit int) ([]model.PriceRow, error)
	GetPrice(ctx context.Context, id int64) (*model.PriceRow, error)

	// Disciplines
	UpsertDiscipline(ctx context.Context, name string, scope model.Axis) error
	ListDisciplines(ctx context.Context) ([]model.Discipline, error)

	// Cell keys
	BulkUpsertCellKeys(ctx context.Context, keys []model.CellKey) (int, error)
	ListCellKeys(ctx context.Context) ([]model.CellKey, error)
	GetCellKeyByCoord(ctx context.Context, rowIndex, colIndex int) (*model.CellKey, error)
	GetCellKey(ctx context.Context, id int64) (*model.CellKey, error)

	// Discipline suggestions
	UpsertDisciplineSuggestion(ctx context.Context, s *model.DisciplineSuggestion) error
	ListDisciplineSuggestions(ctx context.Context, discipline string, limit int) ([]model.DisciplineSuggestion, error)
	UpdateDisciplineSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error
	GetDisciplineSuggestion(ctx context.Context, id int64) (*model.DisciplineSuggestion, error)

	// Element suggestions
	UpsertElementSuggestion(ctx context.Context, s *model.ElementSuggestion) error
	ListElementSuggestions(ctx context.Context, filter ElementFilter) ([]model.ElementSuggestion, error)
	UpdateElementSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error
	GetElementSuggestion(ctx context.Context, id int64) (*model.ElementSuggestion, error)

	// Cell suggestions
	UpsertCellSuggestion(ctx context.Context, s *model.CellSuggestion) error
	ListCellSuggestions(ctx context.Context, cellID int64, limit int) ([]model.CellSuggestion, error)
	UpdateCellSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus) error
	GetCellSuggestion(ctx context.Context, id int64) (*model.CellSuggestion, error)

	// Suggestion audit trail
	InsertSuggestionEvent(ctx context.Context, e *model.SuggestionEvent) error
	ListSuggestionEvents(ctx context.Context, limit int) ([]model.SuggestionEvent, error)

	// Estimates
	UpsertCollisionCost(ctx context.Context, c *model.CollisionCost) error
	GetCollisionCost(ctx context.Context, cellID int64) (*model.CollisionCost, error)
	UpsertCellRisk(ctx context.Context, r *model.CellRisk) error
	GetCellRisk(ctx context.Context, cellID int64) (*model.CellRisk, error)
	CellSummaries(ctx context.Context) ([]model.CellSummary, error)

	// Tasks
	InsertTask(ctx context.Context, typ model.TaskType) (int64, error)
	UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus, progress int, message string) error
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	ListTasks(ctx context.Context, limit int) ([]model.Task, error)
	InsertTaskLog(ctx context.Context, taskID int64, level model.LogLevel, message string, payload map[string]any) error
	ListTaskLogs(ctx context.Context, taskID int64, limit int) ([]model.TaskLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
