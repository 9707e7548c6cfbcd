package task

import (
	"context"
	"fmt"

	"github.com/sells-group/cmw-cli/internal/estimate"
	"github.com/sells-group/cmw-cli/internal/llm"
	"github.com/sells-group/cmw-cli/internal/matrix"
	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/store"
	"github.com/sells-group/cmw-cli/internal/suggest"
)

// Deps carries the collaborators the Runner's jobs need.
type Deps struct {
	Builder       *suggest.Builder
	LLM           *llm.Service
	MatrixPath    string
	CatalogLimit  int
	AcceptedLimit int
}

type jobDeps struct {
	store         store.Store
	builder       *suggest.Builder
	llm           *llm.Service
	catalogLimit  int
	acceptedLimit int
}

func (j *jobDeps) catalogCap() int {
	if j.catalogLimit > 0 {
		return j.catalogLimit
	}
	return suggest.DefaultCatalogLimit
}

func (j *jobDeps) acceptedCap() int {
	if j.acceptedLimit > 0 {
		return j.acceptedLimit
	}
	return 50
}

// progressMessage is the running-status message of bulk jobs.
func progressMessage(processed, total int) string {
	return fmt.Sprintf("Обработано: %d/%d", processed, total)
}

func progressPercent(processed, total int) int {
	if total == 0 {
		return 100
	}
	return processed * 100 / total
}

// reportEvery updates the task row at the job's cadence.
func (j *jobDeps) reportEvery(ctx context.Context, taskID int64, every, processed, total int) error {
	if processed%every != 0 {
		return nil
	}
	return j.store.UpdateTaskStatus(ctx, taskID, model.TaskRunning,
		progressPercent(processed, total), progressMessage(processed, total))
}

// syncCells rebuilds the cell_keys table from the matrix CSV.
func (j *jobDeps) syncCells(ctx context.Context, taskID int64, matrixPath string) error {
	if err := j.store.UpdateTaskStatus(ctx, taskID, model.TaskRunning, 0, "Инициализация ключей ячеек"); err != nil {
		return err
	}
	m, err := loadMatrix(matrixPath)
	if err != nil {
		return err
	}

	keys := matrix.CellKeys(m)
	if err := j.store.InsertTaskLog(ctx, taskID, model.LogInfo, "Всего ячеек", map[string]any{"count": len(keys)}); err != nil {
		return err
	}

	inserted, err := j.store.BulkUpsertCellKeys(ctx, keys)
	if err != nil {
		return err
	}
	if err := j.store.InsertTaskLog(ctx, taskID, model.LogInfo, "Вставлено ключей", map[string]any{"inserted": inserted}); err != nil {
		return err
	}

	return j.store.UpdateTaskStatus(ctx, taskID, model.TaskDone, 100, "Готово")
}

// buildCellSuggestionsAll builds suggestions for every cell, loading the
// catalog once.
func (j *jobDeps) buildCellSuggestionsAll(ctx context.Context, taskID int64) error {
	if err := j.store.UpdateTaskStatus(ctx, taskID, model.TaskRunning, 0, "Генерация предложений по ячейкам"); err != nil {
		return err
	}
	keys, err := j.store.ListCellKeys(ctx)
	if err != nil {
		return err
	}
	prices, err := j.store.ListPrices(ctx, j.catalogCap())
	if err != nil {
		return err
	}

	processed := 0
	for _, k := range keys {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := j.builder.BuildCellSuggestions(ctx, k.RowIndex, k.ColIndex, prices); err != nil {
			return err
		}
		processed++
		if err := j.reportEvery(ctx, taskID, progressEveryCell, processed, len(keys)); err != nil {
			return err
		}
	}

	if err := j.store.InsertTaskLog(ctx, taskID, model.LogInfo, "Итого обработано", map[string]any{"processed": processed}); err != nil {
		return err
	}
	return j.store.UpdateTaskStatus(ctx, taskID, model.TaskDone, 100, "Готово")
}

// autoApproveElements asks the provider for accept/reject verdicts on each
// element target's pending suggestions and records every decision with an
// audit event.
func (j *jobDeps) autoApproveElements(ctx context.Context, taskID int64, matrixPath string) error {
	if err := j.store.UpdateTaskStatus(ctx, taskID, model.TaskRunning, 0, "Авто-одобрение по элементам"); err != nil {
		return err
	}
	m, err := loadMatrix(matrixPath)
	if err != nil {
		return err
	}

	targets := m.Targets()
	processed := 0
	for _, t := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		suggestions, err := j.store.ListElementSuggestions(ctx, store.ElementFilter{
			Group: t.Group, Element: t.Element, Axis: t.Axis, Limit: j.acceptedCap(),
		})
		if err != nil {
			return err
		}

		items := make([]llm.DecideItem, len(suggestions))
		for i, s := range suggestions {
			price := s.Price
			items[i] = llm.DecideItem{
				ID: s.ID, PriceID: s.PriceID,
				Name: s.PriceName, Unit: s.PriceUnit, Category: s.PriceCategory,
				Price: &price,
			}
		}

		target := fmt.Sprintf("%s / %s [%s]", t.Group, t.Element, t.Axis)
		decisions := j.llm.DecideElement(ctx, target, items)
		if len(decisions) == 0 {
			decisions = fallbackDecisions(suggestions)
		}
		for _, d := range decisions {
			if err := j.applyElementDecision(ctx, t, suggestions, d); err != nil {
				return err
			}
		}

		processed++
		if err := j.reportEvery(ctx, taskID, progressEvery, processed, len(targets)); err != nil {
			return err
		}
	}

	return j.store.UpdateTaskStatus(ctx, taskID, model.TaskDone, 100, "Готово")
}

// fallbackDecisions is the deterministic rule applied when the provider
// yields no verdicts: the highest-scoring suggestion is accepted, the rest
// rejected, so every target reaches a decided state. Suggestions arrive
// score-descending from the store.
func fallbackDecisions(suggestions []model.ElementSuggestion) []llm.Decision {
	decisions := make([]llm.Decision, len(suggestions))
	for i, s := range suggestions {
		action := model.SuggestionRejected
		if i == 0 {
			action = model.SuggestionAccepted
		}
		decisions[i] = llm.Decision{SuggestionID: s.ID, PriceID: s.PriceID, Action: action}
	}
	return decisions
}

// applyElementDecision resolves one verdict to a suggestion row, updates
// its status, and appends the audit event. Verdicts that reference nothing
// known are skipped.
func (j *jobDeps) applyElementDecision(ctx context.Context, t model.ElementTarget, suggestions []model.ElementSuggestion, d llm.Decision) error {
	var sug *model.ElementSuggestion
	for i := range suggestions {
		if (d.SuggestionID != 0 && suggestions[i].ID == d.SuggestionID) ||
			(d.SuggestionID == 0 && d.PriceID != 0 && suggestions[i].PriceID == d.PriceID) {
			sug = &suggestions[i]
			break
		}
	}
	if sug == nil {
		return nil
	}

	if err := j.store.UpdateElementSuggestionStatus(ctx, sug.ID, d.Action); err != nil {
		return err
	}

	event := &model.SuggestionEvent{
		Kind:         model.KindElement,
		SuggestionID: sug.ID,
		Action:       d.Action,
		PriceID:      sug.PriceID,
		Group:        t.Group,
		Element:      t.Element,
		Axis:         t.Axis,
	}
	if price, err := j.store.GetPrice(ctx, sug.PriceID); err != nil {
		return err
	} else if price != nil {
		event.Source = price.Source
		event.SourcePage = price.SourcePage
	}
	return j.store.InsertSuggestionEvent(ctx, event)
}

// acceptedItems loads the accepted element suggestions for one axis target
// as estimation input.
func (j *jobDeps) acceptedItems(ctx context.Context, group, label string, axis model.Axis) ([]llm.AcceptedItem, error) {
	suggestions, err := j.store.ListElementSuggestions(ctx, store.ElementFilter{
		Group: group, Element: label, Axis: axis,
		Status: model.SuggestionAccepted, Limit: j.acceptedCap(),
	})
	if err != nil {
		return nil, err
	}
	items := make([]llm.AcceptedItem, len(suggestions))
	for i, s := range suggestions {
		price := s.Price
		items[i] = llm.AcceptedItem{Name: s.PriceName, Unit: s.PriceUnit, Price: &price}
	}
	return items, nil
}

func cellTarget(k *model.CellKey) string {
	return fmt.Sprintf("%s / %s × %s / %s", k.RowGroup, k.RowLabel, k.ColGroup, k.ColLabel)
}

// computeCollisionsAll estimates remediation cost for every cell from its
// accepted row and column positions, reconciled against the catalog.
func (j *jobDeps) computeCollisionsAll(ctx context.Context, taskID int64) error {
	if err := j.store.UpdateTaskStatus(ctx, taskID, model.TaskRunning, 0, "Расчёт коллизий"); err != nil {
		return err
	}
	keys, err := j.store.ListCellKeys(ctx)
	if err != nil {
		return err
	}
	prices, err := j.store.ListPrices(ctx, j.catalogCap())
	if err != nil {
		return err
	}

	processed := 0
	for i := range keys {
		k := &keys[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rowItems, err := j.acceptedItems(ctx, k.RowGroup, k.RowLabel, model.AxisRow)
		if err != nil {
			return err
		}
		colItems, err := j.acceptedItems(ctx, k.ColGroup, k.ColLabel, model.AxisCol)
		if err != nil {
			return err
		}

		if est := j.llm.EstimateCollision(ctx, cellTarget(k), rowItems, colItems); est != nil {
			cost := estimate.Reconcile(k.ID, est, prices)
			if err := j.store.UpsertCollisionCost(ctx, cost); err != nil {
				return err
			}
		}

		processed++
		if err := j.reportEvery(ctx, taskID, progressEvery, processed, len(keys)); err != nil {
			return err
		}
	}

	return j.store.UpdateTaskStatus(ctx, taskID, model.TaskDone, 100, "Готово")
}

// computeRiskAll scores every cell's hazard, importance and difficulty.
func (j *jobDeps) computeRiskAll(ctx context.Context, taskID int64) error {
	if err := j.store.UpdateTaskStatus(ctx, taskID, model.TaskRunning, 0, "Ранжирование важности"); err != nil {
		return err
	}
	keys, err := j.store.ListCellKeys(ctx)
	if err != nil {
		return err
	}

	processed := 0
	for i := range keys {
		k := &keys[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rowItems, err := j.acceptedItems(ctx, k.RowGroup, k.RowLabel, model.AxisRow)
		if err != nil {
			return err
		}
		colItems, err := j.acceptedItems(ctx, k.ColGroup, k.ColLabel, model.AxisCol)
		if err != nil {
			return err
		}

		if risk := j.llm.EstimateRisk(ctx, cellTarget(k), rowItems, colItems); risk != nil {
			if err := j.store.UpsertCellRisk(ctx, &model.CellRisk{
				CellID:     k.ID,
				Hazard:     risk.Hazard,
				Importance: risk.Importance,
				Difficulty: risk.Difficulty,
				Rationale:  risk.Rationale,
			}); err != nil {
				return err
			}
		}

		processed++
		if err := j.reportEvery(ctx, taskID, progressEvery, processed, len(keys)); err != nil {
			return err
		}
	}

	return j.store.UpdateTaskStatus(ctx, taskID, model.TaskDone, 100, "Готово")
}
