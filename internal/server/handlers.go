package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/cmw-cli/internal/matrix"
	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/store"
)

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func urlInt(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	return n, err == nil
}

func urlInt64(r *http.Request, name string) (int64, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return n, err == nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMatrix(w http.ResponseWriter, r *http.Request) {
	m, err := matrix.Load(s.matrixPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": m.Columns,
		"rows":    m.Rows,
		"grid":    m.Grid,
		"source":  s.matrixPath,
	})
}

func (s *Server) handleExportMatrix(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListCellKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summaries, err := s.store.CellSummaries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out, err := matrix.Export(keys, summaries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="matrix_export.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) handleListPrices(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListPrices(r.Context(), queryLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": rows, "total": len(rows)})
}

func (s *Server) handleListDisciplines(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.ListDisciplines(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disciplines": all})
}

func (s *Server) handleSaveDisciplines(w http.ResponseWriter, r *http.Request) {
	m, err := matrix.Load(s.matrixPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rowGroups, colGroups := matrix.DisciplineGroups(m)

	inserted := 0
	for _, rg := range rowGroups {
		if err := s.store.UpsertDiscipline(r.Context(), rg, model.AxisRow); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		inserted++
	}
	for _, cg := range colGroups {
		if err := s.store.UpsertDiscipline(r.Context(), cg, model.AxisCol); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		inserted++
	}

	all, err := s.store.ListDisciplines(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inserted":    inserted,
		"total":       len(all),
		"disciplines": all,
	})
}

func (s *Server) handleBuildDisciplineSuggestions(w http.ResponseWriter, r *http.Request) {
	m, err := matrix.Load(s.matrixPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rowGroups, colGroups := matrix.DisciplineGroups(m)

	seen := make(map[string]struct{})
	var disciplines []string
	for _, g := range append(rowGroups, colGroups...) {
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		disciplines = append(disciplines, g)
	}

	count, err := s.builder.BuildDisciplineSuggestions(r.Context(), disciplines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"count":       count,
		"disciplines": disciplines,
	})
}

func (s *Server) handleListDisciplineSuggestions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListDisciplineSuggestions(r.Context(), r.URL.Query().Get("discipline"), queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "suggestions": rows, "total": len(rows)})
}

func (s *Server) handleBuildElementSuggestions(w http.ResponseWriter, r *http.Request) {
	m, err := matrix.Load(s.matrixPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count, targets, err := s.builder.BuildElementSuggestions(r.Context(), m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": count, "elements": targets})
}

func (s *Server) handleListElementSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var axis model.Axis
	switch q.Get("axis") {
	case "row":
		axis = model.AxisRow
	case "col":
		axis = model.AxisCol
	}
	rows, err := s.store.ListElementSuggestions(r.Context(), store.ElementFilter{
		Group:   q.Get("grp"),
		Element: q.Get("element"),
		Axis:    axis,
		Limit:   queryLimit(r, 50),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "suggestions": rows, "total": len(rows)})
}

func (s *Server) handleBuildCellSuggestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RowIndex int `json:"row_index"`
		ColIndex int `json:"col_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.builder.BuildCellSuggestions(r.Context(), req.RowIndex, req.ColIndex, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"cell_id":    result.CellID,
		"count":      result.Count,
		"work_types": result.WorkTypes,
	})
}

func (s *Server) handleListCellSuggestions(w http.ResponseWriter, r *http.Request) {
	cellID, err := strconv.ParseInt(r.URL.Query().Get("cell_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Required: numeric cell_id query parameter")
		return
	}
	rows, err := s.store.ListCellSuggestions(r.Context(), cellID, queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "suggestions": rows, "total": len(rows)})
}

func parseStatus(raw string) (model.SuggestionStatus, bool) {
	switch model.SuggestionStatus(raw) {
	case model.SuggestionProposed, model.SuggestionAccepted, model.SuggestionRejected:
		return model.SuggestionStatus(raw), true
	}
	return "", false
}

// handleUpdateSuggestionStatus updates one suggestion's status and appends
// the audit event. The two writes are sequential, not transactional.
func (s *Server) handleUpdateSuggestionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Required: numeric :id and body { status }")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "Required: numeric :id and body { status }")
		return
	}

	event := &model.SuggestionEvent{SuggestionID: id, Action: status}
	ctx := r.Context()

	switch chi.URLParam(r, "kind") {
	case "disciplines":
		sug, err := s.store.GetDisciplineSuggestion(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sug == nil {
			writeError(w, http.StatusNotFound, "Suggestion not found")
			return
		}
		if err := s.store.UpdateDisciplineSuggestionStatus(ctx, id, status); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		event.Kind = model.KindDiscipline
		event.PriceID = sug.PriceID
		event.Group = sug.Discipline
	case "elements":
		sug, err := s.store.GetElementSuggestion(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sug == nil {
			writeError(w, http.StatusNotFound, "Suggestion not found")
			return
		}
		if err := s.store.UpdateElementSuggestionStatus(ctx, id, status); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		event.Kind = model.KindElement
		event.PriceID = sug.PriceID
		event.Group = sug.Group
		event.Element = sug.Element
		event.Axis = sug.Axis
	case "cells":
		sug, err := s.store.GetCellSuggestion(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sug == nil {
			writeError(w, http.StatusNotFound, "Suggestion not found")
			return
		}
		if err := s.store.UpdateCellSuggestionStatus(ctx, id, status); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		event.Kind = model.KindCell
		event.PriceID = sug.PriceID
		// Denormalize the cell's matrix context so the event is readable
		// without a cell_keys join
		key, err := s.store.GetCellKey(ctx, sug.CellID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if key != nil {
			event.Group = key.RowGroup + " / " + key.RowLabel
			event.Element = key.ColGroup + " / " + key.ColLabel
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown suggestion kind")
		return
	}

	if price, err := s.store.GetPrice(ctx, event.PriceID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if price != nil {
		event.Source = price.Source
		event.SourcePage = price.SourcePage
	}
	if err := s.store.InsertSuggestionEvent(ctx, event); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "status": status})
}

func (s *Server) handleListSuggestionEvents(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListSuggestionEvents(r.Context(), queryLimit(r, 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "events": rows, "total": len(rows)})
}

// cellByCoord resolves the {row}/{col} URL params to a cell key, writing
// the error response itself when resolution fails.
func (s *Server) cellByCoord(w http.ResponseWriter, r *http.Request) *model.CellKey {
	row, okRow := urlInt(r, "row")
	col, okCol := urlInt(r, "col")
	if !okRow || !okCol {
		writeError(w, http.StatusBadRequest, "Required: numeric row and col")
		return nil
	}
	key, err := s.store.GetCellKeyByCoord(r.Context(), row, col)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if key == nil {
		writeError(w, http.StatusNotFound, "Cell not found")
		return nil
	}
	return key
}

func (s *Server) handleGetCellEstimate(w http.ResponseWriter, r *http.Request) {
	key := s.cellByCoord(w, r)
	if key == nil {
		return
	}
	cost, err := s.store.GetCollisionCost(r.Context(), key.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cell": key, "estimate": cost})
}

func (s *Server) handleGetCellRisk(w http.ResponseWriter, r *http.Request) {
	key := s.cellByCoord(w, r)
	if key == nil {
		return
	}
	risk, err := s.store.GetCellRisk(r.Context(), key.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cell": key, "risk": risk})
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	typ := model.TaskType(req.Type)
	if !model.KnownTaskType(typ) {
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}
	id, err := s.runner.Start(r.Context(), typ)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListTasks(r.Context(), queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tasks": rows, "total": len(rows)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Required: numeric :id")
		return
	}
	t, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "task": t})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Required: numeric :id")
		return
	}
	t, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	if err := s.runner.Cancel(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) handleListTaskLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := urlInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Required: numeric :id")
		return
	}
	rows, err := s.store.ListTaskLogs(r.Context(), id, queryLimit(r, 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "logs": rows, "total": len(rows)})
}
