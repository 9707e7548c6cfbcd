package llm

import (
	"context"
	"fmt"
	"strings"
)

// Candidate is one catalog item offered to the reranker.
type Candidate struct {
	Name     string
	Unit     string
	Category string
}

// DecideItem is one pending suggestion offered for an accept/reject verdict.
type DecideItem struct {
	ID       int64
	PriceID  int64
	Name     string
	Unit     string
	Category string
	Price    *float64
}

// AcceptedItem is one accepted catalog position fed into cost and risk
// estimation.
type AcceptedItem struct {
	Name  string
	Unit  string
	Price *float64
}

// Service wraps a Client with domain prompts. When the client is nil
// (provider not configured) every method returns nil without touching the
// network, so callers stay heuristic-only. Transport and parse failures
// degrade to nil the same way.
type Service struct {
	client Client
	debug  *DebugLog
}

// NewService creates a Service. A nil client yields a disabled service.
func NewService(client Client, debug *DebugLog) *Service {
	return &Service{client: client, debug: debug}
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.client != nil
}

// request runs one completion and hands the content to the parser-side
// caller. Errors are logged and absorbed.
func (s *Service) request(ctx context.Context, logName string, messages []Message, temperature float64) string {
	if !s.Enabled() {
		return ""
	}
	s.debug.Log("provider:attempt:"+logName, nil)
	content, err := s.client.Complete(ctx, messages, temperature)
	if err != nil {
		s.debug.Log("provider:error:"+logName, map[string]any{"error": err.Error()})
		return ""
	}
	return content
}

// Rerank asks the provider to score candidates 0..1 by relevance to the
// target. Results reference candidates by their position in the input
// slice. Nil means no usable answer.
func (s *Service) Rerank(ctx context.Context, target string, candidates []Candidate) []RankResult {
	if !s.Enabled() || len(candidates) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Цель: %s\nКандидаты:\n", target)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s", i, c.Name)
		if c.Unit != "" {
			fmt.Fprintf(&b, " (%s)", c.Unit)
		}
		if c.Category != "" {
			fmt.Fprintf(&b, " - %s", c.Category)
		}
		b.WriteString("\n")
	}

	content := s.request(ctx, "rerank", []Message{
		{Role: "system", Content: "Ты помощник-сметчик. На входе цель (дисциплина, элемент или ячейка матрицы) и список позиций из прайс-листа.\nЗадача: расставить приоритет (0..1) по релевантности цели. Верни JSON-массив [{index, score}]."},
		{Role: "user", Content: b.String()},
	}, 0.2)
	if content == "" {
		return nil
	}
	results := ParseRankList(content)
	s.debug.Log("provider:parsed:rerank", map[string]any{"success": len(results) > 0})
	if len(results) == 0 {
		return nil
	}
	return results
}

// DecideElement asks the provider to accept or reject each pending
// suggestion of an element target. Nil means no usable answer.
func (s *Service) DecideElement(ctx context.Context, target string, items []DecideItem) []Decision {
	if !s.Enabled() || len(items) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Элемент: %s\nПредложения:\n", target)
	for _, it := range items {
		fmt.Fprintf(&b, "- suggestion_id=%d price_id=%d: %s", it.ID, it.PriceID, it.Name)
		if it.Unit != "" {
			fmt.Fprintf(&b, " (%s)", it.Unit)
		}
		if it.Category != "" {
			fmt.Fprintf(&b, " - %s", it.Category)
		}
		if it.Price != nil {
			fmt.Fprintf(&b, ", цена %.2f", *it.Price)
		}
		b.WriteString("\n")
	}

	content := s.request(ctx, "decide_element", []Message{
		{Role: "system", Content: "Ты помощник-сметчик. На входе элемент матрицы и список предложенных позиций из прайс-листа.\nЗадача: для каждой позиции решить, относится ли она к элементу. Верни JSON-массив [{suggestion_id, price_id, action}] где action это \"accept\" или \"reject\". При необходимости добавь quantity и unit_price."},
		{Role: "user", Content: b.String()},
	}, 0.1)
	if content == "" {
		return nil
	}
	decisions := ParseDecisions(content)
	s.debug.Log("provider:parsed:decide_element", map[string]any{"success": len(decisions) > 0})
	if len(decisions) == 0 {
		return nil
	}
	return decisions
}

// EstimateCollision asks the provider for cost scenarios of one matrix
// cell, given the accepted positions of its row and column elements. Nil
// means no usable answer.
func (s *Service) EstimateCollision(ctx context.Context, target string, rowItems, colItems []AcceptedItem) *CollisionEstimate {
	if !s.Enabled() {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ячейка: %s\n", target)
	writeAccepted(&b, "Позиции строки", rowItems)
	writeAccepted(&b, "Позиции столбца", colItems)

	content := s.request(ctx, "collision_estimate", []Message{
		{Role: "system", Content: "Ты помощник-сметчик. На входе пересечение двух элементов матрицы коллизий и принятые позиции прайс-листа по каждому элементу.\nЗадача: оценить стоимость устранения коллизии. Верни JSON-объект {unit, price_min, price_max, scenarios: [{name, rationale, items: [{work, quantity}]}]}. Сценарии: минимальный, типовой, сложный."},
		{Role: "user", Content: b.String()},
	}, 0.1)
	if content == "" {
		return nil
	}
	est := ParseCollisionEstimate(content)
	s.debug.Log("provider:parsed:collision_estimate", map[string]any{"success": est != nil})
	return est
}

// EstimateRisk asks the provider for the hazard, importance and difficulty
// of one matrix cell on a 0..1 scale. Nil means no usable answer.
func (s *Service) EstimateRisk(ctx context.Context, target string, rowItems, colItems []AcceptedItem) *RiskEstimate {
	if !s.Enabled() {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ячейка: %s\n", target)
	writeAccepted(&b, "Позиции строки", rowItems)
	writeAccepted(&b, "Позиции столбца", colItems)

	content := s.request(ctx, "risk_estimate", []Message{
		{Role: "system", Content: "Ты помощник-сметчик. На входе пересечение двух элементов матрицы коллизий и принятые позиции прайс-листа по каждому элементу.\nЗадача: оценить риск коллизии по трём шкалам 0..1. Верни JSON-объект {hazard, importance, difficulty, rationale}."},
		{Role: "user", Content: b.String()},
	}, 0.1)
	if content == "" {
		return nil
	}
	est := ParseRiskEstimate(content)
	s.debug.Log("provider:parsed:risk_estimate", map[string]any{"success": est != nil})
	return est
}

func writeAccepted(b *strings.Builder, title string, items []AcceptedItem) {
	fmt.Fprintf(b, "%s:\n", title)
	if len(items) == 0 {
		b.WriteString("- нет принятых позиций\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s", it.Name)
		if it.Unit != "" {
			fmt.Fprintf(b, " (%s)", it.Unit)
		}
		if it.Price != nil {
			fmt.Fprintf(b, ", цена %.2f", *it.Price)
		}
		b.WriteString("\n")
	}
}
