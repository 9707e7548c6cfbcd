package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cmw-cli/internal/llm"
	"github.com/sells-group/cmw-cli/internal/model"
	"github.com/sells-group/cmw-cli/internal/scorer"
	"github.com/sells-group/cmw-cli/internal/store"
)

// Defaults for the per-target candidate slice.
const (
	DefaultDisciplineTopN = 10
	DefaultTopN           = 8
	DefaultCatalogLimit   = 10000
)

// Options tunes suggestion building.
type Options struct {
	TopN         int // elements and cells
	CatalogLimit int
}

// Builder generates and persists suggestions for all three target kinds.
type Builder struct {
	store        store.Store
	scorer       *scorer.Scorer
	llm          *llm.Service
	topN         int
	catalogLimit int
}

// NewBuilder creates a Builder. A disabled llm.Service keeps building
// purely heuristic.
func NewBuilder(st store.Store, sc *scorer.Scorer, svc *llm.Service, opts Options) *Builder {
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	limit := opts.CatalogLimit
	if limit <= 0 {
		limit = DefaultCatalogLimit
	}
	return &Builder{store: st, scorer: sc, llm: svc, topN: topN, catalogLimit: limit}
}

// BuildDisciplineSuggestions ranks the catalog against each discipline and
// upserts the top candidates. Returns the number of persisted suggestions.
func (b *Builder) BuildDisciplineSuggestions(ctx context.Context, disciplines []string) (int, error) {
	prices, err := b.store.ListPrices(ctx, b.catalogLimit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, d := range disciplines {
		top := rank(ctx, b.llm, d, prices, DefaultDisciplineTopN, func(p *model.PriceRow) float64 {
			return b.scorer.ScoreDiscipline(d, p)
		})
		for _, c := range top {
			score := c.score
			sg := &model.DisciplineSuggestion{
				Discipline: d,
				PriceID:    c.price.ID,
				Score:      &score,
				Method:     model.MethodHeuristicLLM,
			}
			if err := b.store.UpsertDisciplineSuggestion(ctx, sg); err != nil {
				return count, err
			}
			count++
		}
	}

	zap.L().Info("discipline suggestions built",
		zap.Int("disciplines", len(disciplines)),
		zap.Int("suggestions", count))
	return count, nil
}

// BuildElementSuggestions ranks the catalog against every element target of
// the matrix (columns first, then rows) and upserts the top candidates.
func (b *Builder) BuildElementSuggestions(ctx context.Context, m *model.MatrixData) (int, []model.ElementTarget, error) {
	prices, err := b.store.ListPrices(ctx, b.catalogLimit)
	if err != nil {
		return 0, nil, err
	}

	targets := m.Targets()
	count := 0
	for _, t := range targets {
		top := rank(ctx, b.llm, t.Group+" / "+t.Element, prices, b.topN, func(p *model.PriceRow) float64 {
			return b.scorer.ScoreElement(t.Group, t.Element, p)
		})
		for _, c := range top {
			score := c.score
			sg := &model.ElementSuggestion{
				Group:   t.Group,
				Element: t.Element,
				Axis:    t.Axis,
				PriceID: c.price.ID,
				Score:   &score,
				Method:  model.MethodHeuristicLLM,
			}
			if err := b.store.UpsertElementSuggestion(ctx, sg); err != nil {
				return count, targets, err
			}
			count++
		}
	}

	zap.L().Info("element suggestions built",
		zap.Int("targets", len(targets)),
		zap.Int("suggestions", count))
	return count, targets, nil
}

// CellResult reports one cell build.
type CellResult struct {
	CellID    int64    `json:"cell_id"`
	Count     int      `json:"count"`
	WorkTypes []string `json:"work_types,omitempty"`
}

// BuildCellSuggestions ranks prices against one cell's four context labels
// and upserts the top candidates with their work-type classification.
// A nil prices slice loads the catalog from the store; bulk jobs pass the
// catalog in once to avoid reloading it per cell.
func (b *Builder) BuildCellSuggestions(ctx context.Context, rowIndex, colIndex int, prices []model.PriceRow) (*CellResult, error) {
	key, err := b.store.GetCellKeyByCoord(ctx, rowIndex, colIndex)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, eris.Errorf("cell key not found at (%d,%d)", rowIndex, colIndex)
	}

	if prices == nil {
		prices, err = b.store.ListPrices(ctx, b.catalogLimit)
		if err != nil {
			return nil, err
		}
	}

	target := fmt.Sprintf("%s / %s × %s / %s", key.RowGroup, key.RowLabel, key.ColGroup, key.ColLabel)
	top := rank(ctx, b.llm, target, prices, b.topN, func(p *model.PriceRow) float64 {
		return b.scorer.ScoreCell(key, p)
	})

	result := &CellResult{CellID: key.ID}
	seen := make(map[string]struct{})
	for _, c := range top {
		wt := scorer.WorkType(strings.Join([]string{
			key.RowGroup, key.RowLabel, key.ColGroup, key.ColLabel, c.price.Name, c.price.Category,
		}, " "))
		if wt != "" {
			if _, ok := seen[wt]; !ok {
				seen[wt] = struct{}{}
				result.WorkTypes = append(result.WorkTypes, wt)
			}
		}
		score := c.score
		sg := &model.CellSuggestion{
			CellID:   key.ID,
			WorkType: wt,
			PriceID:  c.price.ID,
			Score:    &score,
			Method:   model.MethodHeuristicLLM,
		}
		if err := b.store.UpsertCellSuggestion(ctx, sg); err != nil {
			return result, err
		}
		result.Count++
	}

	return result, nil
}
