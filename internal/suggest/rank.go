// Package suggest builds mapping suggestions: catalog items ranked against
// disciplines, matrix elements, and matrix cells. Ranking is heuristic
// keyword scoring with an optional LLM rerank of the top slice; when the
// provider is unavailable the heuristic order stands.
package suggest

import (
	"context"
	"sort"

	"github.com/sells-group/cmw-cli/internal/llm"
	"github.com/sells-group/cmw-cli/internal/model"
)

// candidate pairs a catalog item with its current score.
type candidate struct {
	price model.PriceRow
	score float64
}

// rank scores every catalog item, keeps the topN, and lets the provider
// rescore that slice. Rerank results reference candidates by position;
// unmentioned candidates keep their heuristic score. The final slice is
// sorted by score descending, ties in catalog order.
func rank(ctx context.Context, svc *llm.Service, target string, prices []model.PriceRow, topN int, scoreFn func(*model.PriceRow) float64) []candidate {
	scored := make([]candidate, len(prices))
	for i := range prices {
		scored[i] = candidate{price: prices[i], score: scoreFn(&prices[i])}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	if topN <= 0 {
		topN = 8
	}
	if len(scored) > topN {
		scored = scored[:topN]
	}

	rerankInput := make([]llm.Candidate, len(scored))
	for i, c := range scored {
		rerankInput[i] = llm.Candidate{Name: c.price.Name, Unit: c.price.Unit, Category: c.price.Category}
	}
	results := svc.Rerank(ctx, target, rerankInput)
	if len(results) > 0 {
		for _, r := range results {
			if r.Index >= 0 && r.Index < len(scored) {
				scored[r.Index].score = r.Score
			}
		}
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	}

	return scored
}
