package suggest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cmw-cli/internal/llm"
	"github.com/sells-group/cmw-cli/internal/model"
)

// stubClient returns canned JSON for every completion.
type stubClient struct {
	content string
}

func (s stubClient) Complete(ctx context.Context, messages []llm.Message, temperature float64) (string, error) {
	return s.content, nil
}

func scoreByID(scores map[int64]float64) func(*model.PriceRow) float64 {
	return func(p *model.PriceRow) float64 { return scores[p.ID] }
}

func TestRankHeuristicOrder(t *testing.T) {
	prices := []model.PriceRow{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b"},
		{ID: 3, Name: "c"},
	}

	top := rank(context.Background(), nil, "цель", prices, 2,
		scoreByID(map[int64]float64{1: 0.5, 2: 2, 3: 1}))

	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].price.ID)
	assert.Equal(t, 2.0, top[0].score)
	assert.Equal(t, int64(3), top[1].price.ID)
}

func TestRankTiesKeepCatalogOrder(t *testing.T) {
	prices := []model.PriceRow{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b"},
		{ID: 3, Name: "c"},
	}

	top := rank(context.Background(), nil, "цель", prices, 3,
		scoreByID(map[int64]float64{1: 1, 2: 1, 3: 1}))

	require.Len(t, top, 3)
	assert.Equal(t, int64(1), top[0].price.ID)
	assert.Equal(t, int64(2), top[1].price.ID)
	assert.Equal(t, int64(3), top[2].price.ID)
}

func TestRankRerankRescoresTopSlice(t *testing.T) {
	// Index 1 of the heuristic top slice gets a dominant score; index 5 is
	// out of bounds and must be ignored.
	svc := llm.NewService(stubClient{content: `[{"index":1,"score":9},{"index":5,"score":1}]`}, nil)

	prices := []model.PriceRow{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b"},
		{ID: 3, Name: "c"},
	}

	top := rank(context.Background(), svc, "цель", prices, 2,
		scoreByID(map[int64]float64{1: 3, 2: 2, 3: 1}))

	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].price.ID)
	assert.Equal(t, 9.0, top[0].score)
	assert.Equal(t, int64(1), top[1].price.ID)
	// Unmentioned candidates keep their heuristic score
	assert.Equal(t, 3.0, top[1].score)
}

func TestRankRerankGarbageKeepsHeuristicOrder(t *testing.T) {
	svc := llm.NewService(stubClient{content: "not json"}, nil)

	prices := []model.PriceRow{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b"},
	}

	top := rank(context.Background(), svc, "цель", prices, 2,
		scoreByID(map[int64]float64{1: 1, 2: 2}))

	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].price.ID)
	assert.Equal(t, 2.0, top[0].score)
}
