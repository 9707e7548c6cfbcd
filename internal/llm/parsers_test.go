package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cmw-cli/internal/model"
)

func TestParseRankListBare(t *testing.T) {
	results := ParseRankList(`[{"index":0,"score":0.9},{"index":2,"score":0.4}]`)
	require.Len(t, results, 2)
	assert.Equal(t, RankResult{Index: 0, Score: 0.9}, results[0])
	assert.Equal(t, RankResult{Index: 2, Score: 0.4}, results[1])
}

func TestParseRankListWrapped(t *testing.T) {
	results := ParseRankList(`{"rank":[{"index":1,"score":0.7}]}`)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Index)

	// Unknown wrapper field still works via the first array-valued field
	results = ParseRankList(`{"whatever":[{"index":0,"score":1}]}`)
	require.Len(t, results, 1)
}

func TestParseRankListPartialInvalid(t *testing.T) {
	// Entries missing index or score are dropped, the rest survive
	results := ParseRankList(`[{"index":0},{"score":0.5},{"index":1,"score":0.5},"junk"]`)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Index)
}

func TestParseRankListGarbage(t *testing.T) {
	assert.Nil(t, ParseRankList("not json"))
	assert.Nil(t, ParseRankList(`{"note":"no array here"}`))
	assert.Nil(t, ParseRankList(`[]`))
}

func TestParseDecisions(t *testing.T) {
	decisions := ParseDecisions(`[
		{"suggestion_id":10,"price_id":4,"action":"accept","quantity":2},
		{"id":11,"action":"reject"},
		{"suggestion_id":12,"action":"maybe"},
		{"action":"accept"}
	]`)
	require.Len(t, decisions, 2)

	assert.Equal(t, int64(10), decisions[0].SuggestionID)
	assert.Equal(t, int64(4), decisions[0].PriceID)
	assert.Equal(t, model.SuggestionAccepted, decisions[0].Action)
	require.NotNil(t, decisions[0].Quantity)
	assert.InDelta(t, 2, *decisions[0].Quantity, 0.001)

	// "id" is accepted as an alias of "suggestion_id"
	assert.Equal(t, int64(11), decisions[1].SuggestionID)
	assert.Equal(t, model.SuggestionRejected, decisions[1].Action)
}

func TestParseDecisionsWrapped(t *testing.T) {
	decisions := ParseDecisions(`{"decisions":[{"suggestion_id":5,"action":"accept"}]}`)
	require.Len(t, decisions, 1)
	assert.Equal(t, int64(5), decisions[0].SuggestionID)
}

func TestParseCollisionEstimate(t *testing.T) {
	est := ParseCollisionEstimate(`{
		"unit":"компл",
		"price_min":1000,
		"price_max":5000,
		"scenarios":[
			{"name":"минимальный","rationale":"обход","items":[{"work":"перенос трубы","quantity":2},{"work":""}]},
			{"name":"","items":[{"work":"х"}]}
		]
	}`)
	require.NotNil(t, est)
	assert.Equal(t, "компл", est.Unit)
	assert.InDelta(t, 1000, *est.PriceMin, 0.001)
	assert.InDelta(t, 5000, *est.PriceMax, 0.001)

	// The nameless scenario and the workless item are dropped
	require.Len(t, est.Scenarios, 1)
	require.Len(t, est.Scenarios[0].Items, 1)
	assert.Equal(t, "перенос трубы", est.Scenarios[0].Items[0].Work)
	assert.Equal(t, 2.0, est.Scenarios[0].Items[0].Quantity)
}

func TestParseCollisionEstimateEmpty(t *testing.T) {
	assert.Nil(t, ParseCollisionEstimate("not json"))
	assert.Nil(t, ParseCollisionEstimate(`{"unit":"компл"}`))
	assert.Nil(t, ParseCollisionEstimate(`{"scenarios":[{"name":""}]}`))
}

func TestParseRiskEstimate(t *testing.T) {
	est := ParseRiskEstimate(`{"hazard":0.8,"importance":1.4,"difficulty":-0.2,"rationale":"тесно"}`)
	require.NotNil(t, est)
	assert.InDelta(t, 0.8, *est.Hazard, 0.001)
	// Out-of-range values are clamped to [0,1]
	assert.Equal(t, 1.0, *est.Importance)
	assert.Equal(t, 0.0, *est.Difficulty)
	assert.Equal(t, "тесно", est.Rationale)
}

func TestParseRiskEstimatePartial(t *testing.T) {
	est := ParseRiskEstimate(`{"importance":0.5}`)
	require.NotNil(t, est)
	assert.Nil(t, est.Hazard)
	assert.Nil(t, est.Difficulty)
}

func TestParseRiskEstimateEmpty(t *testing.T) {
	assert.Nil(t, ParseRiskEstimate("not json"))
	assert.Nil(t, ParseRiskEstimate(`{"rationale":"нет оценок"}`))
}
