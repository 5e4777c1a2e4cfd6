package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradePilot/internal/domain/models"
)

func newTestEnsemble(t *testing.T, store *fakeDecisions) (*EnsembleEngine, *PerformanceTracker) {
	t.Helper()
	perf := NewPerformanceTracker(newMemObjects(), testLogger(t), 168*time.Hour)
	eng := NewEnsembleEngine(testConfig(), perf, store, testEngineCache(t), newNopMetrics(), testLogger(t))
	return eng, perf
}

func allModelPredictions(symbol string, dir models.Direction, conf float64) map[models.ModelType]models.Prediction {
	out := make(map[models.ModelType]models.Prediction)
	for _, mt := range models.AllModelTypes() {
		out[mt] = predAt(symbol, mt, dir, conf)
	}
	return out
}

func TestDecideWeightsSumToOne(t *testing.T) {
	eng, _ := newTestEnsemble(t, &fakeDecisions{})
	preds := allModelPredictions("EURUSD", models.DirectionBuy, 0.8)

	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{}, nil)
	require.NotNil(t, d)
	require.Len(t, d.Weights, len(models.AllModelTypes()))

	sum := 0.0
	for _, w := range d.Weights {
		assert.Greater(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// no trailing history: every model enters at the same weight
	for _, w := range d.Weights {
		assert.InDelta(t, 1.0/float64(len(preds)), w, 1e-9)
	}
}

func TestDecideHoldsBelowThreshold(t *testing.T) {
	eng, _ := newTestEnsemble(t, &fakeDecisions{})
	preds := allModelPredictions("EURUSD", models.DirectionBuy, 0.5)

	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{}, nil)
	require.NotNil(t, d)
	assert.Equal(t, models.DirectionHold, d.Action)
	assert.InDelta(t, 0.5, d.BuyScore, 1e-9)
}

func TestDecideActsOnStrongAgreement(t *testing.T) {
	eng, _ := newTestEnsemble(t, &fakeDecisions{})
	preds := allModelPredictions("EURUSD", models.DirectionSell, 0.9)

	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{}, nil)
	require.NotNil(t, d)
	assert.Equal(t, models.DirectionSell, d.Action)
	assert.InDelta(t, 0.9, d.SellScore, 1e-9)
	assert.InDelta(t, 0.9, d.Confidence, 1e-9)
}

func TestSentimentTipsBorderlineDecision(t *testing.T) {
	eng, _ := newTestEnsemble(t, &fakeDecisions{})
	preds := allModelPredictions("EURUSD", models.DirectionBuy, 0.55)

	// 0.55 alone stays under the 0.6 threshold
	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{}, nil)
	require.Equal(t, models.DirectionHold, d.Action)

	// strong positive sentiment lifts the buy score over the bar
	d = eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{Overall: 0.5}, nil)
	assert.Equal(t, models.DirectionBuy, d.Action)
	assert.InDelta(t, 0.55*1.1, d.BuyScore, 1e-9)
}

func TestNegativeSentimentSuppressesBuy(t *testing.T) {
	eng, _ := newTestEnsemble(t, &fakeDecisions{})
	preds := allModelPredictions("EURUSD", models.DirectionBuy, 0.65)

	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{Overall: -0.5}, nil)
	assert.Equal(t, models.DirectionHold, d.Action)
	assert.InDelta(t, 0.65*0.9, d.BuyScore, 1e-9)
}

func TestWeightedTargetsSkipPredictionsWithoutTargets(t *testing.T) {
	eng, _ := newTestEnsemble(t, &fakeDecisions{})

	preds := allModelPredictions("EURUSD", models.DirectionBuy, 0.8)
	withTarget := preds[models.ModelSequence]
	withTarget.TargetPrice, withTarget.StopLoss, withTarget.TakeProfit = 100, 95, 110
	preds[models.ModelSequence] = withTarget
	withTarget = preds[models.ModelAttention]
	withTarget.TargetPrice, withTarget.StopLoss, withTarget.TakeProfit = 102, 96, 112
	preds[models.ModelAttention] = withTarget

	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{}, nil)
	require.NotNil(t, d)

	// equal weights renormalized over the two contributing models
	assert.InDelta(t, 101.0, d.TargetPrice, 1e-9)
	assert.InDelta(t, 95.5, d.StopLoss, 1e-9)
	assert.InDelta(t, 111.0, d.TakeProfit, 1e-9)
}

func TestDecidePersistsAuditRecordBeforeRisk(t *testing.T) {
	store := &fakeDecisions{}
	eng, _ := newTestEnsemble(t, store)
	preds := allModelPredictions("EURUSD", models.DirectionBuy, 0.8)

	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{}, nil)
	require.NotNil(t, d)
	require.NotEmpty(t, d.ID)

	saved := store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, d.ID, saved[0].ID)
	assert.Nil(t, saved[0].Risk, "audit record precedes the risk verdict")
	assert.NotEmpty(t, saved[0].Reasoning)
}

func TestDecideSurvivesAuditStoreFailure(t *testing.T) {
	store := &fakeDecisions{saveErr: context.DeadlineExceeded}
	eng, _ := newTestEnsemble(t, store)
	preds := allModelPredictions("EURUSD", models.DirectionBuy, 0.8)

	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{}, nil)
	require.NotNil(t, d)
	assert.Equal(t, models.DirectionBuy, d.Action)
}

func TestPerformanceHistoryTiltsWeights(t *testing.T) {
	eng, perf := newTestEnsemble(t, &fakeDecisions{})

	now := time.Now()
	for i := 0; i < 10; i++ {
		perf.RecordOutcome(models.ModelSequence, "EURUSD", true, 50, now.Add(-time.Duration(i)*time.Hour))
	}

	preds := allModelPredictions("EURUSD", models.DirectionBuy, 0.8)
	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{}, nil)
	require.NotNil(t, d)

	sum := 0.0
	for _, w := range d.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, d.Weights[models.ModelSequence], d.Weights[models.ModelAttention],
		"model with winning history outweighs untracked peers")
}

func TestDetectRegime(t *testing.T) {
	calm := windowOf("EURUSD", risingSamples("EURUSD", 50, 100, 0.0001))
	rising := windowOf("EURUSD", risingSamples("EURUSD", 50, 100, 0.005))
	falling := windowOf("EURUSD", risingSamples("EURUSD", 50, 100, -0.005))

	assert.Equal(t, models.RegimeNeutral, detectRegime(nil, 0))
	assert.Equal(t, models.RegimeNeutral, detectRegime(calm, 0))
	assert.Equal(t, models.RegimeBullish, detectRegime(rising, 0.6))
	assert.Equal(t, models.RegimeBearish, detectRegime(falling, -0.6))

	// synthetic whipsaw produces volatility above the 2% bar
	var whip []models.MarketSample
	price := 100.0
	base := time.Now()
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			price *= 1.05
		} else {
			price *= 0.95
		}
		whip = append(whip, models.MarketSample{Symbol: "EURUSD", Bid: price - 0.01, Ask: price + 0.01, Volume: 1000, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	assert.Equal(t, models.RegimeVolatile, detectRegime(windowOf("EURUSD", whip), 0))
}

func TestCacheLatestPublishesDecision(t *testing.T) {
	cache := testEngineCache(t)
	perf := NewPerformanceTracker(newMemObjects(), testLogger(t), 168*time.Hour)
	eng := NewEnsembleEngine(testConfig(), perf, &fakeDecisions{}, cache, newNopMetrics(), testLogger(t))

	preds := allModelPredictions("EURUSD", models.DirectionBuy, 0.8)
	d := eng.Decide(context.Background(), "EURUSD", preds, models.SentimentSnapshot{}, nil)
	require.NotNil(t, d)

	got, ok := cache.GetLatestDecision(context.Background(), "EURUSD")
	require.True(t, ok)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, d.Action, got.Action)
}
