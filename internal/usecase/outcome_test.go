package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func newTestOutcomes(t *testing.T, store *fakeDecisions) (*OutcomeProcessor, *PerformanceTracker) {
	t.Helper()
	perf := NewPerformanceTracker(newMemObjects(), testLogger(t), 168*time.Hour)
	return NewOutcomeProcessor(store, perf, newNopMetrics(), testLogger(t)), perf
}

func TestRealizedDirection(t *testing.T) {
	cases := []struct {
		pos  models.Position
		want models.Direction
	}{
		{models.Position{Direction: models.DirectionBuy, PnL: 10}, models.DirectionBuy},
		{models.Position{Direction: models.DirectionBuy, PnL: -10}, models.DirectionSell},
		{models.Position{Direction: models.DirectionSell, PnL: 10}, models.DirectionSell},
		{models.Position{Direction: models.DirectionSell, PnL: -10}, models.DirectionBuy},
		{models.Position{Direction: models.DirectionBuy, PnL: 0}, models.DirectionHold},
	}
	for _, tc := range cases {
		if got := realizedDirection(tc.pos); got != tc.want {
			t.Fatalf("realizedDirection(%s, pnl %.0f) = %s, want %s", tc.pos.Direction, tc.pos.PnL, got, tc.want)
		}
	}
}

func TestRewardBoundedAndSigned(t *testing.T) {
	if r := models.RewardForPnL(250, 0, 0); r <= 0 || r > 1 {
		t.Fatalf("reward for profit = %f, want in (0,1]", r)
	}
	if r := models.RewardForPnL(-250, 0, 0); r >= 0 || r < -1 {
		t.Fatalf("reward for loss = %f, want in [-1,0)", r)
	}
	if r := models.RewardForPnL(0, 0, 0); r != 0 {
		t.Fatalf("reward for flat = %f, want 0", r)
	}
	if small, big := models.RewardForPnL(10, 0, 0), models.RewardForPnL(1000, 0, 0); small >= big {
		t.Fatalf("reward not monotonic: %f !< %f", small, big)
	}
	// saturation: huge pnl approaches but never passes the cap
	if r := models.RewardForPnL(1e9, 0, 0); math.Abs(r-1) > 1e-6 {
		t.Fatalf("saturated reward = %f, want ~1", r)
	}
}

func TestProcessClosedWritesOutcomeRow(t *testing.T) {
	store := &fakeDecisions{}
	proc, _ := newTestOutcomes(t, store)

	decision := &models.EnsembleDecision{
		ID:     "d-1",
		Symbol: "EURUSD",
		Action: models.DirectionBuy,
		Risk:   &models.RiskAssessment{Score: 0.42},
		Predictions: map[models.ModelType]models.Prediction{
			models.ModelSequence: predAt("EURUSD", models.ModelSequence, models.DirectionBuy, 0.8),
		},
	}
	pos := models.Position{
		DealID:     "deal-1",
		Symbol:     "EURUSD",
		Direction:  models.DirectionBuy,
		Size:       1000,
		PnL:        150,
		DecisionID: "d-1",
	}
	closedAt := time.Now()
	proc.ProcessClosed(context.Background(), pos, decision, closedAt)

	outcomes := store.savedOutcomes()
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(outcomes))
	}
	o := outcomes[0]
	if o.DecisionID != "d-1" || o.Symbol != "EURUSD" {
		t.Fatalf("outcome keyed wrong: %+v", o)
	}
	if !o.Success || o.RealizedDirection != models.DirectionBuy {
		t.Fatalf("outcome verdict wrong: %+v", o)
	}
	if o.RiskScore != 0.42 {
		t.Fatalf("risk score = %f, want carried from the decision", o.RiskScore)
	}
	if o.Reward <= 0 {
		t.Fatalf("reward = %f, want positive", o.Reward)
	}
}

func TestProcessClosedFeedsModelScorecards(t *testing.T) {
	store := &fakeDecisions{}
	proc, perf := newTestOutcomes(t, store)

	decision := &models.EnsembleDecision{
		ID:     "d-2",
		Symbol: "EURUSD",
		Predictions: map[models.ModelType]models.Prediction{
			models.ModelSequence:  predAt("EURUSD", models.ModelSequence, models.DirectionBuy, 0.8),
			models.ModelAttention: predAt("EURUSD", models.ModelAttention, models.DirectionSell, 0.7),
		},
	}
	pos := models.Position{DealID: "deal-2", Symbol: "EURUSD", Direction: models.DirectionBuy, PnL: 80, DecisionID: "d-2"}
	proc.ProcessClosed(context.Background(), pos, decision, time.Now())

	// the buy vote was right, the sell vote was wrong
	seq, ok := perf.Performance(models.ModelSequence, "EURUSD")
	if !ok || seq.Accuracy != 1 {
		t.Fatalf("sequence scorecard = %+v ok=%v, want accuracy 1", seq, ok)
	}
	att, ok := perf.Performance(models.ModelAttention, "EURUSD")
	if !ok || att.Accuracy != 0 {
		t.Fatalf("attention scorecard = %+v ok=%v, want accuracy 0", att, ok)
	}
}

func TestProcessClosedWithoutDecision(t *testing.T) {
	store := &fakeDecisions{}
	proc, perf := newTestOutcomes(t, store)

	pos := models.Position{DealID: "deal-3", Symbol: "EURUSD", Direction: models.DirectionSell, PnL: -40}
	proc.ProcessClosed(context.Background(), pos, nil, time.Now())

	if len(store.savedOutcomes()) != 1 {
		t.Fatal("adopted position still produces an outcome row")
	}
	if all := perf.All(); len(all) != 0 {
		t.Fatalf("scorecards = %d, want none without a decision", len(all))
	}
}
