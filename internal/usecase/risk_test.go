package usecase

import (
	"math"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func newTestRisk(t *testing.T) *RiskEngine {
	t.Helper()
	return NewRiskEngine(testConfig(), testLogger(t))
}

func TestRefreshComputesExposureAndDrawdown(t *testing.T) {
	r := newTestRisk(t)

	positions := []models.Position{
		{DealID: "a", Symbol: "EURUSD", Direction: models.DirectionBuy, Size: 10000, EntryPrice: 100, CurrentPrice: 110, PnL: 1000},
		{DealID: "b", Symbol: "GBPUSD", Direction: models.DirectionSell, Size: 5000, EntryPrice: 50, CurrentPrice: 50, PnL: -6000},
	}
	m := r.Refresh(positions)

	// 10000*110/100 + 5000*50/50
	if want := 16000.0; math.Abs(m.Exposure-want) > 1e-9 {
		t.Fatalf("exposure = %f, want %f", m.Exposure, want)
	}
	if want := -5000.0; math.Abs(m.DailyPnL-want) > 1e-9 {
		t.Fatalf("daily pnl = %f, want %f", m.DailyPnL, want)
	}
	// equity 95000 against the initial 100000 peak
	if want := 0.05; math.Abs(m.Drawdown-want) > 1e-9 {
		t.Fatalf("drawdown = %f, want %f", m.Drawdown, want)
	}
	if want := 0.16; math.Abs(m.Utilization-want) > 1e-9 {
		t.Fatalf("utilization = %f, want %f", m.Utilization, want)
	}
	if m.OpenPositions != 2 {
		t.Fatalf("open positions = %d, want 2", m.OpenPositions)
	}
}

func TestRefreshTracksPeakEquity(t *testing.T) {
	r := newTestRisk(t)

	// run up first, then give some back
	r.RecordRealized(20000, time.Now())
	m := r.Refresh(nil)
	if m.Drawdown != 0 {
		t.Fatalf("drawdown at the peak = %f, want 0", m.Drawdown)
	}

	r.RecordRealized(-12000, time.Now())
	m = r.Refresh(nil)
	// equity 108000 off a 120000 peak
	if want := 0.1; math.Abs(m.Drawdown-want) > 1e-9 {
		t.Fatalf("drawdown = %f, want %f", m.Drawdown, want)
	}
}

func TestRecordRealizedRollsOverByDay(t *testing.T) {
	r := newTestRisk(t)

	yesterday := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)

	r.RecordRealized(-4000, yesterday)
	r.RecordRealized(-1000, today)

	r.mu.RLock()
	realized := r.realizedToday
	r.mu.RUnlock()
	if want := -1000.0; realized != want {
		t.Fatalf("realizedToday = %f, want %f (previous day dropped)", realized, want)
	}
}

func TestAssessScoreBucketsAndSizing(t *testing.T) {
	r := newTestRisk(t)

	quiet := &models.EnsembleDecision{Symbol: "EURUSD", Confidence: 0.9, Sentiment: models.SentimentSnapshot{Volatility: 0}}
	base := models.RiskMetrics{PortfolioValue: 100000}

	a := r.Assess(quiet, base)
	// only the confidence term contributes: 0.2 * 0.1
	if want := 0.02; math.Abs(a.Score-want) > 1e-9 {
		t.Fatalf("score = %f, want %f", a.Score, want)
	}
	if a.Level != models.RiskLow {
		t.Fatalf("level = %s, want LOW", a.Level)
	}
	if want := 1000 * (1 - 0.5*0.02); math.Abs(a.MaxSize-want) > 1e-9 {
		t.Fatalf("max size = %f, want %f", a.MaxSize, want)
	}
	if !a.Allowed {
		t.Fatalf("quiet decision blocked: %v", a.Reasons)
	}

	stormy := &models.EnsembleDecision{Symbol: "EURUSD", Confidence: 0.1, Sentiment: models.SentimentSnapshot{Volatility: -1}}
	hot := models.RiskMetrics{PortfolioValue: 100000, Drawdown: 0.2}

	a = r.Assess(stormy, hot)
	// 0.3*1 + 0.3*1 + 0.2*0.9
	if want := 0.78; math.Abs(a.Score-want) > 1e-9 {
		t.Fatalf("score = %f, want %f", a.Score, want)
	}
	if a.Level != models.RiskHigh {
		t.Fatalf("level = %s, want HIGH", a.Level)
	}
}

func TestAssessMidScoreIsMedium(t *testing.T) {
	r := newTestRisk(t)

	d := &models.EnsembleDecision{Symbol: "EURUSD", Confidence: 0.5, Sentiment: models.SentimentSnapshot{Volatility: 0.8}}
	m := models.RiskMetrics{PortfolioValue: 100000, Drawdown: 0.1}

	a := r.Assess(d, m)
	// 0.3*0.5 + 0.3*0.8 + 0.2*0.5
	if want := 0.49; math.Abs(a.Score-want) > 1e-9 {
		t.Fatalf("score = %f, want %f", a.Score, want)
	}
	if a.Level != models.RiskMedium {
		t.Fatalf("level = %s, want MEDIUM", a.Level)
	}
}

func TestAssessGates(t *testing.T) {
	r := newTestRisk(t)
	d := &models.EnsembleDecision{Symbol: "EURUSD", Confidence: 0.9}

	cases := []struct {
		name   string
		m      models.RiskMetrics
		reason string
	}{
		{"exposure", models.RiskMetrics{PortfolioValue: 100000, Exposure: 49500}, "exposure cap"},
		{"positions", models.RiskMetrics{PortfolioValue: 100000, OpenPositions: 10}, "position cap"},
		{"drawdown", models.RiskMetrics{PortfolioValue: 100000, Drawdown: 0.25}, "drawdown cap"},
	}
	for _, tc := range cases {
		a := r.Assess(d, tc.m)
		if a.Allowed {
			t.Fatalf("%s: expected the gate to close", tc.name)
		}
		found := false
		for _, reason := range a.Reasons {
			if reason == tc.reason {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: reasons %v missing %q", tc.name, a.Reasons, tc.reason)
		}
	}
}

func TestAssessRejectionLeavesSizeIntact(t *testing.T) {
	r := newTestRisk(t)
	d := &models.EnsembleDecision{Symbol: "EURUSD", Confidence: 0.9}

	a := r.Assess(d, models.RiskMetrics{PortfolioValue: 100000, OpenPositions: 10})
	if a.Allowed {
		t.Fatal("expected rejection at the position cap")
	}
	if a.MaxSize <= 0 {
		t.Fatalf("max size = %f, want positive even when blocked", a.MaxSize)
	}
}

func TestShouldCloseOnlyLosersPastDrawdownCap(t *testing.T) {
	r := newTestRisk(t)

	breach := models.RiskMetrics{Drawdown: 0.3}
	calm := models.RiskMetrics{Drawdown: 0.1}
	loser := models.Position{DealID: "a", PnL: -500}
	winner := models.Position{DealID: "b", PnL: 500}

	if !r.ShouldClose(loser, breach) {
		t.Fatal("losing position past the cap should close")
	}
	if r.ShouldClose(winner, breach) {
		t.Fatal("winning position rides through the cap")
	}
	if r.ShouldClose(loser, calm) {
		t.Fatal("no close below the cap")
	}
}
