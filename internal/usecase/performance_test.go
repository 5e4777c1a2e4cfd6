package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func TestPerformanceScorecard(t *testing.T) {
	tr := NewPerformanceTracker(newMemObjects(), testLogger(t), 168*time.Hour)
	now := time.Now()

	// 3 correct of 4, 2 winners of 4
	tr.RecordOutcome(models.ModelSequence, "EURUSD", true, 100, now.Add(-3*time.Hour))
	tr.RecordOutcome(models.ModelSequence, "EURUSD", true, 40, now.Add(-2*time.Hour))
	tr.RecordOutcome(models.ModelSequence, "EURUSD", true, -20, now.Add(-time.Hour))
	tr.RecordOutcome(models.ModelSequence, "EURUSD", false, -60, now)

	p, ok := tr.Performance(models.ModelSequence, "EURUSD")
	if !ok {
		t.Fatal("expected a scorecard")
	}
	if want := 0.75; math.Abs(p.Accuracy-want) > 1e-9 {
		t.Fatalf("accuracy = %f, want %f", p.Accuracy, want)
	}
	if want := 0.5; math.Abs(p.WinRate-want) > 1e-9 {
		t.Fatalf("win rate = %f, want %f", p.WinRate, want)
	}
	if p.SampleCount != 4 {
		t.Fatalf("sample count = %d, want 4", p.SampleCount)
	}
	if p.SharpeRatio <= 0 {
		t.Fatalf("sharpe = %f, want positive for a net-up series", p.SharpeRatio)
	}
}

func TestPerformanceEmptyPair(t *testing.T) {
	tr := NewPerformanceTracker(newMemObjects(), testLogger(t), 168*time.Hour)

	if _, ok := tr.Performance(models.ModelSequence, "EURUSD"); ok {
		t.Fatal("empty pair should report no scorecard")
	}
	if scores := tr.Scores("EURUSD"); len(scores) != 0 {
		t.Fatalf("scores for untracked symbol = %v, want empty", scores)
	}
}

func TestOutcomesAgeOutOfTheWindow(t *testing.T) {
	tr := NewPerformanceTracker(newMemObjects(), testLogger(t), time.Hour)
	now := time.Now()

	tr.RecordOutcome(models.ModelSequence, "EURUSD", false, -100, now.Add(-2*time.Hour))
	tr.RecordOutcome(models.ModelSequence, "EURUSD", true, 50, now)

	p, ok := tr.Performance(models.ModelSequence, "EURUSD")
	if !ok {
		t.Fatal("expected a scorecard")
	}
	if p.SampleCount != 1 {
		t.Fatalf("sample count = %d, want 1 after pruning", p.SampleCount)
	}
	if p.Accuracy != 1 {
		t.Fatalf("accuracy = %f, want 1 once the old miss aged out", p.Accuracy)
	}
}

func TestIdenticalPnlsHaveZeroSharpe(t *testing.T) {
	tr := NewPerformanceTracker(newMemObjects(), testLogger(t), 168*time.Hour)
	now := time.Now()
	for i := 0; i < 5; i++ {
		tr.RecordOutcome(models.ModelRL, "EURUSD", true, 25, now.Add(-time.Duration(i)*time.Minute))
	}

	p, ok := tr.Performance(models.ModelRL, "EURUSD")
	if !ok {
		t.Fatal("expected a scorecard")
	}
	if p.SharpeRatio != 0 {
		t.Fatalf("sharpe = %f, want 0 for zero variance", p.SharpeRatio)
	}
}

func TestCompositeScoreBlend(t *testing.T) {
	p := models.ModelPerformance{Accuracy: 1, SharpeRatio: 2, WinRate: 0.5}
	if want := 0.4*1 + 0.3*2 + 0.3*0.5; math.Abs(p.CompositeScore()-want) > 1e-9 {
		t.Fatalf("composite = %f, want %f", p.CompositeScore(), want)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	objects := newMemObjects()
	tr := NewPerformanceTracker(objects, testLogger(t), 168*time.Hour)
	now := time.Now()

	tr.RecordOutcome(models.ModelSequence, "EURUSD", true, 100, now)
	tr.RecordOutcome(models.ModelAttention, "GBPUSD", false, -50, now)
	if err := tr.SaveSnapshot(context.Background()); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	restored := NewPerformanceTracker(objects, testLogger(t), 168*time.Hour)
	if err := restored.Load(context.Background()); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	p, ok := restored.Performance(models.ModelSequence, "EURUSD")
	if !ok || p.SampleCount != 1 {
		t.Fatalf("restored scorecard = %+v ok=%v, want 1 sample", p, ok)
	}
	if all := restored.All(); len(all) != 2 {
		t.Fatalf("restored pairs = %d, want 2", len(all))
	}
}

func TestLoadWithoutSnapshotIsCleanStart(t *testing.T) {
	tr := NewPerformanceTracker(newMemObjects(), testLogger(t), 168*time.Hour)
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("load on empty store: %v", err)
	}
	if all := tr.All(); len(all) != 0 {
		t.Fatalf("pairs after clean start = %d, want 0", len(all))
	}
}
