package usecase

import (
	"context"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func newTestPredictions(t *testing.T, inf *fakeInference, metrics *nopMetrics) *PredictionService {
	t.Helper()
	svc := NewPredictionService(testConfig(), inf, testEngineCache(t), metrics, testLogger(t))
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func TestPredictServesRepeatsFromCache(t *testing.T) {
	inf := &fakeInference{}
	metrics := newNopMetrics()
	svc := newTestPredictions(t, inf, metrics)

	// pin the clock inside one cache bucket
	at := time.Date(2026, 3, 2, 10, 0, 10, 0, time.UTC)
	svc.now = func() time.Time { return at }

	samples := risingSamples("EURUSD", 60, 100, 0.001)
	first := svc.Predict(context.Background(), models.ModelSequence, "EURUSD", samples)
	second := svc.Predict(context.Background(), models.ModelSequence, "EURUSD", samples)

	if first == nil || second == nil {
		t.Fatal("nil prediction")
	}
	if got := inf.callCount(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1 (second read cached)", got)
	}
	if metrics.cacheHits != 1 || metrics.cacheMisses != 1 {
		t.Fatalf("cache hits=%d misses=%d, want 1/1", metrics.cacheHits, metrics.cacheMisses)
	}
}

func TestPredictRefreshesInNewBucket(t *testing.T) {
	inf := &fakeInference{}
	svc := newTestPredictions(t, inf, newNopMetrics())

	at := time.Date(2026, 3, 2, 10, 0, 10, 0, time.UTC)
	svc.now = func() time.Time { return at }
	samples := risingSamples("EURUSD", 60, 100, 0.001)

	svc.Predict(context.Background(), models.ModelSequence, "EURUSD", samples)
	at = at.Add(time.Minute) // next bucket under the 1m ttl
	svc.Predict(context.Background(), models.ModelSequence, "EURUSD", samples)

	if got := inf.callCount(); got != 2 {
		t.Fatalf("upstream calls = %d, want 2 across buckets", got)
	}
}

func TestPredictRetriesThenSucceeds(t *testing.T) {
	inf := &fakeInference{failN: 2}
	svc := newTestPredictions(t, inf, newNopMetrics())

	p := svc.Predict(context.Background(), models.ModelSequence, "EURUSD", risingSamples("EURUSD", 60, 100, 0.001))
	if p.Source != models.SourceModel {
		t.Fatalf("source = %s, want model after retries", p.Source)
	}
	if got := inf.callCount(); got != 3 {
		t.Fatalf("upstream calls = %d, want 3", got)
	}
}

func TestPredictFallsBackAfterRetryBudget(t *testing.T) {
	inf := &fakeInference{failN: 100}
	metrics := newNopMetrics()
	svc := newTestPredictions(t, inf, metrics)

	p := svc.Predict(context.Background(), models.ModelSequence, "EURUSD", risingSamples("EURUSD", 60, 100, 0.001))
	if p == nil {
		t.Fatal("fallback must still produce a prediction")
	}
	if p.Source != models.SourceFallback {
		t.Fatalf("source = %s, want fallback", p.Source)
	}
	if p.Direction != models.DirectionHold {
		t.Fatalf("direction = %s, want HOLD", p.Direction)
	}
	if got := inf.callCount(); got != 3 {
		t.Fatalf("upstream calls = %d, want the 3-attempt budget", got)
	}
	if metrics.errors["inference"] != 1 {
		t.Fatalf("inference errors = %d, want 1", metrics.errors["inference"])
	}
}

func TestPredictAllCoversEveryModel(t *testing.T) {
	inf := &fakeInference{}
	svc := newTestPredictions(t, inf, newNopMetrics())

	out := svc.PredictAll(context.Background(), "EURUSD", risingSamples("EURUSD", 60, 100, 0.001))
	if want := len(models.AllModelTypes()); len(out) != want {
		t.Fatalf("predictions = %d, want %d", len(out), want)
	}
	for _, mt := range models.AllModelTypes() {
		p, ok := out[mt]
		if !ok {
			t.Fatalf("missing prediction for %s", mt)
		}
		if p.ModelType != mt || p.Symbol != "EURUSD" {
			t.Fatalf("mislabeled prediction: %+v", p)
		}
	}
}

func TestPredictStopsRetryingOnCancel(t *testing.T) {
	inf := &fakeInference{failN: 100}
	svc := newTestPredictions(t, inf, newNopMetrics())
	svc.sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	p := svc.Predict(context.Background(), models.ModelSequence, "EURUSD", risingSamples("EURUSD", 60, 100, 0.001))
	if p.Source != models.SourceFallback {
		t.Fatalf("source = %s, want fallback after aborted retry", p.Source)
	}
	if got := inf.callCount(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1 before the aborted backoff", got)
	}
}
