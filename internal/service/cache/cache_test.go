package cache

import (
	"context"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	pkgcache "TradePilot/pkg/cache"
	applogger "TradePilot/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestPredictionKeyBuckets(t *testing.T) {
	ttl := time.Minute
	base := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	k1 := PredictionKey("EURUSD", models.ModelSequence, base.Add(5*time.Second), ttl)
	k2 := PredictionKey("EURUSD", models.ModelSequence, base.Add(40*time.Second), ttl)
	if k1 != k2 {
		t.Fatalf("keys inside one bucket differ: %s vs %s", k1, k2)
	}

	k3 := PredictionKey("EURUSD", models.ModelSequence, base.Add(61*time.Second), ttl)
	if k1 == k3 {
		t.Fatalf("keys across buckets collide: %s", k1)
	}

	k4 := PredictionKey("EURUSD", models.ModelAttention, base.Add(5*time.Second), ttl)
	if k1 == k4 {
		t.Fatalf("keys across models collide: %s", k1)
	}
}

func TestServiceCachePredictionRoundTrip(t *testing.T) {
	c := NewServiceCache(pkgcache.NewMemoryCache(), testLogger(t))
	ctx := context.Background()

	key := PredictionKey("EURUSD", models.ModelRL, time.Now(), time.Minute)
	if _, ok := c.GetPrediction(ctx, key); ok {
		t.Fatalf("unexpected hit on empty cache")
	}

	p := &models.Prediction{
		Symbol:     "EURUSD",
		ModelType:  models.ModelRL,
		Direction:  models.DirectionBuy,
		Confidence: 0.72,
		Source:     models.SourceModel,
		Version:    3,
	}
	c.SetPrediction(ctx, key, p, time.Minute)

	got, ok := c.GetPrediction(ctx, key)
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if got.Direction != models.DirectionBuy || got.Confidence != 0.72 || got.Version != 3 {
		t.Fatalf("round trip mangled prediction: %+v", got)
	}
}

func TestServiceCacheLatestDecision(t *testing.T) {
	c := NewServiceCache(pkgcache.NewMemoryCache(), testLogger(t))
	ctx := context.Background()

	if _, ok := c.GetLatestDecision(ctx, "EURUSD"); ok {
		t.Fatalf("unexpected hit on empty cache")
	}

	d := &models.EnsembleDecision{
		ID:         "d-1",
		Symbol:     "EURUSD",
		Action:     models.DirectionSell,
		Confidence: 0.66,
	}
	c.SetLatestDecision(ctx, d, 5*time.Minute)

	got, ok := c.GetLatestDecision(ctx, "EURUSD")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if got.ID != "d-1" || got.Action != models.DirectionSell {
		t.Fatalf("round trip mangled decision: %+v", got)
	}
}

func TestLatestDecisionsMultiGet(t *testing.T) {
	c := NewServiceCache(pkgcache.NewMemoryCache(), testLogger(t))
	ctx := context.Background()

	c.SetLatestDecision(ctx, &models.EnsembleDecision{ID: "d-1", Symbol: "EURUSD", Action: models.DirectionBuy}, time.Minute)
	c.SetLatestDecision(ctx, &models.EnsembleDecision{ID: "d-2", Symbol: "GBPUSD", Action: models.DirectionHold}, time.Minute)

	got := c.LatestDecisions(ctx, []string{"EURUSD", "GBPUSD", "USDJPY"})
	if len(got) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(got))
	}
	if got["EURUSD"].ID != "d-1" || got["GBPUSD"].ID != "d-2" {
		t.Fatalf("wrong decisions per symbol: %+v", got)
	}
	if _, ok := got["USDJPY"]; ok {
		t.Fatalf("symbol without decision should be absent")
	}
}
