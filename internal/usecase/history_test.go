package usecase

import (
	"context"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func TestHistoryWindowsAreBoundedPerSymbol(t *testing.T) {
	h := NewMarketHistory(10)

	for _, s := range risingSamples("EURUSD", 25, 100, 0.001) {
		h.Append(s)
	}
	for _, s := range risingSamples("GBPUSD", 3, 1.25, 0.001) {
		h.Append(s)
	}

	if got := h.Len("EURUSD"); got != 10 {
		t.Fatalf("EURUSD window = %d, want the 10-sample cap", got)
	}
	if got := h.Len("GBPUSD"); got != 3 {
		t.Fatalf("GBPUSD window = %d, want 3", got)
	}
	if got := h.Len("USDJPY"); got != 0 {
		t.Fatalf("unknown symbol window = %d, want 0", got)
	}
}

func TestHistoryWindowIsACloneNeverNil(t *testing.T) {
	h := NewMarketHistory(10)

	w := h.Window("USDJPY")
	if w == nil {
		t.Fatal("unknown symbol must yield an empty window, not nil")
	}
	if w.Len() != 0 {
		t.Fatalf("empty window len = %d", w.Len())
	}

	h.Append(models.MarketSample{Symbol: "EURUSD", Bid: 99.99, Ask: 100.01, Timestamp: time.Now()})
	clone := h.Window("EURUSD")
	clone.Append(models.MarketSample{Symbol: "EURUSD", Bid: 1, Ask: 1})
	if got := h.Len("EURUSD"); got != 1 {
		t.Fatalf("clone mutation leaked into the history: len = %d", got)
	}
}

func TestHistoryDropsUnlabeledSamples(t *testing.T) {
	h := NewMarketHistory(10)
	h.Append(models.MarketSample{Bid: 1, Ask: 2})
	if got := h.Len(""); got != 0 {
		t.Fatalf("unlabeled sample stored: %d", got)
	}
}

func TestHistoryLastMid(t *testing.T) {
	h := NewMarketHistory(10)

	if _, ok := h.LastMid("EURUSD"); ok {
		t.Fatal("mid for an unseen symbol")
	}
	h.Append(models.MarketSample{Symbol: "EURUSD", Bid: 99, Ask: 101, Timestamp: time.Now()})
	mid, ok := h.LastMid("EURUSD")
	if !ok || mid != 100 {
		t.Fatalf("mid = %f ok=%v, want 100", mid, ok)
	}
}

func TestRefWindowsSkipSelfAndEmpty(t *testing.T) {
	h := NewMarketHistory(10)
	for _, s := range risingSamples("EURUSD", 5, 100, 0) {
		h.Append(s)
	}
	for _, s := range risingSamples("GBPUSD", 5, 1.25, 0) {
		h.Append(s)
	}

	refs := h.RefWindows([]string{"EURUSD", "GBPUSD", "USDJPY"}, "EURUSD")
	if len(refs) != 1 {
		t.Fatalf("refs = %d, want only GBPUSD", len(refs))
	}
	if refs[0].Symbol != "GBPUSD" {
		t.Fatalf("ref symbol = %s, want GBPUSD", refs[0].Symbol)
	}
}

func TestWarmPreFillsFromArchive(t *testing.T) {
	store := newFakeSampleStore()
	store.samples["EURUSD"] = risingSamples("EURUSD", 30, 100, 0.001)

	h := NewMarketHistory(20)
	h.Warm(context.Background(), store, []string{"EURUSD", "GBPUSD"}, testLogger(t))

	if got := h.Len("EURUSD"); got != 20 {
		t.Fatalf("warmed window = %d, want the 20 most recent", got)
	}
	if got := h.Len("GBPUSD"); got != 0 {
		t.Fatalf("empty archive warmed %d samples", got)
	}
}

func TestCollectorFlushesAtBatchSize(t *testing.T) {
	store := newFakeSampleStore()
	c := NewSampleCollector(store, newNopMetrics(), testLogger(t), 5, time.Hour)

	for _, s := range risingSamples("EURUSD", 7, 100, 0.001) {
		c.Add(s)
	}

	store.mu.Lock()
	batches := len(store.batches)
	var first int
	if batches > 0 {
		first = len(store.batches[0])
	}
	store.mu.Unlock()

	if batches != 1 || first != 5 {
		t.Fatalf("batches = %d first = %d, want one 5-sample flush", batches, first)
	}
}

func TestCollectorStopFlushesRemainder(t *testing.T) {
	store := newFakeSampleStore()
	c := NewSampleCollector(store, newNopMetrics(), testLogger(t), 100, time.Hour)
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatal("second start must fail")
	}

	for _, s := range risingSamples("EURUSD", 3, 100, 0.001) {
		c.Add(s)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	store.mu.Lock()
	total := 0
	for _, b := range store.batches {
		total += len(b)
	}
	store.mu.Unlock()
	if total != 3 {
		t.Fatalf("archived samples = %d, want the 3 buffered ones", total)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
}
