package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/pkg/logger"
)

const performanceSnapshotPath = "performance/tracker.json"

// outcomeSample is one realized data point for a (model type, symbol) pair.
type outcomeSample struct {
	Correct bool      `json:"correct"`
	PnL     float64   `json:"pnl"`
	At      time.Time `json:"at"`
}

// PerformanceTracker keeps a trailing window of realized outcomes per
// (model type, symbol) pair and derives the scorecards ensemble weighting
// feeds on. Snapshots persist through the object store so scores survive
// restarts.
type PerformanceTracker struct {
	objects domrepo.ObjectStore
	log     *logger.Logger
	window  time.Duration

	mu      sync.RWMutex
	samples map[string][]outcomeSample
}

func NewPerformanceTracker(objects domrepo.ObjectStore, log *logger.Logger, window time.Duration) *PerformanceTracker {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &PerformanceTracker{
		objects: objects,
		log:     log.Component("performance"),
		window:  window,
		samples: make(map[string][]outcomeSample),
	}
}

func perfKey(modelType models.ModelType, symbol string) string {
	return string(modelType) + ":" + symbol
}

// RecordOutcome appends a realized outcome and drops samples that fell out of
// the trailing window.
func (t *PerformanceTracker) RecordOutcome(modelType models.ModelType, symbol string, correct bool, pnl float64, at time.Time) {
	key := perfKey(modelType, symbol)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[key] = append(t.samples[key], outcomeSample{Correct: correct, PnL: pnl, At: at})
	t.pruneLocked(key, at)
}

// Performance computes the scorecard for a pair. ok is false when the window
// holds no samples.
func (t *PerformanceTracker) Performance(modelType models.ModelType, symbol string) (models.ModelPerformance, bool) {
	key := perfKey(modelType, symbol)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(key, time.Now())
	ss := t.samples[key]
	if len(ss) == 0 {
		return models.ModelPerformance{}, false
	}

	correct, wins := 0, 0
	pnls := make([]float64, len(ss))
	for i, s := range ss {
		if s.Correct {
			correct++
		}
		if s.PnL > 0 {
			wins++
		}
		pnls[i] = s.PnL
	}

	n := float64(len(ss))
	return models.ModelPerformance{
		ModelType:   modelType,
		Symbol:      symbol,
		Accuracy:    float64(correct) / n,
		SharpeRatio: sharpe(pnls),
		WinRate:     float64(wins) / n,
		SampleCount: len(ss),
		UpdatedAt:   ss[len(ss)-1].At,
	}, true
}

// Scores returns each model's composite score for a symbol; models with no
// history are absent from the map.
func (t *PerformanceTracker) Scores(symbol string) map[models.ModelType]float64 {
	out := make(map[models.ModelType]float64)
	for _, mt := range models.AllModelTypes() {
		if p, ok := t.Performance(mt, symbol); ok {
			out[mt] = p.CompositeScore()
		}
	}
	return out
}

// All returns every current scorecard, sorted for stable listings.
func (t *PerformanceTracker) All() []models.ModelPerformance {
	t.mu.RLock()
	keys := make([]string, 0, len(t.samples))
	for k := range t.samples {
		keys = append(keys, k)
	}
	t.mu.RUnlock()
	sort.Strings(keys)

	out := make([]models.ModelPerformance, 0, len(keys))
	for _, key := range keys {
		mt, sym, ok := splitPerfKey(key)
		if !ok {
			continue
		}
		if p, ok := t.Performance(mt, sym); ok {
			out = append(out, p)
		}
	}
	return out
}

// SaveSnapshot persists the sample map. Called from detached background
// savers; failures are the caller's to log.
func (t *PerformanceTracker) SaveSnapshot(ctx context.Context) error {
	t.mu.RLock()
	data, err := json.Marshal(t.samples)
	t.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal performance snapshot: %w", err)
	}
	if err := t.objects.Put(ctx, performanceSnapshotPath, data, "application/json", nil); err != nil {
		return fmt.Errorf("store performance snapshot: %w", err)
	}
	return nil
}

// Load re-hydrates the sample map from the last snapshot. A missing snapshot
// is a clean start, not an error.
func (t *PerformanceTracker) Load(ctx context.Context) error {
	data, err := t.objects.Get(ctx, performanceSnapshotPath)
	if err != nil {
		if errors.Is(err, domrepo.ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("load performance snapshot: %w", err)
	}

	var samples map[string][]outcomeSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return fmt.Errorf("decode performance snapshot: %w", err)
	}

	t.mu.Lock()
	t.samples = samples
	if t.samples == nil {
		t.samples = make(map[string][]outcomeSample)
	}
	t.mu.Unlock()
	t.log.Info("performance snapshot loaded", logger.Int("pairs", len(samples)))
	return nil
}

func (t *PerformanceTracker) pruneLocked(key string, now time.Time) {
	cutoff := now.Add(-t.window)
	ss := t.samples[key]
	keep := ss[:0]
	for _, s := range ss {
		if s.At.After(cutoff) {
			keep = append(keep, s)
		}
	}
	if len(keep) == 0 {
		delete(t.samples, key)
		return
	}
	t.samples[key] = keep
}

// sharpe is the per-trade mean/stddev ratio of pnl, zero when flat.
func sharpe(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}
	mean := 0.0
	for _, p := range pnls {
		mean += p
	}
	mean /= float64(len(pnls))

	variance := 0.0
	for _, p := range pnls {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(pnls))
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

func splitPerfKey(key string) (models.ModelType, string, bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return models.ModelType(key[:i]), key[i+1:], true
		}
	}
	return "", "", false
}
