package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	domsvc "TradePilot/internal/domain/service"
	svccache "TradePilot/internal/service/cache"
	"TradePilot/pkg/cache"
	"TradePilot/pkg/config"
	"TradePilot/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Market.HistorySize = 200
	cfg.Market.MinSamples = 20
	cfg.Engine.TradingInterval = 50 * time.Millisecond
	cfg.Engine.PositionInterval = 50 * time.Millisecond
	cfg.Engine.RiskInterval = 50 * time.Millisecond
	cfg.Engine.KillSwitchInterval = 50 * time.Millisecond
	cfg.Engine.SnapshotInterval = time.Hour
	cfg.Risk.BasePositionSize = 1000
	cfg.Risk.PortfolioValue = 100000
	cfg.Risk.RiskTolerance = 1.0
	cfg.Risk.MaxExposure = 50000
	cfg.Risk.MaxOpenPositions = 10
	cfg.Risk.MaxDrawdown = 0.25
	cfg.Risk.KillSwitchRules = []config.KillSwitchRule{
		{Condition: "drawdown", Threshold: 0.10, Level: 1},
		{Condition: "drawdown", Threshold: 0.15, Level: 2},
		{Condition: "drawdown", Threshold: 0.20, Level: 3},
		{Condition: "daily_loss", Threshold: 0.05, Level: 2},
		{Condition: "utilization", Threshold: 0.90, Level: 1},
	}
	cfg.Ensemble.ActionThreshold = 0.6
	cfg.Ensemble.SentimentWeight = 0.2
	cfg.Ensemble.PerformanceWindow = 168 * time.Hour
	cfg.Inference.Mode = "local"
	cfg.Inference.SequenceLength = 60
	cfg.Inference.CacheTTL = time.Minute
	cfg.Inference.RetryAttempts = 3
	cfg.Inference.RetryBackoff = time.Second
	cfg.Training.Epochs = 100
	cfg.Training.LearningRate = 0.001
	cfg.Training.FineTuneEpochs = 30
	cfg.Training.FineTuneLearningRate = 0.0001
	cfg.Training.IncrementalEpochs = 20
	cfg.Training.Patience = 10
	cfg.Training.BatchSize = 32
	cfg.Training.HistorySamples = 500
	cfg.Training.KeepVersions = 5
	cfg.Training.PromotionMargin = 0.05
	return cfg
}

func testEngineCache(t *testing.T) svccache.EngineCache {
	t.Helper()
	return svccache.NewServiceCache(cache.NewMemoryCache(), testLogger(t))
}

// nopMetrics counts recorder calls without touching prometheus, whose default
// registry cannot take a second Recorder in the same test binary.
type nopMetrics struct {
	mu          sync.Mutex
	predictions map[string]int
	cacheHits   int
	cacheMisses int
	decisions   map[string]int
	killLevel   int
	jobs        map[string]int
	orders      map[string]int
	errors      map[string]int
}

func newNopMetrics() *nopMetrics {
	return &nopMetrics{
		predictions: make(map[string]int),
		decisions:   make(map[string]int),
		jobs:        make(map[string]int),
		orders:      make(map[string]int),
		errors:      make(map[string]int),
	}
}

var _ domrepo.Metrics = (*nopMetrics)(nil)

func (m *nopMetrics) RecordCycle(string, float64) {}

func (m *nopMetrics) RecordDecision(symbol, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[action]++
}

func (m *nopMetrics) RecordPrediction(modelType, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[source]++
}

func (m *nopMetrics) RecordCacheHit(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func (m *nopMetrics) SetKillSwitchLevel(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killLevel = level
}

func (m *nopMetrics) RecordTrainingJob(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[status]++
}

func (m *nopMetrics) RecordOrder(op string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op
	if failed {
		key += ":failed"
	}
	m.orders[key]++
}

func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

// memObjects is an in-memory ObjectStore.
type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{data: make(map[string][]byte)}
}

var _ domrepo.ObjectStore = (*memObjects)(nil)

func (m *memObjects) Put(_ context.Context, path string, data []byte, _ string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[path] = cp
	return nil
}

func (m *memObjects) Get(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[path]
	if !ok {
		return nil, domrepo.ErrObjectNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *memObjects) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for path := range m.data {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			out = append(out, path)
		}
	}
	return out, nil
}

func (m *memObjects) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, path)
	return nil
}

// fakeDecisions records saved decisions and outcomes.
type fakeDecisions struct {
	mu        sync.Mutex
	decisions []models.EnsembleDecision
	outcomes  []models.DecisionOutcome
	saveErr   error
}

var _ domrepo.DecisionStore = (*fakeDecisions)(nil)

func (f *fakeDecisions) Init(context.Context) error { return nil }

func (f *fakeDecisions) SaveDecision(_ context.Context, d *models.EnsembleDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.decisions = append(f.decisions, *d)
	return nil
}

func (f *fakeDecisions) SaveOutcome(_ context.Context, o *models.DecisionOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, *o)
	return nil
}

func (f *fakeDecisions) RecentDecisions(_ context.Context, symbol string, limit int) ([]models.EnsembleDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.EnsembleDecision(nil), f.decisions...), nil
}

func (f *fakeDecisions) Health(context.Context) error { return nil }
func (f *fakeDecisions) Close() error                 { return nil }

func (f *fakeDecisions) saved() []models.EnsembleDecision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.EnsembleDecision(nil), f.decisions...)
}

func (f *fakeDecisions) savedOutcomes() []models.DecisionOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.DecisionOutcome(nil), f.outcomes...)
}

// fakeInference counts calls and serves scripted results.
type fakeInference struct {
	mu      sync.Mutex
	calls   int
	failN   int // fail the first N calls
	result  func(req domsvc.InferenceRequest) *models.Prediction
	lastReq domsvc.InferenceRequest
}

var _ domsvc.InferenceService = (*fakeInference)(nil)

func (f *fakeInference) Predict(_ context.Context, req domsvc.InferenceRequest) (*models.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.calls <= f.failN {
		return nil, fmt.Errorf("inference down")
	}
	if f.result != nil {
		return f.result(req), nil
	}
	return &models.Prediction{
		Symbol:     req.Symbol,
		ModelType:  req.ModelType,
		Direction:  models.DirectionHold,
		Confidence: 0.5,
		Source:     models.SourceModel,
		CreatedAt:  time.Now(),
	}, nil
}

func (f *fakeInference) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSampleStore serves canned windows and records batches.
type fakeSampleStore struct {
	mu      sync.Mutex
	samples map[string][]models.MarketSample
	batches [][]models.MarketSample
}

func newFakeSampleStore() *fakeSampleStore {
	return &fakeSampleStore{samples: make(map[string][]models.MarketSample)}
}

var _ domrepo.SampleStore = (*fakeSampleStore)(nil)

func (f *fakeSampleStore) Init(context.Context) error { return nil }

func (f *fakeSampleStore) StoreBatch(_ context.Context, batch []models.MarketSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]models.MarketSample(nil), batch...))
	return nil
}

func (f *fakeSampleStore) LatestN(_ context.Context, symbol string, n int) ([]models.MarketSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ss := f.samples[symbol]
	if len(ss) > n {
		ss = ss[len(ss)-n:]
	}
	return append([]models.MarketSample(nil), ss...), nil
}

func (f *fakeSampleStore) Health(context.Context) error { return nil }
func (f *fakeSampleStore) Close() error                 { return nil }

// fakeTrainer returns a scripted result and remembers the last request.
type fakeTrainer struct {
	mu      sync.Mutex
	calls   int
	result  *domsvc.TrainingResult
	err     error
	lastReq *domsvc.TrainingRequest
}

var _ domsvc.TrainingService = (*fakeTrainer)(nil)

func (f *fakeTrainer) Train(_ context.Context, req domsvc.TrainingRequest) (*domsvc.TrainingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = &req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeTrainer) request() *domsvc.TrainingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func (f *fakeTrainer) trainCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTrainingLog struct {
	mu   sync.Mutex
	jobs []models.TrainingJob
}

var _ domrepo.TrainingLog = (*fakeTrainingLog)(nil)

func (f *fakeTrainingLog) Record(_ context.Context, job *models.TrainingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, *job)
	return nil
}

// fakePublisher records enqueued messages.
type fakePublisher struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakePublisher) PublishMessage(_ context.Context, msgType string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgType)
	return nil
}

// fakeFeed hands out one channel the test writes into.
type fakeFeed struct {
	ch        chan models.MarketSample
	mu        sync.Mutex
	closed    bool
	lastSubbd []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan models.MarketSample, 64)}
}

var _ domsvc.MarketFeed = (*fakeFeed)(nil)

func (f *fakeFeed) Subscribe(_ context.Context, symbols []string) (<-chan models.MarketSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSubbd = append([]string(nil), symbols...)
	return f.ch, nil
}

func (f *fakeFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	return nil
}

// window builders

func risingSamples(symbol string, n int, start, step float64) []models.MarketSample {
	out := make([]models.MarketSample, n)
	price := start
	base := time.Now().Add(-time.Duration(n) * time.Second)
	for i := 0; i < n; i++ {
		out[i] = models.MarketSample{
			Symbol:    symbol,
			Bid:       price - 0.01,
			Ask:       price + 0.01,
			Volume:    1000,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		price *= 1 + step
	}
	return out
}

func windowOf(symbol string, samples []models.MarketSample) *models.SampleWindow {
	w := models.NewSampleWindow(symbol, len(samples)+10)
	for _, s := range samples {
		w.Append(s)
	}
	return w
}

func predAt(symbol string, mt models.ModelType, dir models.Direction, conf float64) models.Prediction {
	return models.Prediction{
		Symbol:     symbol,
		ModelType:  mt,
		Direction:  dir,
		Confidence: conf,
		Source:     models.SourceModel,
		CreatedAt:  time.Now(),
	}
}
