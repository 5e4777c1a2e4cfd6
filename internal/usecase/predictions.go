package usecase

import (
	"context"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	domsvc "TradePilot/internal/domain/service"
	svccache "TradePilot/internal/service/cache"
	"TradePilot/pkg/config"
	"TradePilot/pkg/logger"
)

// PredictionService fronts the inference collaborator with a bucketed result
// cache, bounded retries and a static fallback. It never returns an error:
// after the retry budget the caller gets a HOLD prediction tagged fallback.
type PredictionService struct {
	inference domsvc.InferenceService
	cache     svccache.EngineCache
	metrics   domrepo.Metrics
	log       *logger.Logger

	ttl      time.Duration
	attempts int
	backoff  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPredictionService(cfg *config.Config, inference domsvc.InferenceService, cache svccache.EngineCache, metrics domrepo.Metrics, log *logger.Logger) *PredictionService {
	attempts := cfg.Inference.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &PredictionService{
		inference: inference,
		cache:     cache,
		metrics:   metrics,
		log:       log.Component("predictions"),
		ttl:       cfg.Inference.CacheTTL,
		attempts:  attempts,
		backoff:   cfg.Inference.RetryBackoff,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Predict returns one model's prediction for the symbol, serving repeats
// within a cache bucket from the cache.
func (s *PredictionService) Predict(ctx context.Context, modelType models.ModelType, symbol string, samples []models.MarketSample) *models.Prediction {
	key := svccache.PredictionKey(symbol, modelType, s.now(), s.ttl)
	if p, ok := s.cache.GetPrediction(ctx, key); ok {
		s.metrics.RecordCacheHit(true)
		return p
	}
	s.metrics.RecordCacheHit(false)

	p, err := s.predictWithRetry(ctx, modelType, symbol, samples)
	if err != nil {
		s.metrics.RecordError("inference")
		s.log.Warn("inference unavailable, using fallback",
			logger.String("symbol", symbol),
			logger.String("model_type", string(modelType)),
			logger.Error(err))
		fb := models.FallbackPrediction(symbol, modelType, s.now())
		p = &fb
	}

	s.cache.SetPrediction(ctx, key, p, s.ttl)
	s.metrics.RecordPrediction(string(modelType), string(p.Source))
	return p
}

// PredictAll runs every model type concurrently and returns the full vote set.
func (s *PredictionService) PredictAll(ctx context.Context, symbol string, samples []models.MarketSample) map[models.ModelType]models.Prediction {
	types := models.AllModelTypes()
	out := make(map[models.ModelType]models.Prediction, len(types))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, mt := range types {
		wg.Add(1)
		go func(mt models.ModelType) {
			defer wg.Done()
			p := s.Predict(ctx, mt, symbol, samples)
			mu.Lock()
			out[mt] = *p
			mu.Unlock()
		}(mt)
	}
	wg.Wait()
	return out
}

// predictWithRetry makes up to attempts calls with linear backoff between
// them. The sleep is context-aware so shutdown does not hang on a backoff.
func (s *PredictionService) predictWithRetry(ctx context.Context, modelType models.ModelType, symbol string, samples []models.MarketSample) (*models.Prediction, error) {
	req := domsvc.InferenceRequest{ModelType: modelType, Symbol: symbol, Samples: samples}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		p, err := s.inference.Predict(ctx, req)
		if err == nil {
			return p, nil
		}
		lastErr = err
		if attempt == s.attempts {
			break
		}
		s.log.Debug("inference attempt failed",
			logger.String("symbol", symbol),
			logger.String("model_type", string(modelType)),
			logger.Int("attempt", attempt),
			logger.Error(err))
		if err := s.sleep(ctx, time.Duration(attempt)*s.backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
