package cache

import (
	"context"
	"time"

	"TradePilot/internal/domain/models"
	pkgcache "TradePilot/pkg/cache"
)

// PredictionKey builds the cache key for one (symbol, model) prediction. The
// timestamp is truncated to the TTL so every caller inside the same cycle
// bucket shares one entry.
func PredictionKey(symbol string, modelType models.ModelType, at time.Time, ttl time.Duration) string {
	bucket := at.Unix()
	if ttl > 0 {
		bucket = at.Truncate(ttl).Unix()
	}
	return pkgcache.GenerateKeyWithParams("prediction", symbol, modelType, bucket)
}

// LatestDecisionKey builds the cache key for a symbol's most recent decision.
func LatestDecisionKey(symbol string) string {
	return pkgcache.GenerateKey("decision:latest", symbol)
}

// EngineCache is the typed cache for hot engine reads. Implementations are
// best effort: a failed lookup is a miss, a failed write is dropped.
type EngineCache interface {
	GetPrediction(ctx context.Context, key string) (*models.Prediction, bool)
	SetPrediction(ctx context.Context, key string, p *models.Prediction, ttl time.Duration)
	GetLatestDecision(ctx context.Context, symbol string) (*models.EnsembleDecision, bool)
	SetLatestDecision(ctx context.Context, d *models.EnsembleDecision, ttl time.Duration)
	LatestDecisions(ctx context.Context, symbols []string) map[string]models.EnsembleDecision
}
