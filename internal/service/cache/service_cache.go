package cache

import (
	"context"
	"errors"
	"time"

	"TradePilot/internal/domain/models"
	pkgcache "TradePilot/pkg/cache"
	applogger "TradePilot/pkg/logger"
)

// ServiceCache implements EngineCache over a pkg/cache Service, so the same
// typed layer runs against Redis, the in-memory cache or the layered one.
type ServiceCache struct {
	svc pkgcache.Service
	log *applogger.Logger
}

func NewServiceCache(svc pkgcache.Service, log *applogger.Logger) *ServiceCache {
	return &ServiceCache{svc: svc, log: log.Component("engine_cache")}
}

var _ EngineCache = (*ServiceCache)(nil)

func (c *ServiceCache) GetPrediction(ctx context.Context, key string) (*models.Prediction, bool) {
	var p models.Prediction
	if err := c.svc.Get(ctx, key, &p); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			c.log.Debug("prediction cache read failed", applogger.String("key", key), applogger.Error(err))
		}
		return nil, false
	}
	return &p, true
}

func (c *ServiceCache) SetPrediction(ctx context.Context, key string, p *models.Prediction, ttl time.Duration) {
	if p == nil {
		return
	}
	if err := c.svc.Set(ctx, key, p, ttl); err != nil {
		c.log.Debug("prediction cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

func (c *ServiceCache) GetLatestDecision(ctx context.Context, symbol string) (*models.EnsembleDecision, bool) {
	var d models.EnsembleDecision
	if err := c.svc.Get(ctx, LatestDecisionKey(symbol), &d); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			c.log.Debug("decision cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
		return nil, false
	}
	return &d, true
}

func (c *ServiceCache) SetLatestDecision(ctx context.Context, d *models.EnsembleDecision, ttl time.Duration) {
	if d == nil {
		return
	}
	if err := c.svc.Set(ctx, LatestDecisionKey(d.Symbol), d, ttl); err != nil {
		c.log.Debug("decision cache write failed", applogger.String("symbol", d.Symbol), applogger.Error(err))
	}
}

// LatestDecisions fetches several symbols' latest decisions in one multi-get.
// Symbols without a cached decision are absent from the result.
func (c *ServiceCache) LatestDecisions(ctx context.Context, symbols []string) map[string]models.EnsembleDecision {
	keys := make([]string, 0, len(symbols))
	for _, s := range symbols {
		keys = append(keys, LatestDecisionKey(s))
	}

	found, err := pkgcache.MGetTyped[models.EnsembleDecision](ctx, c.svc, keys...)
	if err != nil {
		c.log.Debug("decision cache multi read failed", applogger.Error(err))
		return nil
	}

	out := make(map[string]models.EnsembleDecision, len(found))
	for _, s := range symbols {
		if d, ok := found[LatestDecisionKey(s)]; ok {
			out[s] = d
		}
	}
	return out
}
