package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	svccache "TradePilot/internal/service/cache"
	"TradePilot/internal/services/indicators"
	"TradePilot/pkg/config"
	"TradePilot/pkg/logger"
)

const regimeReturns = 20

// EnsembleEngine folds the per-model votes, sentiment and performance-based
// weighting into one decision per symbol and cycle. Every decision lands in
// the audit store before the risk engine sees it.
type EnsembleEngine struct {
	performance *PerformanceTracker
	decisions   domrepo.DecisionStore
	cache       svccache.EngineCache
	metrics     domrepo.Metrics
	log         *logger.Logger

	threshold       float64
	sentimentWeight float64
}

func NewEnsembleEngine(cfg *config.Config, performance *PerformanceTracker, decisions domrepo.DecisionStore, cache svccache.EngineCache, metrics domrepo.Metrics, log *logger.Logger) *EnsembleEngine {
	return &EnsembleEngine{
		performance:     performance,
		decisions:       decisions,
		cache:           cache,
		metrics:         metrics,
		log:             log.Component("ensemble"),
		threshold:       cfg.Ensemble.ActionThreshold,
		sentimentWeight: cfg.Ensemble.SentimentWeight,
	}
}

// Decide combines the votes into the cycle's decision and persists the audit
// record. Persistence failure degrades durability, never the cycle.
func (e *EnsembleEngine) Decide(ctx context.Context, symbol string, predictions map[models.ModelType]models.Prediction, sent models.SentimentSnapshot, window *models.SampleWindow) *models.EnsembleDecision {
	weights := e.modelWeights(symbol, predictions)

	buyScore, sellScore := 0.0, 0.0
	buyVotes, sellVotes, holdVotes := 0, 0, 0
	for mt, p := range predictions {
		switch p.Direction {
		case models.DirectionBuy:
			buyScore += weights[mt] * p.Confidence
			buyVotes++
		case models.DirectionSell:
			sellScore += weights[mt] * p.Confidence
			sellVotes++
		default:
			holdVotes++
		}
	}
	buyScore *= 1 + sent.Overall*e.sentimentWeight
	sellScore *= 1 - sent.Overall*e.sentimentWeight

	action := models.DirectionHold
	if buyScore > sellScore && buyScore > e.threshold {
		action = models.DirectionBuy
	} else if sellScore > buyScore && sellScore > e.threshold {
		action = models.DirectionSell
	}

	target, stop, takeProfit := weightedTargets(predictions, weights)
	regime := detectRegime(window, sent.Overall)

	d := &models.EnsembleDecision{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Action:      action,
		Confidence:  indicators.Clip(math.Max(buyScore, sellScore), 0, 1),
		BuyScore:    buyScore,
		SellScore:   sellScore,
		Predictions: predictions,
		Weights:     weights,
		Sentiment:   sent,
		Regime:      regime,
		TargetPrice: target,
		StopLoss:    stop,
		TakeProfit:  takeProfit,
		CreatedAt:   time.Now(),
	}
	d.Reasoning = reasoning(d, buyVotes, sellVotes, holdVotes)

	if err := e.decisions.SaveDecision(ctx, d); err != nil {
		e.metrics.RecordError("persistence")
		e.log.Warn("decision audit write failed", logger.String("decision_id", d.ID), logger.Error(err))
	}
	e.CacheLatest(ctx, d)
	e.metrics.RecordDecision(symbol, string(action))

	return d
}

// CacheLatest publishes the decision to the latest-decision cache. Called
// again after the risk verdict is attached so readers see the final record.
func (e *EnsembleEngine) CacheLatest(ctx context.Context, d *models.EnsembleDecision) {
	e.cache.SetLatestDecision(ctx, d, 0)
}

// modelWeights derives softmax weights over the composite performance scores.
// Models without trailing history enter at score zero, so a fresh system
// weighs all models equally. The result always sums to one.
func (e *EnsembleEngine) modelWeights(symbol string, predictions map[models.ModelType]models.Prediction) map[models.ModelType]float64 {
	scores := e.performance.Scores(symbol)

	types := make([]models.ModelType, 0, len(predictions))
	for _, mt := range models.AllModelTypes() {
		if _, ok := predictions[mt]; ok {
			types = append(types, mt)
		}
	}
	for mt := range predictions {
		if _, known := scores[mt]; !known {
			scores[mt] = 0
		}
	}

	weights := make(map[models.ModelType]float64, len(types))
	sum := 0.0
	for _, mt := range types {
		w := math.Exp(scores[mt])
		weights[mt] = w
		sum += w
	}
	if sum == 0 {
		eq := 1 / float64(len(types))
		for _, mt := range types {
			weights[mt] = eq
		}
		return weights
	}
	for _, mt := range types {
		weights[mt] /= sum
	}
	return weights
}

// weightedTargets averages target/stop/take-profit over the predictions that
// carry price targets, renormalizing weights over the contributing set.
func weightedTargets(predictions map[models.ModelType]models.Prediction, weights map[models.ModelType]float64) (target, stop, takeProfit float64) {
	wsum := 0.0
	for mt, p := range predictions {
		if p.TargetPrice <= 0 {
			continue
		}
		w := weights[mt]
		target += w * p.TargetPrice
		stop += w * p.StopLoss
		takeProfit += w * p.TakeProfit
		wsum += w
	}
	if wsum == 0 {
		return 0, 0, 0
	}
	return target / wsum, stop / wsum, takeProfit / wsum
}

// detectRegime classifies the market from the tail returns and sentiment.
func detectRegime(window *models.SampleWindow, sentiment float64) models.MarketRegime {
	if window == nil {
		return models.RegimeNeutral
	}
	rets := window.Returns()
	if len(rets) == 0 {
		return models.RegimeNeutral
	}
	if len(rets) > regimeReturns {
		rets = rets[len(rets)-regimeReturns:]
	}

	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	vol := indicators.StdDev(rets, len(rets))

	switch {
	case vol > 0.02:
		return models.RegimeVolatile
	case mean > 0.001 && sentiment > 0.5:
		return models.RegimeBullish
	case mean < -0.001 && sentiment < -0.5:
		return models.RegimeBearish
	default:
		return models.RegimeNeutral
	}
}

func reasoning(d *models.EnsembleDecision, buyVotes, sellVotes, holdVotes int) string {
	topModel, topWeight := models.ModelType(""), -1.0
	for _, mt := range models.AllModelTypes() {
		if w, ok := d.Weights[mt]; ok && w > topWeight {
			topModel, topWeight = mt, w
		}
	}
	return fmt.Sprintf("%s: votes buy=%d sell=%d hold=%d, scores buy=%.3f sell=%.3f, lead model %s (w=%.2f), sentiment %.2f, regime %s",
		d.Action, buyVotes, sellVotes, holdVotes, d.BuyScore, d.SellScore, topModel, topWeight, d.Sentiment.Overall, d.Regime)
}
