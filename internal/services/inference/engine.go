package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	"TradePilot/internal/domain/service"
	"TradePilot/internal/services/indicators"
	"TradePilot/pkg/config"
	"TradePilot/pkg/logger"
)

// targetSpans holds per-architecture ATR multipliers for take-profit and
// stop-loss distances.
var targetSpans = map[models.ModelType]struct{ TP, SL float64 }{
	models.ModelSequence:    {TP: 2.0, SL: 1.0},
	models.ModelAttention:   {TP: 2.2, SL: 1.1},
	models.ModelBoostedTree: {TP: 1.8, SL: 1.0},
	models.ModelRL:          {TP: 1.6, SL: 0.9},
}

// Engine produces predictions from locally stored weights. Symbols without an
// active version are served by the rule predictor; store failures surface as
// errors so the caller's retry loop can take over.
type Engine struct {
	versions repository.VersionStore
	log      *logger.Logger

	seqLen    int
	boost     float64
	maxConf   float64
	discount  float64
	holdBelow float64
}

var _ service.InferenceService = (*Engine)(nil)

func NewEngine(cfg *config.Config, versions repository.VersionStore, log *logger.Logger) *Engine {
	return &Engine{
		versions:  versions,
		log:       log.Component("inference"),
		seqLen:    cfg.Inference.SequenceLength,
		boost:     cfg.Inference.AgreeBoost,
		maxConf:   cfg.Inference.MaxConfidence,
		discount:  cfg.Inference.DisagreeDiscount,
		holdBelow: cfg.Inference.HoldBelow,
	}
}

func (e *Engine) Predict(ctx context.Context, req service.InferenceRequest) (*models.Prediction, error) {
	if len(req.Samples) == 0 {
		return nil, fmt.Errorf("predict %s/%s: no samples", req.ModelType, req.Symbol)
	}

	prices := make([]float64, len(req.Samples))
	volumes := make([]float64, len(req.Samples))
	for i, s := range req.Samples {
		prices[i] = s.Mid()
		volumes[i] = s.Volume
	}
	now := time.Now()

	if len(prices) < e.seqLen {
		e.log.Debug("window below sequence length, using rules",
			logger.String("symbol", req.Symbol),
			logger.String("model_type", string(req.ModelType)),
			logger.Int("samples", len(prices)))
		p := RulePrediction(req.Symbol, req.ModelType, prices, volumes, now)
		attachTargets(&p, prices)
		return &p, nil
	}

	version, err := e.versions.Active(ctx, req.ModelType, req.Symbol)
	if errors.Is(err, repository.ErrNoActiveVersion) {
		p := RulePrediction(req.Symbol, req.ModelType, prices, volumes, now)
		attachTargets(&p, prices)
		return &p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve active version: %w", err)
	}

	weights, err := e.versions.Weights(ctx, req.ModelType, req.Symbol, version.Version)
	if err != nil {
		return nil, fmt.Errorf("load weights v%d: %w", version.Version, err)
	}

	window := ZScore(prices[len(prices)-e.seqLen:])
	logits, err := forward(req.ModelType, weights, window, prices, volumes)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", req.ModelType, err)
	}

	probs := Softmax(logits)
	class := ArgMax(probs)
	dir := directionForClass(class)
	conf := probs[class]

	bag := indicators.Extract(prices, volumes)
	dir, conf, note := crossCheck(dir, conf, ruleSignals(bag), e.boost, e.maxConf, e.discount, e.holdBelow)
	if note != "" {
		e.log.Debug(note,
			logger.String("symbol", req.Symbol),
			logger.String("model_type", string(req.ModelType)),
			logger.Float64("confidence", conf))
	}

	p := models.Prediction{
		Symbol:     req.Symbol,
		ModelType:  req.ModelType,
		Direction:  dir,
		Confidence: conf,
		Timeframe:  "1m",
		Version:    version.Version,
		Source:     models.SourceModel,
		Features:   bag,
		CreatedAt:  now,
	}
	attachTargets(&p, prices)
	return &p, nil
}

func forward(mt models.ModelType, w *models.ModelWeights, window, prices, volumes []float64) ([]float64, error) {
	switch mt {
	case models.ModelSequence:
		if w.Sequence == nil {
			return nil, fmt.Errorf("weights blob missing sequence payload")
		}
		return ForwardSequence(w.Sequence, window)
	case models.ModelAttention:
		if w.Attention == nil {
			return nil, fmt.Errorf("weights blob missing attention payload")
		}
		return ForwardAttention(w.Attention, window)
	case models.ModelBoostedTree:
		if w.Trees == nil {
			return nil, fmt.Errorf("weights blob missing tree payload")
		}
		return ForwardTree(w.Trees, FeatureVector(prices, volumes))
	case models.ModelRL:
		if w.QNet == nil {
			return nil, fmt.Errorf("weights blob missing qnet payload")
		}
		return ForwardQNet(w.QNet, window)
	default:
		return nil, fmt.Errorf("unknown model type %q", mt)
	}
}

// attachTargets derives the price levels from the last mid and window
// volatility. HOLD predictions carry no levels.
func attachTargets(p *models.Prediction, prices []float64) {
	if p.Direction == models.DirectionHold || len(prices) == 0 {
		return
	}
	mid := prices[len(prices)-1]
	span := indicators.ATR(prices, 14)
	if span <= 0 {
		span = mid * 0.002
	}
	m, ok := targetSpans[p.ModelType]
	if !ok {
		m = struct{ TP, SL float64 }{TP: 2.0, SL: 1.0}
	}
	switch p.Direction {
	case models.DirectionBuy:
		p.TargetPrice = mid + m.TP*span
		p.TakeProfit = p.TargetPrice
		p.StopLoss = mid - m.SL*span
	case models.DirectionSell:
		p.TargetPrice = mid - m.TP*span
		p.TakeProfit = p.TargetPrice
		p.StopLoss = mid + m.SL*span
	}
}
