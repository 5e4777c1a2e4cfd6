package usecase

import (
	"context"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/pkg/logger"
)

// OutcomeProcessor turns a closed position into the records the system learns
// from: the decision outcome row, one performance sample per voting model and
// the bounded reward signal.
type OutcomeProcessor struct {
	decisions   domrepo.DecisionStore
	performance *PerformanceTracker
	metrics     domrepo.Metrics
	log         *logger.Logger
}

func NewOutcomeProcessor(decisions domrepo.DecisionStore, performance *PerformanceTracker, metrics domrepo.Metrics, log *logger.Logger) *OutcomeProcessor {
	return &OutcomeProcessor{
		decisions:   decisions,
		performance: performance,
		metrics:     metrics,
		log:         log.Component("outcomes"),
	}
}

// ProcessClosed books the realized result. decision may be nil for positions
// adopted from the executor without a known origin; those only produce the
// outcome row.
func (o *OutcomeProcessor) ProcessClosed(ctx context.Context, p models.Position, decision *models.EnsembleDecision, closedAt time.Time) {
	realized := realizedDirection(p)
	reward := models.RewardForPnL(p.PnL, 0, 0)

	outcome := &models.DecisionOutcome{
		DecisionID:        p.DecisionID,
		Symbol:            p.Symbol,
		PnL:               p.PnL,
		Success:           p.PnL > 0,
		RealizedDirection: realized,
		Reward:            reward,
		ClosedAt:          closedAt,
	}
	if decision != nil && decision.Risk != nil {
		outcome.RiskScore = decision.Risk.Score
	}

	if err := o.decisions.SaveOutcome(ctx, outcome); err != nil {
		o.metrics.RecordError("persistence")
		o.log.Warn("outcome write failed",
			logger.String("deal_id", p.DealID),
			logger.String("decision_id", p.DecisionID),
			logger.Error(err))
	}

	if decision != nil {
		for mt, pred := range decision.Predictions {
			o.performance.RecordOutcome(mt, p.Symbol, pred.Direction == realized, p.PnL, closedAt)
		}
	}

	o.log.Info("position outcome recorded",
		logger.String("symbol", p.Symbol),
		logger.String("deal_id", p.DealID),
		logger.Float64("pnl", p.PnL),
		logger.Float64("reward", reward),
		logger.Bool("success", outcome.Success))
}

// realizedDirection is the market direction the close proved right: the
// position's own direction on a win, its opposite on a loss, HOLD when flat.
func realizedDirection(p models.Position) models.Direction {
	switch {
	case p.PnL > 0:
		return p.Direction
	case p.PnL < 0:
		return opposite(p.Direction)
	default:
		return models.DirectionHold
	}
}

func opposite(d models.Direction) models.Direction {
	if d == models.DirectionBuy {
		return models.DirectionSell
	}
	return models.DirectionBuy
}
