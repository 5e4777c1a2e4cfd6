package inference

import (
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/services/indicators"
)

// RulePrediction produces a deterministic prediction from indicator state.
// It serves model types that have no trained weights yet.
func RulePrediction(symbol string, modelType models.ModelType, prices, volumes []float64, now time.Time) models.Prediction {
	bag := indicators.Extract(prices, volumes)
	dir, conf := ruleDecision(bag)
	return models.Prediction{
		Symbol:     symbol,
		ModelType:  modelType,
		Direction:  dir,
		Confidence: conf,
		Timeframe:  "1m",
		Source:     models.SourceRules,
		Features:   bag,
		CreatedAt:  now,
	}
}

func ruleDecision(f models.FeatureBag) (models.Direction, float64) {
	switch {
	case f.RSI < 30:
		return models.DirectionBuy, 0.65
	case f.RSI > 70:
		return models.DirectionSell, 0.65
	case f.TrendSlope > 0 && f.MACD > f.MACDSignal:
		return models.DirectionBuy, 0.60
	case f.TrendSlope < 0 && f.MACD < f.MACDSignal:
		return models.DirectionSell, 0.60
	default:
		return models.DirectionHold, 0.50
	}
}

// ruleSignals reads three independent directional votes from the indicators:
// trend slope, RSI band and MACD crossover.
func ruleSignals(f models.FeatureBag) []models.Direction {
	trend := models.DirectionHold
	if f.TrendSlope > 0 {
		trend = models.DirectionBuy
	} else if f.TrendSlope < 0 {
		trend = models.DirectionSell
	}

	rsi := models.DirectionHold
	if f.RSI < 30 {
		rsi = models.DirectionBuy
	} else if f.RSI > 70 {
		rsi = models.DirectionSell
	}

	macd := models.DirectionHold
	if f.MACD > f.MACDSignal {
		macd = models.DirectionBuy
	} else if f.MACD < f.MACDSignal {
		macd = models.DirectionSell
	}

	return []models.Direction{trend, rsi, macd}
}

func opposite(d models.Direction) models.Direction {
	switch d {
	case models.DirectionBuy:
		return models.DirectionSell
	case models.DirectionSell:
		return models.DirectionBuy
	default:
		return models.DirectionHold
	}
}

// crossCheck reconciles a model prediction with the rule signals. Two or
// more agreeing signals boost confidence up to the cap; two or more opposing
// signals discount it, downgrading to HOLD when the discounted confidence
// drops under the hold floor.
func crossCheck(dir models.Direction, conf float64, signals []models.Direction, boost, maxConf, discount, holdBelow float64) (models.Direction, float64, string) {
	if dir == models.DirectionHold {
		return dir, conf, ""
	}

	agree, oppose := 0, 0
	opp := opposite(dir)
	for _, s := range signals {
		switch s {
		case dir:
			agree++
		case opp:
			oppose++
		}
	}

	switch {
	case agree >= 2:
		conf *= boost
		if conf > maxConf {
			conf = maxConf
		}
		return dir, conf, "confirmed by rule signals"
	case oppose >= 2:
		conf *= discount
		if conf < holdBelow {
			return models.DirectionHold, conf, "overruled by rule signals"
		}
		return dir, conf, "contradicted by rule signals"
	default:
		return dir, conf, ""
	}
}
