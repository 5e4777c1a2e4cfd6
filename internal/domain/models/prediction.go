package models

import "time"

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

type ModelType string

const (
	ModelSequence    ModelType = "sequence"     // recurrent cell chain
	ModelAttention   ModelType = "attention"    // attention-weighted aggregation
	ModelBoostedTree ModelType = "boosted_tree" // residual-correcting stumps
	ModelRL          ModelType = "rl"           // feed-forward Q-network
)

// AllModelTypes lists every predictor the engine maintains per symbol.
func AllModelTypes() []ModelType {
	return []ModelType{ModelSequence, ModelAttention, ModelBoostedTree, ModelRL}
}

// PredictionSource records how a prediction was produced.
type PredictionSource string

const (
	SourceModel    PredictionSource = "model"    // forward pass over active weights
	SourceRules    PredictionSource = "rules"    // deterministic trend/RSI fallback
	SourceFallback PredictionSource = "fallback" // static HOLD after failed upstream calls
)

// FeatureBag carries the indicator context a prediction was made with. Known
// fields are typed; Extra is the escape hatch for model-specific values.
type FeatureBag struct {
	RSI         float64            `json:"rsi,omitempty"`
	MACD        float64            `json:"macd,omitempty"`
	MACDSignal  float64            `json:"macd_signal,omitempty"`
	TrendSlope  float64            `json:"trend_slope,omitempty"`
	Volatility  float64            `json:"volatility,omitempty"`
	Momentum    float64            `json:"momentum,omitempty"`
	VolumeRatio float64            `json:"volume_ratio,omitempty"`
	Extra       map[string]float64 `json:"extra,omitempty"`
}

// Prediction is one model's directional call for one cycle. Produced once,
// never mutated.
type Prediction struct {
	Symbol      string           `json:"symbol"`
	ModelType   ModelType        `json:"model_type"`
	Direction   Direction        `json:"direction"`
	Confidence  float64          `json:"confidence"` // [0,1]
	TargetPrice float64          `json:"target_price"`
	StopLoss    float64          `json:"stop_loss"`
	TakeProfit  float64          `json:"take_profit"`
	Timeframe   string           `json:"timeframe"`
	Version     int              `json:"version,omitempty"` // producing weight version, 0 for rules/fallback
	Source      PredictionSource `json:"source"`
	Features    FeatureBag       `json:"features"`
	CreatedAt   time.Time        `json:"created_at"`
}

// FallbackPrediction is the static HOLD returned when upstream inference is
// unavailable after retries.
func FallbackPrediction(symbol string, modelType ModelType, now time.Time) Prediction {
	return Prediction{
		Symbol:     symbol,
		ModelType:  modelType,
		Direction:  DirectionHold,
		Confidence: 0.3,
		Timeframe:  "1m",
		Source:     SourceFallback,
		CreatedAt:  now,
	}
}
