package models

import (
	"math"
	"time"
)

type MarketRegime string

const (
	RegimeBullish  MarketRegime = "bullish"
	RegimeBearish  MarketRegime = "bearish"
	RegimeNeutral  MarketRegime = "neutral"
	RegimeVolatile MarketRegime = "volatile"
)

// SentimentSnapshot is the multi-factor sentiment read for one symbol.
// Component values and Overall are in [-1,1]; FearGreed in [0,100];
// Strength in [0,1].
type SentimentSnapshot struct {
	Symbol      string    `json:"symbol"`
	PriceAction float64   `json:"price_action"`
	Volume      float64   `json:"volume"`
	Volatility  float64   `json:"volatility"`
	Correlation float64   `json:"correlation"`
	Overall     float64   `json:"overall"`
	FearGreed   float64   `json:"fear_greed"`
	Strength    float64   `json:"strength"`
	Confidence  float64   `json:"confidence"`
	Samples     int       `json:"samples"`
	Timestamp   time.Time `json:"timestamp"`
}

// NeutralSentiment is the defined result when the window holds fewer samples
// than the analyzer needs. Insufficient data is not an error.
func NeutralSentiment(symbol string, samples int, now time.Time) SentimentSnapshot {
	return SentimentSnapshot{
		Symbol:     symbol,
		FearGreed:  50,
		Strength:   0.5,
		Confidence: 0.3,
		Samples:    samples,
		Timestamp:  now,
	}
}

// EnsembleDecision is the single actionable output for one symbol and cycle.
// Persisted as an immutable audit record; the realized outcome is recorded
// separately keyed by ID.
type EnsembleDecision struct {
	ID          string                   `json:"id"`
	Symbol      string                   `json:"symbol"`
	Action      Direction                `json:"action"`
	Confidence  float64                  `json:"confidence"`
	BuyScore    float64                  `json:"buy_score"`
	SellScore   float64                  `json:"sell_score"`
	Predictions map[ModelType]Prediction `json:"predictions"`
	Weights     map[ModelType]float64    `json:"weights"` // sum to 1
	Sentiment   SentimentSnapshot        `json:"sentiment"`
	Regime      MarketRegime             `json:"regime"`
	Risk        *RiskAssessment          `json:"risk,omitempty"` // attached after assessment
	TargetPrice float64                  `json:"target_price"`
	StopLoss    float64                  `json:"stop_loss"`
	TakeProfit  float64                  `json:"take_profit"`
	Reasoning   string                   `json:"reasoning"`
	CreatedAt   time.Time                `json:"created_at"`
}

// DecisionOutcome annotates a persisted decision with its realized result.
type DecisionOutcome struct {
	DecisionID        string    `json:"decision_id"`
	Symbol            string    `json:"symbol"`
	PnL               float64   `json:"pnl"`
	Success           bool      `json:"success"`
	RealizedDirection Direction `json:"realized_direction"`
	Reward            float64   `json:"reward"`
	RiskScore         float64   `json:"risk_score"`
	ClosedAt          time.Time `json:"closed_at"`
}

// RewardForPnL maps realized pnl onto the bounded reward signal consumed by
// model-performance tracking and RL training. Sign always matches the pnl
// sign; magnitude is monotonic in |pnl| and saturates at cap.
func RewardForPnL(pnl, scale, cap float64) float64 {
	if scale <= 0 {
		scale = 100
	}
	if cap <= 0 {
		cap = 1
	}
	return cap * math.Tanh(pnl/scale)
}
