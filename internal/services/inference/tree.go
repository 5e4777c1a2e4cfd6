package inference

import (
	"fmt"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/services/indicators"
)

// FeatureCount is the length of the engineered vector consumed by the
// boosted-tree model. Stumps reference features by index, so the layout
// below is append-only.
const FeatureCount = 8

// FeatureVector builds the engineered inputs for the boosted-tree model.
func FeatureVector(prices, volumes []float64) []float64 {
	bag := indicators.Extract(prices, volumes)
	return []float64{
		indicators.Momentum(prices, 5),
		bag.Momentum,
		indicators.Momentum(prices, 20),
		(bag.RSI - indicators.NeutralRSI) / indicators.NeutralRSI,
		bag.MACD - bag.MACDSignal,
		bag.TrendSlope,
		bag.Volatility,
		bag.VolumeRatio - 1,
	}
}

// ForwardTree evaluates the stump ensemble on the feature vector. The scalar
// score is mapped to logits as (score, -score, 0) so a strong signal in
// either direction dominates the hold class after softmax.
func ForwardTree(w *models.StumpEnsemble, features []float64) ([]float64, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("tree: empty feature vector")
	}
	score := w.Bias
	for i, s := range w.Stumps {
		if s.Feature < 0 || s.Feature >= len(features) {
			return nil, fmt.Errorf("tree: stump %d references feature %d, have %d", i, s.Feature, len(features))
		}
		if features[s.Feature] <= s.Threshold {
			score += w.LearningRate * s.Left
		} else {
			score += w.LearningRate * s.Right
		}
	}
	return []float64{score, -score, 0}, nil
}
