package models

import "time"

// ModelPerformance is one model's trailing-window scorecard for a symbol,
// rebuilt from realized decision outcomes.
type ModelPerformance struct {
	ModelType   ModelType `json:"model_type"`
	Symbol      string    `json:"symbol"`
	Accuracy    float64   `json:"accuracy"` // correct direction calls / samples
	SharpeRatio float64   `json:"sharpe_ratio"`
	WinRate     float64   `json:"win_rate"` // profitable outcomes / samples
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CompositeScore folds the scorecard into the single number ensemble
// weighting runs softmax over.
func (p ModelPerformance) CompositeScore() float64 {
	return 0.4*p.Accuracy + 0.3*p.SharpeRatio + 0.3*p.WinRate
}
