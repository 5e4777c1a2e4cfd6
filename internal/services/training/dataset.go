package training

import (
	"TradePilot/internal/domain/models"
	"TradePilot/internal/services/inference"
)

// labelDeadband absorbs float noise when classifying the next move. Returns
// inside the band are labeled hold.
const labelDeadband = 1e-5

// Class index layout shared with the inference heads.
const (
	classBuy  = 0
	classSell = 1
	classHold = 2
)

// example is one training row: the normalized window, the engineered feature
// vector, the class label of the move right after the window and the signed
// move itself.
type example struct {
	window   []float64
	features []float64
	label    int
	move     float64
}

func classifyMove(move float64) int {
	switch {
	case move > labelDeadband:
		return classBuy
	case move < -labelDeadband:
		return classSell
	default:
		return classHold
	}
}

// buildDataset slides a window of seqLen over the samples and labels each
// window with the direction of the next move.
func buildDataset(samples []models.MarketSample, seqLen int) []example {
	prices := make([]float64, len(samples))
	volumes := make([]float64, len(samples))
	for i, s := range samples {
		prices[i] = s.Mid()
		volumes[i] = s.Volume
	}

	var out []example
	for t := seqLen; t < len(prices); t++ {
		prev := prices[t-1]
		if prev == 0 {
			continue
		}
		move := (prices[t] - prev) / prev
		out = append(out, example{
			window:   inference.ZScore(prices[t-seqLen : t]),
			features: inference.FeatureVector(prices[:t], volumes[:t]),
			label:    classifyMove(move),
			move:     move,
		})
	}
	return out
}

// splitDataset splits chronologically, 80/20, keeping the most recent fifth
// for validation.
func splitDataset(all []example) (train, val []example) {
	cut := len(all) * 4 / 5
	return all[:cut], all[cut:]
}
