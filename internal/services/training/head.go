package training

import (
	"context"
	"math"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/services/inference"
)

// encoder maps a normalized window to its penultimate representation.
type encoder func(window []float64) ([]float64, error)

// headAccessor points at the mutable linear head inside the envelope.
type headAccessor func(*models.ModelWeights) (outW [][]float64, outBias []float64)

// fitResult is what every architecture trainer hands back to the dispatcher.
type fitResult struct {
	weights  *models.ModelWeights
	history  []models.EpochMetric
	trainAcc float64
	valAcc   float64
}

func affine(outW [][]float64, outBias, h []float64) []float64 {
	logits := make([]float64, len(outW))
	for c, row := range outW {
		sum := outBias[c]
		for j, v := range h {
			sum += row[j] * v
		}
		logits[c] = sum
	}
	return logits
}

// trainHead runs per-sample online cross-entropy updates on the linear head.
// The encoder weights stay frozen; the best-validation-loss checkpoint wins.
func trainHead(ctx context.Context, w *models.ModelWeights, trainSet, valSet []example, p models.Hyperparameters, enc encoder, head headAccessor) (*fitResult, error) {
	outW, outBias := head(w)

	best := w.Clone()
	bestVal := math.Inf(1)
	sinceBest := 0
	var history []models.EpochMetric

	for epoch := 1; epoch <= p.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var trainLoss float64
		for _, ex := range trainSet {
			h, err := enc(ex.window)
			if err != nil {
				return nil, err
			}
			probs := inference.Softmax(affine(outW, outBias, h))
			trainLoss += -math.Log(math.Max(probs[ex.label], 1e-12))

			for c := 0; c < 3; c++ {
				g := probs[c]
				if c == ex.label {
					g -= 1
				}
				step := p.LearningRate * g
				for j, v := range h {
					outW[c][j] -= step * v
				}
				outBias[c] -= step
			}
		}
		trainLoss /= float64(len(trainSet))

		valLoss, valAcc, err := evalHead(outW, outBias, valSet, enc)
		if err != nil {
			return nil, err
		}
		history = append(history, models.EpochMetric{Epoch: epoch, Loss: trainLoss, ValLoss: valLoss, Accuracy: valAcc})

		if valLoss < bestVal {
			bestVal = valLoss
			best = w.Clone()
			sinceBest = 0
		} else {
			sinceBest++
			if p.Patience > 0 && sinceBest >= p.Patience {
				break
			}
		}
	}

	bOutW, bOutBias := head(best)
	_, trainAcc, err := evalHead(bOutW, bOutBias, trainSet, enc)
	if err != nil {
		return nil, err
	}
	_, valAcc, err := evalHead(bOutW, bOutBias, valSet, enc)
	if err != nil {
		return nil, err
	}
	return &fitResult{weights: best, history: history, trainAcc: trainAcc, valAcc: valAcc}, nil
}

func evalHead(outW [][]float64, outBias []float64, set []example, enc encoder) (loss, acc float64, err error) {
	if len(set) == 0 {
		return 0, 0, nil
	}
	correct := 0
	for _, ex := range set {
		h, err := enc(ex.window)
		if err != nil {
			return 0, 0, err
		}
		probs := inference.Softmax(affine(outW, outBias, h))
		loss += -math.Log(math.Max(probs[ex.label], 1e-12))
		if inference.ArgMax(probs) == ex.label {
			correct++
		}
	}
	n := float64(len(set))
	return loss / n, float64(correct) / n, nil
}
