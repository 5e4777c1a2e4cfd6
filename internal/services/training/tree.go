package training

import (
	"context"
	"math"
	"sort"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/services/inference"
)

const treeThresholdBins = 16

// treeTarget maps class labels to the scalar regression target the stump
// ensemble fits: +1 buy, -1 sell, 0 hold.
func treeTarget(label int) float64 {
	switch label {
	case classBuy:
		return 1
	case classSell:
		return -1
	default:
		return 0
	}
}

func stumpValue(s models.Stump, features []float64) float64 {
	if features[s.Feature] <= s.Threshold {
		return s.Left
	}
	return s.Right
}

// trainTree appends one residual-correcting stump per epoch. Shrinkage comes
// from the ensemble learning rate; the checkpoint is a stump-count cut.
func trainTree(ctx context.Context, w *models.ModelWeights, trainSet, valSet []example, p models.Hyperparameters) (*fitResult, error) {
	ens := w.Trees
	if ens.LearningRate <= 0 {
		ens.LearningRate = 0.1
	}

	pred := make([]float64, len(trainSet))
	for i, ex := range trainSet {
		logits, err := inference.ForwardTree(ens, ex.features)
		if err != nil {
			return nil, err
		}
		pred[i] = logits[0]
	}

	bestLen := len(ens.Stumps)
	bestVal := math.Inf(1)
	sinceBest := 0
	var history []models.EpochMetric

	for epoch := 1; epoch <= p.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		residuals := make([]float64, len(trainSet))
		for i, ex := range trainSet {
			residuals[i] = treeTarget(ex.label) - pred[i]
		}
		stump, ok := fitStump(trainSet, residuals)
		if !ok {
			break
		}
		ens.Stumps = append(ens.Stumps, stump)

		var trainLoss float64
		for i, ex := range trainSet {
			pred[i] += ens.LearningRate * stumpValue(stump, ex.features)
			d := treeTarget(ex.label) - pred[i]
			trainLoss += d * d
		}
		trainLoss /= float64(len(trainSet))

		valLoss, valAcc, err := evalTree(ens, valSet)
		if err != nil {
			return nil, err
		}
		history = append(history, models.EpochMetric{Epoch: epoch, Loss: trainLoss, ValLoss: valLoss, Accuracy: valAcc})

		if valLoss < bestVal {
			bestVal = valLoss
			bestLen = len(ens.Stumps)
			sinceBest = 0
		} else {
			sinceBest++
			if p.Patience > 0 && sinceBest >= p.Patience {
				break
			}
		}
	}

	ens.Stumps = ens.Stumps[:bestLen]

	_, trainAcc, err := evalTree(ens, trainSet)
	if err != nil {
		return nil, err
	}
	_, valAcc, err := evalTree(ens, valSet)
	if err != nil {
		return nil, err
	}
	return &fitResult{weights: w, history: history, trainAcc: trainAcc, valAcc: valAcc}, nil
}

// fitStump scans quantile thresholds per feature for the split minimizing
// squared residual error. Returns false when no split separates the set.
func fitStump(set []example, residuals []float64) (models.Stump, bool) {
	if len(set) == 0 {
		return models.Stump{}, false
	}
	nf := len(set[0].features)
	bestErr := math.Inf(1)
	var best models.Stump
	found := false

	vals := make([]float64, len(set))
	sorted := make([]float64, len(set))
	for f := 0; f < nf; f++ {
		for i, ex := range set {
			vals[i] = ex.features[f]
		}
		copy(sorted, vals)
		sort.Float64s(sorted)

		for b := 1; b < treeThresholdBins; b++ {
			thr := sorted[len(sorted)*b/treeThresholdBins]
			var sumL, sumR float64
			var nL, nR int
			for i, v := range vals {
				if v <= thr {
					sumL += residuals[i]
					nL++
				} else {
					sumR += residuals[i]
					nR++
				}
			}
			if nL == 0 || nR == 0 {
				continue
			}
			left := sumL / float64(nL)
			right := sumR / float64(nR)

			var errSum float64
			for i, v := range vals {
				fit := right
				if v <= thr {
					fit = left
				}
				d := residuals[i] - fit
				errSum += d * d
			}
			if errSum < bestErr-1e-12 {
				bestErr = errSum
				best = models.Stump{Feature: f, Threshold: thr, Left: left, Right: right}
				found = true
			}
		}
	}
	return best, found
}

func evalTree(ens *models.StumpEnsemble, set []example) (loss, acc float64, err error) {
	if len(set) == 0 {
		return 0, 0, nil
	}
	correct := 0
	for _, ex := range set {
		logits, err := inference.ForwardTree(ens, ex.features)
		if err != nil {
			return 0, 0, err
		}
		d := treeTarget(ex.label) - logits[0]
		loss += d * d
		if inference.ArgMax(logits) == ex.label {
			correct++
		}
	}
	n := float64(len(set))
	return loss / n, float64(correct) / n, nil
}
