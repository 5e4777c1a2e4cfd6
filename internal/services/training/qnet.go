package training

import (
	"context"
	"math"
	"math/rand"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/services/inference"
)

// actionReward scores an action against the move that followed the window:
// the full move magnitude (in percent) for the right direction, its negative
// for the wrong one, and a small carry cost for holding.
func actionReward(action int, move float64) float64 {
	if action == classHold {
		return -0.01
	}
	mag := math.Abs(move) * 100
	if (action == classBuy && move > 0) || (action == classSell && move < 0) {
		return mag
	}
	return -mag
}

// explorationRate decays linearly from 0.3 to 0.05 across the run.
func explorationRate(epoch, total int) float64 {
	if total <= 1 {
		return 0.05
	}
	frac := float64(epoch-1) / float64(total-1)
	return 0.3 - 0.25*frac
}

// trainQNet replays the training window as epsilon-greedy episodes, nudging
// the value head toward realized rewards. The first layer stays frozen.
func trainQNet(ctx context.Context, w *models.ModelWeights, trainSet, valSet []example, p models.Hyperparameters, rng *rand.Rand) (*fitResult, error) {
	net := w.QNet

	best := w.Clone()
	bestVal := math.Inf(1)
	sinceBest := 0
	var history []models.EpochMetric

	for epoch := 1; epoch <= p.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		eps := explorationRate(epoch, p.Epochs)
		var tdSum float64
		for _, ex := range trainSet {
			h, err := inference.EncodeQNet(net, ex.window)
			if err != nil {
				return nil, err
			}
			q := affine(net.W2, net.B2, h)
			action := inference.ArgMax(q)
			if rng.Float64() < eps {
				action = rng.Intn(3)
			}

			delta := q[action] - actionReward(action, ex.move)
			tdSum += delta * delta

			step := p.LearningRate * delta
			for j, v := range h {
				net.W2[action][j] -= step * v
			}
			net.B2[action] -= step
		}
		trainLoss := tdSum / float64(len(trainSet))

		valLoss, valAcc, err := evalQNet(net, valSet)
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

	_, trainAcc, err := evalQNet(best.QNet, trainSet)
	if err != nil {
		return nil, err
	}
	_, valAcc, err := evalQNet(best.QNet, valSet)
	if err != nil {
		return nil, err
	}
	return &fitResult{weights: best, history: history, trainAcc: trainAcc, valAcc: valAcc}, nil
}

// evalQNet scores the greedy policy: squared value error against realized
// rewards plus plain directional accuracy.
func evalQNet(net *models.QNetWeights, set []example) (loss, acc float64, err error) {
	if len(set) == 0 {
		return 0, 0, nil
	}
	correct := 0
	for _, ex := range set {
		h, err := inference.EncodeQNet(net, ex.window)
		if err != nil {
			return 0, 0, err
		}
		q := affine(net.W2, net.B2, h)
		action := inference.ArgMax(q)

		delta := q[action] - actionReward(action, ex.move)
		loss += delta * delta
		if action == ex.label {
			correct++
		}
	}
	n := float64(len(set))
	return loss / n, float64(correct) / n, nil
}
