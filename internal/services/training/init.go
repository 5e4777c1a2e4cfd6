package training

import (
	"math"
	"math/rand"

	"TradePilot/internal/domain/models"
)

// Hidden sizes are fixed per architecture. Stored blobs carry their own
// shapes, so resizing here never breaks previously trained versions.
const (
	sequenceHidden = 16
	attentionDim   = 12
	qnetHidden     = 16
)

func randomVector(rng *rand.Rand, n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * scale
	}
	return out
}

func randomRows(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = randomVector(rng, cols, scale)
	}
	return out
}

func newSequenceWeights(rng *rand.Rand) *models.SequenceWeights {
	// recurrence scaled small so hidden state stays bounded over long windows
	recScale := 0.5 / math.Sqrt(sequenceHidden)
	headScale := 1.0 / math.Sqrt(sequenceHidden)
	return &models.SequenceWeights{
		InputW:  randomVector(rng, sequenceHidden, 1),
		HiddenW: randomRows(rng, sequenceHidden, sequenceHidden, recScale),
		Bias:    make([]float64, sequenceHidden),
		OutW:    randomRows(rng, 3, sequenceHidden, headScale),
		OutBias: make([]float64, 3),
	}
}

func newAttentionWeights(rng *rand.Rand) *models.AttentionWeights {
	headScale := 1.0 / math.Sqrt(attentionDim)
	return &models.AttentionWeights{
		Query:   randomVector(rng, attentionDim, 1),
		KeyW:    randomVector(rng, attentionDim, 1),
		ValueW:  randomVector(rng, attentionDim, 1),
		OutW:    randomRows(rng, 3, attentionDim, headScale),
		OutBias: make([]float64, 3),
	}
}

func newTreeWeights(lr float64) *models.StumpEnsemble {
	return &models.StumpEnsemble{LearningRate: lr}
}

func newQNetWeights(rng *rand.Rand, inputLen int) *models.QNetWeights {
	return &models.QNetWeights{
		W1: randomRows(rng, qnetHidden, inputLen, 1.0/math.Sqrt(float64(inputLen))),
		B1: make([]float64, qnetHidden),
		W2: randomRows(rng, 3, qnetHidden, 1.0/math.Sqrt(qnetHidden)),
		B2: make([]float64, 3),
	}
}
