package inference

import (
	"fmt"

	"TradePilot/internal/domain/models"
)

// Class index layout of every model head.
const (
	classBuy  = 0
	classSell = 1
	classHold = 2
)

func directionForClass(class int) models.Direction {
	switch class {
	case classBuy:
		return models.DirectionBuy
	case classSell:
		return models.DirectionSell
	default:
		return models.DirectionHold
	}
}

// EncodeSequence threads a tanh recurrent cell over the normalized window and
// returns the final hidden state.
func EncodeSequence(w *models.SequenceWeights, window []float64) ([]float64, error) {
	hidden := len(w.InputW)
	if hidden == 0 {
		return nil, fmt.Errorf("sequence: empty input weights")
	}
	if len(w.Bias) != hidden {
		return nil, fmt.Errorf("sequence: bias size %d, want %d", len(w.Bias), hidden)
	}
	hw, err := MatrixFromRows(w.HiddenW)
	if err != nil {
		return nil, fmt.Errorf("sequence: hidden weights: %w", err)
	}
	if hw.Rows() != hidden || hw.Cols() != hidden {
		return nil, fmt.Errorf("sequence: hidden weights %dx%d, want %dx%d", hw.Rows(), hw.Cols(), hidden, hidden)
	}

	h := make([]float64, hidden)
	for _, x := range window {
		rec, err := hw.MulVec(h)
		if err != nil {
			return nil, err
		}
		for i := 0; i < hidden; i++ {
			h[i] = tanh(x*w.InputW[i] + rec[i] + w.Bias[i])
		}
	}
	return h, nil
}

// ForwardSequence encodes the window and applies the linear head, returning
// 3-class logits.
func ForwardSequence(w *models.SequenceWeights, window []float64) ([]float64, error) {
	h, err := EncodeSequence(w, window)
	if err != nil {
		return nil, err
	}
	ow, err := MatrixFromRows(w.OutW)
	if err != nil {
		return nil, fmt.Errorf("sequence: output weights: %w", err)
	}
	if ow.Rows() != 3 || ow.Cols() != len(h) {
		return nil, fmt.Errorf("sequence: output weights %dx%d, want 3x%d", ow.Rows(), ow.Cols(), len(h))
	}
	if len(w.OutBias) != 3 {
		return nil, fmt.Errorf("sequence: output bias size %d, want 3", len(w.OutBias))
	}

	logits, err := ow.MulVec(h)
	if err != nil {
		return nil, err
	}
	return AddVec(logits, w.OutBias)
}
