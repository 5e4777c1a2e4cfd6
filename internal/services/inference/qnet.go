package inference

import (
	"fmt"

	"TradePilot/internal/domain/models"
)

// EncodeQNet runs the first layer of the value network over the normalized
// window and returns the rectified hidden activations.
func EncodeQNet(w *models.QNetWeights, window []float64) ([]float64, error) {
	w1, err := MatrixFromRows(w.W1)
	if err != nil {
		return nil, fmt.Errorf("qnet: first layer: %w", err)
	}
	if w1.Cols() != len(window) {
		return nil, fmt.Errorf("qnet: input size %d, model expects %d", len(window), w1.Cols())
	}
	if len(w.B1) != w1.Rows() {
		return nil, fmt.Errorf("qnet: first bias size %d, want %d", len(w.B1), w1.Rows())
	}

	h, err := w1.MulVec(window)
	if err != nil {
		return nil, err
	}
	h, err = AddVec(h, w.B1)
	if err != nil {
		return nil, err
	}
	for i := range h {
		h[i] = relu(h[i])
	}
	return h, nil
}

// ForwardQNet runs the two-layer value network over the normalized window.
// The three outputs are Q-values for buy, sell and hold.
func ForwardQNet(w *models.QNetWeights, window []float64) ([]float64, error) {
	h, err := EncodeQNet(w, window)
	if err != nil {
		return nil, err
	}
	w2, err := MatrixFromRows(w.W2)
	if err != nil {
		return nil, fmt.Errorf("qnet: second layer: %w", err)
	}
	if w2.Rows() != 3 || w2.Cols() != len(h) {
		return nil, fmt.Errorf("qnet: second layer %dx%d, want 3x%d", w2.Rows(), w2.Cols(), len(h))
	}
	if len(w.B2) != 3 {
		return nil, fmt.Errorf("qnet: second bias size %d, want 3", len(w.B2))
	}

	q, err := w2.MulVec(h)
	if err != nil {
		return nil, err
	}
	return AddVec(q, w.B2)
}
