package inference

import (
	"fmt"
	"math"

	"TradePilot/internal/domain/models"
)

// EncodeAttention scores every step of the normalized window against a
// learned query and pools the value projections by softmax weight, returning
// the pooled context vector.
func EncodeAttention(w *models.AttentionWeights, window []float64) ([]float64, error) {
	d := len(w.Query)
	if d == 0 {
		return nil, fmt.Errorf("attention: empty query")
	}
	if len(w.KeyW) != d || len(w.ValueW) != d {
		return nil, fmt.Errorf("attention: key/value size %d/%d, want %d", len(w.KeyW), len(w.ValueW), d)
	}
	if len(window) == 0 {
		return nil, fmt.Errorf("attention: empty window")
	}

	scale := math.Sqrt(float64(d))
	scores := make([]float64, len(window))
	for t, x := range window {
		key := Scale(w.KeyW, x)
		s, err := Dot(w.Query, key)
		if err != nil {
			return nil, err
		}
		scores[t] = s / scale
	}
	alpha := Softmax(scores)

	context := make([]float64, d)
	for t, x := range window {
		for i := 0; i < d; i++ {
			context[i] += alpha[t] * w.ValueW[i] * x
		}
	}
	return context, nil
}

// ForwardAttention encodes the window and applies the linear head, returning
// 3-class logits.
func ForwardAttention(w *models.AttentionWeights, window []float64) ([]float64, error) {
	context, err := EncodeAttention(w, window)
	if err != nil {
		return nil, err
	}
	ow, err := MatrixFromRows(w.OutW)
	if err != nil {
		return nil, fmt.Errorf("attention: output weights: %w", err)
	}
	if ow.Rows() != 3 || ow.Cols() != len(context) {
		return nil, fmt.Errorf("attention: output weights %dx%d, want 3x%d", ow.Rows(), ow.Cols(), len(context))
	}
	if len(w.OutBias) != 3 {
		return nil, fmt.Errorf("attention: output bias size %d, want 3", len(w.OutBias))
	}

	logits, err := ow.MulVec(context)
	if err != nil {
		return nil, err
	}
	return AddVec(logits, w.OutBias)
}
