package inference

import (
	"fmt"
	"math"
)

// Matrix is a fixed-shape 2D float64 array backing the model forward passes.
// All operations check shapes explicitly; the math itself is pure.
type Matrix struct {
	rows, cols int
	data       []float64
}

func NewMatrix(rows, cols int) Matrix {
	return Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// MatrixFromRows builds a matrix from row slices, rejecting ragged input.
func MatrixFromRows(rows [][]float64) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, fmt.Errorf("matrix: no rows")
	}
	cols := len(rows[0])
	m := NewMatrix(len(rows), cols)
	for r, row := range rows {
		if len(row) != cols {
			return Matrix{}, fmt.Errorf("matrix: ragged row %d: want %d cols, got %d", r, cols, len(row))
		}
		copy(m.data[r*cols:(r+1)*cols], row)
	}
	return m, nil
}

func (m Matrix) Rows() int { return m.rows }
func (m Matrix) Cols() int { return m.cols }

func (m Matrix) At(r, c int) float64 {
	return m.data[r*m.cols+c]
}

func (m Matrix) Set(r, c int, v float64) {
	m.data[r*m.cols+c] = v
}

// MulVec computes m · v for a vector of length Cols.
func (m Matrix) MulVec(v []float64) ([]float64, error) {
	if len(v) != m.cols {
		return nil, fmt.Errorf("matrix: mulvec shape mismatch: %dx%d · %d", m.rows, m.cols, len(v))
	}
	out := make([]float64, m.rows)
	for r := 0; r < m.rows; r++ {
		sum := 0.0
		base := r * m.cols
		for c := 0; c < m.cols; c++ {
			sum += m.data[base+c] * v[c]
		}
		out[r] = sum
	}
	return out, nil
}

// Dot is the inner product of two equal-length vectors.
func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("matrix: dot shape mismatch: %d vs %d", len(a), len(b))
	}
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// AddVec adds two equal-length vectors.
func AddVec(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("matrix: add shape mismatch: %d vs %d", len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out, nil
}

// Scale multiplies a vector by a scalar.
func Scale(v []float64, s float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = v[i] * s
	}
	return out
}

// Apply maps fn over a vector.
func Apply(v []float64, fn func(float64) float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = fn(v[i])
	}
	return out
}

// Softmax normalizes logits into a probability distribution. Max-shifted for
// numeric stability; an empty input returns nil.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ArgMax returns the index of the largest value, -1 for empty input.
func ArgMax(v []float64) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// ZScore normalizes a window with its own mean and standard deviation. A zero
// sigma is guarded to 1 so flat windows normalize to zeros.
func ZScore(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	varSum := 0.0
	for _, v := range values {
		d := v - mean
		varSum += d * d
	}
	sigma := math.Sqrt(varSum / float64(len(values)))
	if sigma == 0 {
		sigma = 1
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mean) / sigma
	}
	return out
}

func tanh(x float64) float64 { return math.Tanh(x) }

func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}
