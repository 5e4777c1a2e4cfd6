package inference

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMatrixFromRowsRejectsRagged(t *testing.T) {
	_, err := MatrixFromRows([][]float64{{1, 2}, {3}})
	if err == nil {
		t.Fatalf("expected error for ragged rows")
	}
}

func TestMulVecShape(t *testing.T) {
	m, err := MatrixFromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}

	out, err := m.MulVec([]float64{1, 1, 1})
	if err != nil {
		t.Fatalf("mulvec: %v", err)
	}
	if !almost(out[0], 6) || !almost(out[1], 15) {
		t.Fatalf("got %v, want [6 15]", out)
	}

	if _, err := m.MulVec([]float64{1, 1}); err == nil {
		t.Fatalf("expected shape error for short vector")
	}
}

func TestDotMismatch(t *testing.T) {
	if _, err := Dot([]float64{1, 2}, []float64{1}); err == nil {
		t.Fatalf("expected length error")
	}
	v, err := Dot([]float64{1, 2, 3}, []float64{4, 5, 6})
	if err != nil {
		t.Fatalf("dot: %v", err)
	}
	if !almost(v, 32) {
		t.Fatalf("dot = %v, want 32", v)
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	p := Softmax([]float64{2, 1, 0.5})
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	if !almost(sum, 1) {
		t.Fatalf("sum = %v, want 1", sum)
	}
	if !(p[0] > p[1] && p[1] > p[2]) {
		t.Fatalf("softmax broke ordering: %v", p)
	}
}

func TestSoftmaxLargeLogits(t *testing.T) {
	p := Softmax([]float64{1000, 999, -1000})
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("p[%d] = %v", i, v)
		}
	}
	if ArgMax(p) != 0 {
		t.Fatalf("argmax = %d, want 0", ArgMax(p))
	}
}

func TestArgMaxEmpty(t *testing.T) {
	if got := ArgMax(nil); got != -1 {
		t.Fatalf("argmax(nil) = %d, want -1", got)
	}
}

func TestZScore(t *testing.T) {
	out := ZScore([]float64{1, 2, 3})
	want := math.Sqrt(1.5)
	if !almost(out[1], 0) || !almost(out[2], want) || !almost(out[0], -want) {
		t.Fatalf("got %v", out)
	}
}

func TestZScoreFlatWindow(t *testing.T) {
	out := ZScore([]float64{5, 5, 5, 5})
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want 0", i, v)
		}
	}
}
