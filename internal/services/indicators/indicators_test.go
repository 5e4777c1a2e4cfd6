package indicators

import (
	"math"
	"testing"
)

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestRSINeutralOnShortSeries(t *testing.T) {
	if got := RSI([]float64{1, 2, 3}, 14); got != NeutralRSI {
		t.Fatalf("want neutral RSI 50, got %v", got)
	}
	if got := RSI(nil, 14); got != NeutralRSI {
		t.Fatalf("want neutral RSI 50 on empty series, got %v", got)
	}
}

func TestRSIDirectionAndBounds(t *testing.T) {
	up := RSI(linear(30, 100, 0.5), 14)
	if up <= 50 || up > 100 {
		t.Fatalf("rising series should give RSI in (50,100], got %v", up)
	}
	down := RSI(linear(30, 100, -0.5), 14)
	if down >= 50 || down < 0 {
		t.Fatalf("falling series should give RSI in [0,50), got %v", down)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		series[i] = 42.0
	}
	if got := EMA(series, 12); math.Abs(got-42.0) > 1e-9 {
		t.Fatalf("EMA of constant series: want 42, got %v", got)
	}
}

func TestMACDShortAndRising(t *testing.T) {
	macd, signal, hist := MACD(linear(10, 100, 1))
	if macd != 0 || signal != 0 || hist != 0 {
		t.Fatalf("short series should give zero MACD, got %v %v %v", macd, signal, hist)
	}
	macd, _, _ = MACD(linear(60, 100, 1))
	if macd <= 0 {
		t.Fatalf("steadily rising series should give positive macd line, got %v", macd)
	}
}

func TestATR(t *testing.T) {
	if got := ATR(linear(5, 100, 1), 14); got != 0 {
		t.Fatalf("short series should give zero ATR, got %v", got)
	}
	got := ATR(linear(20, 100, 2), 14)
	if math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("constant-step series: want ATR 2, got %v", got)
	}
}

func TestBollingerOrdering(t *testing.T) {
	series := []float64{10, 11, 9, 12, 8, 10, 11, 9, 12, 10, 11, 9, 10, 12, 8, 11, 10, 9, 12, 10}
	upper, middle, lower := Bollinger(series, 20, 2)
	if !(upper > middle && middle > lower) {
		t.Fatalf("band ordering violated: upper=%v middle=%v lower=%v", upper, middle, lower)
	}
}

func TestMomentum(t *testing.T) {
	series := linear(21, 100, 1)
	got := Momentum(series, 10)
	want := (120.0 - 110.0) / 110.0
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("want momentum %v, got %v", want, got)
	}
}

func TestLinRegSlopeExactOnLine(t *testing.T) {
	got := LinRegSlope(linear(50, 5, 0.25), 20)
	if math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("want slope 0.25, got %v", got)
	}
}

func TestCorrelation(t *testing.T) {
	a := linear(30, 0, 1)
	b := linear(30, 100, 2)
	if got := Correlation(a, b); math.Abs(got-1) > 1e-9 {
		t.Fatalf("want correlation 1, got %v", got)
	}
	c := linear(30, 100, -2)
	if got := Correlation(a, c); math.Abs(got+1) > 1e-9 {
		t.Fatalf("want correlation -1, got %v", got)
	}
	if got := Correlation(a[:1], b[:1]); got != 0 {
		t.Fatalf("short series correlation should be 0, got %v", got)
	}
}

func TestStdDevKnown(t *testing.T) {
	series := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got := StdDev(series, len(series))
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("want stddev %v, got %v", want, got)
	}
}

func TestExtractShortWindow(t *testing.T) {
	bag := Extract([]float64{100, 101}, []float64{1, 1})
	if bag.RSI != NeutralRSI {
		t.Fatalf("short window should carry neutral RSI, got %v", bag.RSI)
	}
	if bag.MACD != 0 || bag.TrendSlope != 0 {
		t.Fatalf("short window should zero MACD/slope, got %v %v", bag.MACD, bag.TrendSlope)
	}
}
