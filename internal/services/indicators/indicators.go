package indicators

import "math"

// Neutral values returned when a window is too short for an indicator.
// Insufficient data degrades, it never errors.
const (
	NeutralRSI = 50.0
)

// SMA returns the simple moving average of the trailing period, or 0 when
// the series is shorter than the period.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMASeries computes the exponential moving average series, seeded with the
// SMA of the first period. The result is aligned to values (first period-1
// entries repeat the seed).
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	k := 2.0 / (float64(period) + 1.0)
	for i := 0; i < period; i++ {
		out[i] = seed
	}
	ema := seed
	for i := period; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
		out[i] = ema
	}
	return out
}

// EMA returns the latest exponential moving average value, or 0 when the
// series is shorter than the period.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if series == nil {
		return 0
	}
	return series[len(series)-1]
}

// RSI computes the Wilder-smoothed relative strength index over the trailing
// period. Returns the neutral value 50 when the series holds fewer than
// period+1 points.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return NeutralRSI
	}
	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing over the remainder of the series.
	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return NeutralRSI
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the 12/26/9 moving average convergence divergence: the macd
// line, its signal line and the histogram. All zero when the series is
// shorter than the slow period.
func MACD(values []float64) (macd, signal, histogram float64) {
	const (
		fast   = 12
		slow   = 26
		smooth = 9
	)
	if len(values) < slow {
		return 0, 0, 0
	}
	fastSeries := EMASeries(values, fast)
	slowSeries := EMASeries(values, slow)
	macdSeries := make([]float64, len(values))
	for i := range values {
		macdSeries[i] = fastSeries[i] - slowSeries[i]
	}
	macd = macdSeries[len(macdSeries)-1]
	if len(macdSeries) >= slow+smooth {
		signalSeries := EMASeries(macdSeries[slow-1:], smooth)
		signal = signalSeries[len(signalSeries)-1]
	}
	return macd, signal, macd - signal
}

// ATR computes the average true range over the trailing period. Over a tick
// window the true range degenerates to the absolute move between midpoints.
func ATR(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += math.Abs(values[i] - values[i-1])
	}
	return sum / float64(period)
}

// Bollinger returns the 20-period SMA band with k standard deviations.
// All zero when the series is shorter than the period.
func Bollinger(values []float64, period int, k float64) (upper, middle, lower float64) {
	if period <= 1 || len(values) < period {
		return 0, 0, 0
	}
	middle = SMA(values, period)
	sigma := StdDev(values, period)
	return middle + k*sigma, middle, middle - k*sigma
}

// StdDev returns the sample standard deviation of the trailing window.
func StdDev(values []float64, window int) float64 {
	if window <= 1 || len(values) < window {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for i := len(values) - window; i < len(values); i++ {
		sum += values[i]
		sum2 += values[i] * values[i]
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Momentum returns the fractional change over the trailing period, or 0 when
// the series is too short.
func Momentum(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}
	base := values[len(values)-1-period]
	if base == 0 {
		return 0
	}
	return (values[len(values)-1] - base) / base
}

// LinRegSlope fits a least-squares line over the trailing window and returns
// its slope per step.
func LinRegSlope(values []float64, window int) float64 {
	if window <= 1 || len(values) < window {
		return 0
	}
	start := len(values) - window
	n := float64(window)
	var sumX, sumY, sumXY, sumXX float64
	for i := 0; i < window; i++ {
		x := float64(i)
		y := values[start+i]
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}

// Correlation computes the Pearson correlation of two equal-length series.
// Returns 0 for short series or zero variance.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]
	var sumA, sumB, sumAB, sumAA, sumBB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
		sumAB += a[i] * b[i]
		sumAA += a[i] * a[i]
		sumBB += b[i] * b[i]
	}
	fn := float64(n)
	cov := sumAB - sumA*sumB/fn
	varA := sumAA - sumA*sumA/fn
	varB := sumBB - sumB*sumB/fn
	if varA <= 0 || varB <= 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// Deltas returns period-over-period differences, one shorter than the input.
func Deltas(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// Returns computes simple fractional returns, one shorter than the input.
// A zero previous value yields a zero return.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			out[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}
	return out
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
