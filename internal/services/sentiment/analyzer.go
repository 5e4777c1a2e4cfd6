package sentiment

import (
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/services/indicators"
)

// Component weights of the overall sentiment score.
const (
	priceActionWeight = 0.35
	volumeWeight      = 0.25
	volatilityWeight  = 0.20
	correlationWeight = 0.20

	// Momentum horizons (ticks) and their weights inside the price-action
	// component; the remaining 0.1 goes to regression trend strength.
	shortMomentum  = 5
	mediumMomentum = 10
	longMomentum   = 20
)

// Analyzer derives the multi-factor sentiment read from raw price/volume
// history. Pure computation; safe for concurrent use.
type Analyzer struct {
	minSamples int
}

func NewAnalyzer(minSamples int) *Analyzer {
	if minSamples <= 0 {
		minSamples = 20
	}
	return &Analyzer{minSamples: minSamples}
}

// Analyze computes the sentiment snapshot for one symbol window. refs carries
// the reference-basket windows for the cross-asset component; an empty basket
// zeroes that component. Windows shorter than the minimum produce the neutral
// default; insufficient data is not an error.
func (a *Analyzer) Analyze(w *models.SampleWindow, refs []*models.SampleWindow) models.SentimentSnapshot {
	now := time.Now()
	if w == nil || w.Len() < a.minSamples {
		n := 0
		symbol := ""
		if w != nil {
			n = w.Len()
			symbol = w.Symbol
		}
		return models.NeutralSentiment(symbol, n, now)
	}

	prices := w.MidPrices()
	volumes := w.Volumes()
	returns := w.Returns()

	priceAction := a.priceActionScore(prices)
	volume := a.volumeScore(prices, volumes)
	volatility := a.volatilityScore(returns)
	correlation := a.correlationScore(returns, refs)

	overall := indicators.Clip(
		priceActionWeight*priceAction+
			volumeWeight*volume+
			volatilityWeight*volatility+
			correlationWeight*correlation,
		-1, 1)

	volRatio := volatilityRatio(returns)

	return models.SentimentSnapshot{
		Symbol:      w.Symbol,
		PriceAction: priceAction,
		Volume:      volume,
		Volatility:  volatility,
		Correlation: correlation,
		Overall:     overall,
		FearGreed:   indicators.Clip(50*(1+overall)-10*(volRatio-1), 0, 100),
		Strength:    indicators.Clip(0.7*(1+priceAction)/2+0.3*(1+volume)/2, 0, 1),
		Confidence:  indicators.Clip(float64(w.Len())/100, 0.3, 0.95),
		Samples:     w.Len(),
		Timestamp:   now,
	}
}

// priceActionScore weights short/medium/long momentum 0.4/0.3/0.2 plus the
// regression trend strength at 0.1, in percent terms, clipped to [-1,1].
func (a *Analyzer) priceActionScore(prices []float64) float64 {
	short := indicators.Momentum(prices, shortMomentum) * 100
	medium := indicators.Momentum(prices, mediumMomentum) * 100
	long := indicators.Momentum(prices, longMomentum) * 100

	trend := 0.0
	if last := prices[len(prices)-1]; last != 0 {
		// Projected fractional move over the regression window, in percent.
		trend = indicators.LinRegSlope(prices, 20) * 20 / last * 100
	}

	return indicators.Clip(0.4*short+0.3*medium+0.2*long+0.1*trend, -1, 1)
}

// volumeScore correlates price deltas with volume deltas, scaled by the
// recent-vs-historical volume ratio.
func (a *Analyzer) volumeScore(prices, volumes []float64) float64 {
	corr := indicators.Correlation(indicators.Deltas(prices), indicators.Deltas(volumes))
	ratio := 1.0
	if hist := indicators.SMA(volumes, 20); hist > 0 {
		ratio = indicators.SMA(volumes, 5) / hist
	}
	return indicators.Clip(corr*ratio, -1, 1)
}

// volatilityScore is the inverse of the recent-vs-historical volatility
// ratio: calm markets read positive, turbulent ones negative.
func (a *Analyzer) volatilityScore(returns []float64) float64 {
	return indicators.Clip(1-volatilityRatio(returns), -1, 1)
}

func volatilityRatio(returns []float64) float64 {
	recent := indicators.StdDev(returns, 10)
	historical := indicators.StdDev(returns, len(returns))
	if historical == 0 {
		return 1
	}
	return recent / historical
}

// correlationScore averages the correlation against the reference basket,
// scaled by 0.5.
func (a *Analyzer) correlationScore(returns []float64, refs []*models.SampleWindow) float64 {
	if len(refs) == 0 {
		return 0
	}
	sum := 0.0
	counted := 0
	for _, ref := range refs {
		if ref == nil || ref.Len() < 2 {
			continue
		}
		sum += indicators.Correlation(returns, ref.Returns())
		counted++
	}
	if counted == 0 {
		return 0
	}
	return indicators.Clip(sum/float64(counted)*0.5, -1, 1)
}
