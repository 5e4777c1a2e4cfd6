package indicators

import "TradePilot/internal/domain/models"

// Extract builds the indicator context attached to predictions. Short windows
// fill what they can; missing indicators keep their neutral defaults.
func Extract(prices, volumes []float64) models.FeatureBag {
	macd, signal, _ := MACD(prices)
	bag := models.FeatureBag{
		RSI:        RSI(prices, 14),
		MACD:       macd,
		MACDSignal: signal,
		TrendSlope: LinRegSlope(prices, 20),
		Volatility: StdDev(Returns(prices), 20),
		Momentum:   Momentum(prices, 10),
	}
	if recent, hist := SMA(volumes, 5), SMA(volumes, 20); hist > 0 {
		bag.VolumeRatio = recent / hist
	}
	return bag
}
