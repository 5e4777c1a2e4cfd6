package models

import "time"

// MarketSample is one quote observation. Immutable once created; json tags
// cover the kafka feed format and the sample archive.
type MarketSample struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid returns the quote midpoint.
func (s MarketSample) Mid() float64 {
	return (s.Bid + s.Ask) / 2
}

// SampleWindow is a bounded most-recent-N history for one symbol. It is not
// synchronized: the orchestrator owns its windows and guards access with its
// own mutex.
type SampleWindow struct {
	Symbol  string
	Limit   int
	Samples []MarketSample
}

func NewSampleWindow(symbol string, limit int) *SampleWindow {
	return &SampleWindow{
		Symbol:  symbol,
		Limit:   limit,
		Samples: make([]MarketSample, 0, limit),
	}
}

// Append adds a sample, dropping the oldest entry once the limit is reached.
func (w *SampleWindow) Append(s MarketSample) {
	if w.Limit > 0 && len(w.Samples) >= w.Limit {
		copy(w.Samples, w.Samples[1:])
		w.Samples[len(w.Samples)-1] = s
		return
	}
	w.Samples = append(w.Samples, s)
}

func (w *SampleWindow) Len() int {
	return len(w.Samples)
}

func (w *SampleWindow) Last() (MarketSample, bool) {
	if len(w.Samples) == 0 {
		return MarketSample{}, false
	}
	return w.Samples[len(w.Samples)-1], true
}

// MidPrices returns the midpoint series, oldest first.
func (w *SampleWindow) MidPrices() []float64 {
	out := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = s.Mid()
	}
	return out
}

func (w *SampleWindow) Volumes() []float64 {
	out := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = s.Volume
	}
	return out
}

// Returns computes simple period-over-period returns of the midpoint series.
// The result has len-1 entries; a zero previous price yields a zero return.
func (w *SampleWindow) Returns() []float64 {
	prices := w.MidPrices()
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return out
}

// Clone returns a copy safe to read outside the owner's lock.
func (w *SampleWindow) Clone() *SampleWindow {
	cp := &SampleWindow{
		Symbol:  w.Symbol,
		Limit:   w.Limit,
		Samples: make([]MarketSample, len(w.Samples)),
	}
	copy(cp.Samples, w.Samples)
	return cp
}
