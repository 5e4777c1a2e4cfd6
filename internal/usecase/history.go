package usecase

import (
	"context"
	"sync"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/pkg/logger"
)

// MarketHistory holds the bounded per-symbol sample windows one orchestrator
// feeds and reads. Windows are returned as clones so callers never touch the
// live slices.
type MarketHistory struct {
	mu      sync.RWMutex
	windows map[string]*models.SampleWindow
	limit   int
}

func NewMarketHistory(limit int) *MarketHistory {
	if limit <= 0 {
		limit = 200
	}
	return &MarketHistory{
		windows: make(map[string]*models.SampleWindow),
		limit:   limit,
	}
}

// Append adds a sample to its symbol's window, creating the window on first
// sight of the symbol.
func (h *MarketHistory) Append(s models.MarketSample) {
	if s.Symbol == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	w, ok := h.windows[s.Symbol]
	if !ok {
		w = models.NewSampleWindow(s.Symbol, h.limit)
		h.windows[s.Symbol] = w
	}
	w.Append(s)
}

// Window returns a clone of the symbol's window. Unknown symbols yield an
// empty window, not nil.
func (h *MarketHistory) Window(symbol string) *models.SampleWindow {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if w, ok := h.windows[symbol]; ok {
		return w.Clone()
	}
	return models.NewSampleWindow(symbol, h.limit)
}

func (h *MarketHistory) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if w, ok := h.windows[symbol]; ok {
		return w.Len()
	}
	return 0
}

// LastMid returns the latest midpoint for a symbol.
func (h *MarketHistory) LastMid(symbol string) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	w, ok := h.windows[symbol]
	if !ok {
		return 0, false
	}
	s, ok := w.Last()
	if !ok {
		return 0, false
	}
	return s.Mid(), true
}

// RefWindows clones the windows of the reference basket, skipping the symbol
// under analysis and symbols with no data yet.
func (h *MarketHistory) RefWindows(refs []string, exclude string) []*models.SampleWindow {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*models.SampleWindow, 0, len(refs))
	for _, sym := range refs {
		if sym == exclude {
			continue
		}
		if w, ok := h.windows[sym]; ok && w.Len() > 0 {
			out = append(out, w.Clone())
		}
	}
	return out
}

// Warm pre-fills windows from the sample archive so cycles do not wait a full
// window of live ticks after start. Failures only log; live samples fill the
// windows either way.
func (h *MarketHistory) Warm(ctx context.Context, store domrepo.SampleStore, symbols []string, log *logger.Logger) {
	for _, sym := range symbols {
		samples, err := store.LatestN(ctx, sym, h.limit)
		if err != nil {
			log.Warn("history warm-up failed", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		for _, s := range samples {
			h.Append(s)
		}
		if len(samples) > 0 {
			log.Debug("history warmed", logger.String("symbol", sym), logger.Int("samples", len(samples)))
		}
	}
}
