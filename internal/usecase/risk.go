package usecase

import (
	"math"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/services/indicators"
	"TradePilot/pkg/config"
	"TradePilot/pkg/logger"
)

// RiskEngine owns one session's risk picture: the rolling RiskMetrics and the
// per-decision verdicts. Rejected trades are logged by the caller and never
// retried.
type RiskEngine struct {
	log *logger.Logger

	baseSize       float64
	portfolioValue float64
	tolerance      float64
	maxExposure    float64
	maxPositions   int
	maxDrawdown    float64

	mu            sync.RWMutex
	current       models.RiskMetrics
	peakEquity    float64
	realizedToday float64
	realizedDay   time.Time
}

func NewRiskEngine(cfg *config.Config, log *logger.Logger) *RiskEngine {
	value := cfg.Risk.PortfolioValue
	return &RiskEngine{
		log:            log.Component("risk"),
		baseSize:       cfg.Risk.BasePositionSize,
		portfolioValue: value,
		tolerance:      cfg.Risk.RiskTolerance,
		maxExposure:    cfg.Risk.MaxExposure,
		maxPositions:   cfg.Risk.MaxOpenPositions,
		maxDrawdown:    cfg.Risk.MaxDrawdown,
		peakEquity:     value,
		current: models.RiskMetrics{
			PortfolioValue: value,
			RefreshedAt:    time.Now(),
		},
	}
}

// Refresh recomputes the metrics from the live position set.
func (r *RiskEngine) Refresh(positions []models.Position) models.RiskMetrics {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollDayLocked(now)

	unrealized, exposure := 0.0, 0.0
	for _, p := range positions {
		unrealized += p.PnL
		notional := p.Size
		if p.EntryPrice > 0 && p.CurrentPrice > 0 {
			notional = p.Size * p.CurrentPrice / p.EntryPrice
		}
		if notional < 0 {
			notional = -notional
		}
		exposure += notional
	}

	daily := r.realizedToday + unrealized
	equity := r.portfolioValue + daily
	if equity > r.peakEquity {
		r.peakEquity = equity
	}
	drawdown := 0.0
	if r.peakEquity > 0 && equity < r.peakEquity {
		drawdown = (r.peakEquity - equity) / r.peakEquity
	}
	utilization := 0.0
	if r.portfolioValue > 0 {
		utilization = exposure / r.portfolioValue
	}

	r.current = models.RiskMetrics{
		Drawdown:       drawdown,
		DailyPnL:       daily,
		Exposure:       exposure,
		PortfolioValue: r.portfolioValue,
		Utilization:    utilization,
		OpenPositions:  len(positions),
		RefreshedAt:    now,
	}
	return r.current
}

// Metrics returns the most recent picture.
func (r *RiskEngine) Metrics() models.RiskMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// RecordRealized books a closed position's pnl into today's tally.
func (r *RiskEngine) RecordRealized(pnl float64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollDayLocked(at)
	r.realizedToday += pnl
}

func (r *RiskEngine) rollDayLocked(at time.Time) {
	day := at.UTC().Truncate(24 * time.Hour)
	if !day.Equal(r.realizedDay) {
		r.realizedDay = day
		r.realizedToday = 0
	}
}

// Assess scores one decision against the current metrics. Each score term is
// clamped to [0,1] before weighting, as is the total.
func (r *RiskEngine) Assess(d *models.EnsembleDecision, m models.RiskMetrics) models.RiskAssessment {
	drawdownTerm := indicators.Clip(m.Drawdown/0.2, 0, 1)

	pnlTerm := 1.0
	if denom := m.PortfolioValue + m.DailyPnL; denom > 0 {
		pnlTerm = indicators.Clip(1-m.PortfolioValue/denom, 0, 1)
	}

	volTerm := indicators.Clip(math.Abs(d.Sentiment.Volatility), 0, 1)
	confTerm := indicators.Clip(1-d.Confidence, 0, 1)

	score := indicators.Clip(0.3*drawdownTerm+0.2*pnlTerm+0.3*volTerm+0.2*confTerm, 0, 1)

	level := models.RiskHigh
	switch {
	case score < 0.4:
		level = models.RiskLow
	case score < 0.7:
		level = models.RiskMedium
	}

	maxSize := r.baseSize * (1 - 0.5*score) * r.tolerance

	var reasons []string
	if m.Exposure+maxSize > r.maxExposure {
		reasons = append(reasons, "exposure cap")
	}
	if m.OpenPositions >= r.maxPositions {
		reasons = append(reasons, "position cap")
	}
	if m.Drawdown >= r.maxDrawdown {
		reasons = append(reasons, "drawdown cap")
	}

	a := models.RiskAssessment{
		Score:   score,
		Level:   level,
		Allowed: len(reasons) == 0,
		MaxSize: maxSize,
		Reasons: reasons,
	}
	if !a.Allowed {
		r.log.Debug("risk gates closed",
			logger.String("symbol", d.Symbol),
			logger.Float64("score", score),
			logger.Strings("reasons", reasons))
	}
	return a
}

// ShouldClose recommends closing a losing position once drawdown breaches the
// hard cap.
func (r *RiskEngine) ShouldClose(p models.Position, m models.RiskMetrics) bool {
	return m.Drawdown >= r.maxDrawdown && p.PnL < 0
}
