package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/service"
	applogger "TradePilot/pkg/logger"
)

// PaperExecutor fills every order instantly against an in-memory book. Deal
// ids are uuids so downstream bookkeeping behaves exactly as with a broker.
type PaperExecutor struct {
	log       *applogger.Logger
	mu        sync.Mutex
	positions map[string]*models.Position
}

func NewPaperExecutor(log *applogger.Logger) *PaperExecutor {
	return &PaperExecutor{
		log:       log.Component("paper_executor"),
		positions: make(map[string]*models.Position),
	}
}

var _ service.OrderExecutor = (*PaperExecutor)(nil)

func (e *PaperExecutor) OpenPosition(ctx context.Context, signal models.TradeSignal) (string, error) {
	if signal.Symbol == "" {
		return "", fmt.Errorf("open position: missing symbol")
	}
	if signal.Direction != models.DirectionBuy && signal.Direction != models.DirectionSell {
		return "", fmt.Errorf("open position: direction %s is not tradable", signal.Direction)
	}
	if signal.Size <= 0 {
		return "", fmt.Errorf("open position: size must be positive, got %v", signal.Size)
	}
	if signal.EntryPrice <= 0 {
		return "", fmt.Errorf("open position: entry price must be positive, got %v", signal.EntryPrice)
	}

	dealID := uuid.NewString()
	pos := &models.Position{
		DealID:       dealID,
		Symbol:       signal.Symbol,
		Direction:    signal.Direction,
		Size:         signal.Size,
		EntryPrice:   signal.EntryPrice,
		CurrentPrice: signal.EntryPrice,
		StopLoss:     signal.StopLoss,
		TakeProfit:   signal.TakeProfit,
		DecisionID:   signal.DecisionID,
		OpenedAt:     time.Now(),
	}

	e.mu.Lock()
	e.positions[dealID] = pos
	e.mu.Unlock()

	e.log.Info("paper position opened",
		applogger.String("deal_id", dealID),
		applogger.String("symbol", signal.Symbol),
		applogger.String("direction", string(signal.Direction)),
		applogger.Float64("size", signal.Size),
		applogger.Float64("entry", signal.EntryPrice))
	return dealID, nil
}

// ClosePosition removes the deal from the book. Closing an unknown deal is
// not an error; it reports false so callers can reconcile.
func (e *PaperExecutor) ClosePosition(ctx context.Context, dealID string) (bool, error) {
	e.mu.Lock()
	pos, ok := e.positions[dealID]
	if ok {
		delete(e.positions, dealID)
	}
	e.mu.Unlock()

	if !ok {
		return false, nil
	}
	e.log.Info("paper position closed",
		applogger.String("deal_id", dealID),
		applogger.String("symbol", pos.Symbol),
		applogger.Float64("pnl", pos.PnL))
	return true, nil
}

func (e *PaperExecutor) UpdateStopLoss(ctx context.Context, dealID string, price float64) (bool, error) {
	if price <= 0 {
		return false, fmt.Errorf("update stop loss: price must be positive, got %v", price)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[dealID]
	if !ok {
		return false, nil
	}
	pos.StopLoss = price
	return true, nil
}

func (e *PaperExecutor) GetPositions(ctx context.Context) ([]models.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out, nil
}

// MarkPrice refreshes the mark and pnl for all open deals on a symbol. The
// position loop calls this so paper fills track the live feed.
func (e *PaperExecutor) MarkPrice(symbol string, mid float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range e.positions {
		if p.Symbol == symbol {
			p.UpdatePrice(mid)
		}
	}
}
