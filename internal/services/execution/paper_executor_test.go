package execution

import (
	"context"
	"math"
	"testing"

	"TradePilot/internal/domain/models"
	applogger "TradePilot/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func buySignal() models.TradeSignal {
	return models.TradeSignal{
		Symbol:     "EURUSD",
		Direction:  models.DirectionBuy,
		Size:       1000,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 104,
	}
}

func TestPaperOpenCloseLifecycle(t *testing.T) {
	e := NewPaperExecutor(testLogger(t))
	ctx := context.Background()

	dealID, err := e.OpenPosition(ctx, buySignal())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if dealID == "" {
		t.Fatalf("empty deal id")
	}

	positions, err := e.GetPositions(ctx)
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("open positions = %d, want 1", len(positions))
	}
	if positions[0].DealID != dealID || positions[0].EntryPrice != 100 {
		t.Fatalf("unexpected position %+v", positions[0])
	}

	closed, err := e.ClosePosition(ctx, dealID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed {
		t.Fatalf("close reported false for live deal")
	}

	closed, err = e.ClosePosition(ctx, dealID)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closed {
		t.Fatalf("close reported true for already closed deal")
	}

	positions, err = e.GetPositions(ctx)
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("open positions after close = %d, want 0", len(positions))
	}
}

func TestPaperOpenValidation(t *testing.T) {
	e := NewPaperExecutor(testLogger(t))
	ctx := context.Background()

	hold := buySignal()
	hold.Direction = models.DirectionHold
	if _, err := e.OpenPosition(ctx, hold); err == nil {
		t.Fatalf("expected error for HOLD open")
	}

	zero := buySignal()
	zero.Size = 0
	if _, err := e.OpenPosition(ctx, zero); err == nil {
		t.Fatalf("expected error for zero size")
	}

	free := buySignal()
	free.EntryPrice = 0
	if _, err := e.OpenPosition(ctx, free); err == nil {
		t.Fatalf("expected error for zero entry price")
	}
}

func TestPaperUpdateStopLoss(t *testing.T) {
	e := NewPaperExecutor(testLogger(t))
	ctx := context.Background()

	dealID, err := e.OpenPosition(ctx, buySignal())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	ok, err := e.UpdateStopLoss(ctx, dealID, 99)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !ok {
		t.Fatalf("update reported false for live deal")
	}

	positions, _ := e.GetPositions(ctx)
	if positions[0].StopLoss != 99 {
		t.Fatalf("stop loss = %v, want 99", positions[0].StopLoss)
	}

	ok, err = e.UpdateStopLoss(ctx, "missing", 99)
	if err != nil {
		t.Fatalf("update unknown: %v", err)
	}
	if ok {
		t.Fatalf("update reported true for unknown deal")
	}
}

func TestPaperMarkPrice(t *testing.T) {
	e := NewPaperExecutor(testLogger(t))
	ctx := context.Background()

	dealID, err := e.OpenPosition(ctx, buySignal())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	e.MarkPrice("EURUSD", 101)

	positions, _ := e.GetPositions(ctx)
	if positions[0].DealID != dealID {
		t.Fatalf("unexpected deal %s", positions[0].DealID)
	}
	if positions[0].CurrentPrice != 101 {
		t.Fatalf("current price = %v, want 101", positions[0].CurrentPrice)
	}
	// long 1000 units, +1 move on 100 entry
	if math.Abs(positions[0].PnL-10) > 1e-9 {
		t.Fatalf("pnl = %v, want 10", positions[0].PnL)
	}
}
