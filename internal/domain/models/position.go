package models

import "time"

// TradeSignal is the order request handed to the execution collaborator.
type TradeSignal struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	DecisionID string    `json:"decision_id,omitempty"`
}

// Position is a live trade owned exclusively by one orchestrator. Lifecycle:
// open -> (adjust)* -> closed, then removed from the live set and archived.
type Position struct {
	DealID       string    `json:"deal_id"` // external order id, unique
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Size         float64   `json:"size"`
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	PnL          float64   `json:"pnl"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	DecisionID   string    `json:"decision_id,omitempty"`
	OpenedAt     time.Time `json:"opened_at"`
}

// UpdatePrice refreshes the mark price and unrealized pnl.
func (p *Position) UpdatePrice(mid float64) {
	p.CurrentPrice = mid
	diff := mid - p.EntryPrice
	if p.Direction == DirectionSell {
		diff = -diff
	}
	p.PnL = diff * p.Size / p.EntryPrice
}

// StopHit reports whether the mark price breached the stop-loss.
func (p *Position) StopHit() bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.Direction == DirectionBuy {
		return p.CurrentPrice <= p.StopLoss
	}
	return p.CurrentPrice >= p.StopLoss
}

// TakeProfitHit reports whether the mark price reached the take-profit.
func (p *Position) TakeProfitHit() bool {
	if p.TakeProfit == 0 {
		return false
	}
	if p.Direction == DirectionBuy {
		return p.CurrentPrice >= p.TakeProfit
	}
	return p.CurrentPrice <= p.TakeProfit
}
