package models

import "time"

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"    // score < 0.4
	RiskMedium RiskLevel = "MEDIUM" // score < 0.7
	RiskHigh   RiskLevel = "HIGH"
)

// RiskMetrics is the portfolio risk picture refreshed each assessment cycle.
// Readers always take the most recent value.
type RiskMetrics struct {
	Drawdown       float64   `json:"drawdown"`  // peak-to-current fraction
	DailyPnL       float64   `json:"daily_pnl"` // realized + unrealized today
	Exposure       float64   `json:"exposure"`  // sum of |size * price|
	PortfolioValue float64   `json:"portfolio_value"`
	Utilization    float64   `json:"utilization"` // exposure / portfolio value
	OpenPositions  int       `json:"open_positions"`
	RefreshedAt    time.Time `json:"refreshed_at"`
}

// RiskAssessment is the risk engine's verdict on a single decision.
type RiskAssessment struct {
	Score   float64   `json:"score"` // [0,1]
	Level   RiskLevel `json:"level"`
	Allowed bool      `json:"allowed"`
	MaxSize float64   `json:"max_size"`
	Reasons []string  `json:"reasons,omitempty"`
}

type KillSwitchLevel int

const (
	KillSwitchNormal    KillSwitchLevel = 0 // no restriction
	KillSwitchWarning   KillSwitchLevel = 1 // new-trade sizing halved
	KillSwitchCaution   KillSwitchLevel = 2 // new entries halted
	KillSwitchEmergency KillSwitchLevel = 3 // liquidate and stop
)

func (l KillSwitchLevel) String() string {
	switch l {
	case KillSwitchNormal:
		return "normal"
	case KillSwitchWarning:
		return "warning"
	case KillSwitchCaution:
		return "caution"
	case KillSwitchEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// KillSwitchState is the one piece of cross-cutting shared state. Persisted
// on every transition and re-hydrated on orchestrator start.
type KillSwitchState struct {
	Level       KillSwitchLevel `json:"level"`
	Reason      string          `json:"reason,omitempty"`
	Active      bool            `json:"active"` // level > 0
	TriggeredAt time.Time       `json:"triggered_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
