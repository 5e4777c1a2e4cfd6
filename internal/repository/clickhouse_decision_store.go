package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	pkgch "TradePilot/pkg/clickhouse"
	applogger "TradePilot/pkg/logger"
)

// CHDecisionStore implements DecisionStore backed by ClickHouse. Decisions and
// outcomes are append-only rows; an outcome references its decision by id and
// the decision row itself is never touched again.
type CHDecisionStore struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
	log      *applogger.Logger
}

// NewCHDecisionStore creates a decision audit store on the given client.
func NewCHDecisionStore(ch *pkgch.Client, database string, log *applogger.Logger) *CHDecisionStore {
	if database == "" {
		database = "tradepilot"
	}
	return &CHDecisionStore{
		ch:       ch,
		db:       ch.DB(),
		database: database,
		log:      log.Component("decision_store"),
	}
}

var _ domrepo.DecisionStore = (*CHDecisionStore)(nil)

func (s *CHDecisionStore) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.decisions (
			id String,
			symbol String,
			action String,
			confidence Float64,
			buy_score Float64,
			sell_score Float64,
			predictions String,
			weights String,
			sentiment String,
			regime String,
			risk_score Float64,
			risk_level String,
			risk_allowed UInt8,
			max_size Float64,
			target_price Float64,
			stop_loss Float64,
			take_profit Float64,
			reasoning String,
			created_at DateTime64(3)
		) ENGINE=MergeTree ORDER BY (symbol, created_at)`, s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.decision_outcomes (
			decision_id String,
			symbol String,
			pnl Float64,
			success UInt8,
			realized_direction String,
			reward Float64,
			risk_score Float64,
			closed_at DateTime64(3)
		) ENGINE=MergeTree ORDER BY (symbol, closed_at)`, s.database),
	}
	if err := s.ch.InitSchema(ctx, stmts); err != nil {
		return fmt.Errorf("decision schema: %w", err)
	}
	return nil
}

func (s *CHDecisionStore) SaveDecision(ctx context.Context, d *models.EnsembleDecision) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("save decision: missing id")
	}

	predictions, err := json.Marshal(d.Predictions)
	if err != nil {
		return fmt.Errorf("marshal predictions: %w", err)
	}
	weights, err := json.Marshal(d.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	sentiment, err := json.Marshal(d.Sentiment)
	if err != nil {
		return fmt.Errorf("marshal sentiment: %w", err)
	}

	var (
		riskScore   float64
		riskLevel   string
		riskAllowed uint8
		maxSize     float64
	)
	if d.Risk != nil {
		riskScore = d.Risk.Score
		riskLevel = string(d.Risk.Level)
		if d.Risk.Allowed {
			riskAllowed = 1
		}
		maxSize = d.Risk.MaxSize
	}

	q := fmt.Sprintf(`INSERT INTO %s.decisions
		(id, symbol, action, confidence, buy_score, sell_score, predictions, weights, sentiment, regime,
		 risk_score, risk_level, risk_allowed, max_size, target_price, stop_loss, take_profit, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	_, err = s.db.ExecContext(ctx, q,
		d.ID,
		d.Symbol,
		string(d.Action),
		d.Confidence,
		d.BuyScore,
		d.SellScore,
		string(predictions),
		string(weights),
		string(sentiment),
		string(d.Regime),
		riskScore,
		riskLevel,
		riskAllowed,
		maxSize,
		d.TargetPrice,
		d.StopLoss,
		d.TakeProfit,
		d.Reasoning,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *CHDecisionStore) SaveOutcome(ctx context.Context, o *models.DecisionOutcome) error {
	if o == nil || o.DecisionID == "" {
		return fmt.Errorf("save outcome: missing decision id")
	}

	var success uint8
	if o.Success {
		success = 1
	}

	q := fmt.Sprintf(`INSERT INTO %s.decision_outcomes
		(decision_id, symbol, pnl, success, realized_direction, reward, risk_score, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	_, err := s.db.ExecContext(ctx, q,
		o.DecisionID,
		o.Symbol,
		o.PnL,
		success,
		string(o.RealizedDirection),
		o.Reward,
		o.RiskScore,
		o.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// RecentDecisions returns the newest decisions first.
func (s *CHDecisionStore) RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.EnsembleDecision, error) {
	if limit <= 0 {
		limit = 50
	}

	q := fmt.Sprintf(`SELECT id, symbol, action, confidence, buy_score, sell_score, predictions, weights, sentiment, regime,
		risk_score, risk_level, risk_allowed, max_size, target_price, stop_loss, take_profit, reasoning, created_at
		FROM %s.decisions WHERE symbol = ? ORDER BY created_at DESC LIMIT ?`, s.database)
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	out := make([]models.EnsembleDecision, 0, limit)
	for rows.Next() {
		var (
			d           models.EnsembleDecision
			action      string
			predictions string
			weights     string
			sentiment   string
			regime      string
			riskScore   float64
			riskLevel   string
			riskAllowed uint8
			maxSize     float64
		)
		if err := rows.Scan(&d.ID, &d.Symbol, &action, &d.Confidence, &d.BuyScore, &d.SellScore,
			&predictions, &weights, &sentiment, &regime,
			&riskScore, &riskLevel, &riskAllowed, &maxSize,
			&d.TargetPrice, &d.StopLoss, &d.TakeProfit, &d.Reasoning, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}

		d.Action = models.Direction(action)
		d.Regime = models.MarketRegime(regime)
		if err := json.Unmarshal([]byte(predictions), &d.Predictions); err != nil {
			s.log.Warn("corrupt predictions column", applogger.String("id", d.ID), applogger.Error(err))
		}
		if err := json.Unmarshal([]byte(weights), &d.Weights); err != nil {
			s.log.Warn("corrupt weights column", applogger.String("id", d.ID), applogger.Error(err))
		}
		if err := json.Unmarshal([]byte(sentiment), &d.Sentiment); err != nil {
			s.log.Warn("corrupt sentiment column", applogger.String("id", d.ID), applogger.Error(err))
		}
		if riskLevel != "" {
			d.Risk = &models.RiskAssessment{
				Score:   riskScore,
				Level:   models.RiskLevel(riskLevel),
				Allowed: riskAllowed == 1,
				MaxSize: maxSize,
			}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHDecisionStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHDecisionStore) Close() error {
	return nil // connection owned by pkg client
}
