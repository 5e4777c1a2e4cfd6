package repository

import (
	"context"

	"TradePilot/internal/domain/models"
)

// DecisionStore is the immutable audit log for ensemble decisions. Outcomes
// are appended as separate rows keyed by decision id; decision rows are never
// updated.
type DecisionStore interface {
	Init(ctx context.Context) error // ensure tables
	SaveDecision(ctx context.Context, d *models.EnsembleDecision) error
	SaveOutcome(ctx context.Context, o *models.DecisionOutcome) error
	RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.EnsembleDecision, error)
	Health(ctx context.Context) error
	Close() error
}
