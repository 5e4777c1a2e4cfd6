package repository

import (
	"context"
	"errors"

	"TradePilot/internal/domain/models"
)

var (
	// ErrNoActiveVersion means no weights exist yet for a (model type, symbol)
	// pair; inference falls back to rules, training treats fine-tune as full.
	ErrNoActiveVersion = errors.New("no active model version")
	ErrVersionNotFound = errors.New("model version not found")
)

// VersionStore owns model weight versions and the exactly-one-active
// invariant per (model type, symbol) pair.
type VersionStore interface {
	Active(ctx context.Context, modelType models.ModelType, symbol string) (*models.ModelVersion, error)
	Get(ctx context.Context, modelType models.ModelType, symbol string, version int) (*models.ModelVersion, error)
	List(ctx context.Context, modelType models.ModelType, symbol string) ([]models.ModelVersion, error)
	NextVersion(ctx context.Context, modelType models.ModelType, symbol string) (int, error)
	// Save stores the weights blob and version metadata; the version starts
	// inactive regardless of v.Active.
	Save(ctx context.Context, v *models.ModelVersion, weights *models.ModelWeights) error
	// Activate atomically makes one version active and the previous active
	// version inactive.
	Activate(ctx context.Context, modelType models.ModelType, symbol string, version int) error
	// Prune removes versions beyond the keep most recent, returning how many
	// were deleted. The active version is never pruned.
	Prune(ctx context.Context, modelType models.ModelType, symbol string, keep int) (int, error)
	Weights(ctx context.Context, modelType models.ModelType, symbol string, version int) (*models.ModelWeights, error)
}
