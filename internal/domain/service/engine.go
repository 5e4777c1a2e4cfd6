package service

import (
	"context"

	"TradePilot/internal/domain/models"
)

// MarketFeed yields ordered samples per symbol. Implementations: kafka
// consumer feed, simulated random-walk feed.
type MarketFeed interface {
	Subscribe(ctx context.Context, symbols []string) (<-chan models.MarketSample, error)
	Close() error
}

// InferenceRequest is the inference service boundary request.
type InferenceRequest struct {
	ModelType models.ModelType
	Symbol    string
	Samples   []models.MarketSample
}

// InferenceService produces one model's prediction. May run in process or as
// a remote call; callers treat both the same.
type InferenceService interface {
	Predict(ctx context.Context, req InferenceRequest) (*models.Prediction, error)
}

// TrainingRequest is the training service boundary request. PreviousWeightsID
// names the prior blob for remote trainers; PreviousWeights carries the
// resolved blob for the in-process trainer. Both are empty for full training.
type TrainingRequest struct {
	ModelType         models.ModelType
	Symbol            string
	Mode              models.TrainingMode
	ModelID           string
	PreviousWeightsID string
	PreviousWeights   *models.ModelWeights
	Samples           []models.MarketSample
	Params            models.Hyperparameters
}

// TrainingResult is the training service boundary response.
type TrainingResult struct {
	Weights            *models.ModelWeights
	History            []models.EpochMetric
	TrainingAccuracy   float64
	ValidationAccuracy float64
	FinalAccuracy      float64
}

type TrainingService interface {
	Train(ctx context.Context, req TrainingRequest) (*TrainingResult, error)
}

// OrderExecutor is the order execution collaborator. Rejections are final:
// callers log and move on, they never retry a rejected open.
type OrderExecutor interface {
	OpenPosition(ctx context.Context, signal models.TradeSignal) (string, error)
	ClosePosition(ctx context.Context, dealID string) (bool, error)
	UpdateStopLoss(ctx context.Context, dealID string, price float64) (bool, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
}
