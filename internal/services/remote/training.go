package remote

import (
	"context"
	"fmt"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/service"
	"TradePilot/pkg/config"
)

// TrainingClient calls a remote training service over HTTP. Weights travel by
// id on the way in: the remote trainer resolves PreviousWeightsID against the
// shared store instead of receiving the blob inline.
type TrainingClient struct {
	base *serviceClient
}

func NewTrainingClient(cfg *config.Config) *TrainingClient {
	// Training runs are long and idempotent per job, so transport retries
	// are safe here.
	return &TrainingClient{
		base: newServiceClient(cfg.Training.ServiceURL, cfg.Training.Timeout, 2),
	}
}

var _ service.TrainingService = (*TrainingClient)(nil)

type trainRequest struct {
	ModelType         string                 `json:"model_type"`
	Symbol            string                 `json:"symbol"`
	Mode              string                 `json:"mode"`
	ModelID           string                 `json:"model_id,omitempty"`
	PreviousWeightsID string                 `json:"previous_weights_id,omitempty"`
	Samples           []models.MarketSample  `json:"samples"`
	Params            models.Hyperparameters `json:"params"`
}

type trainResponse struct {
	Weights            *models.ModelWeights `json:"weights"`
	History            []models.EpochMetric `json:"history"`
	TrainingAccuracy   float64              `json:"training_accuracy"`
	ValidationAccuracy float64              `json:"validation_accuracy"`
	FinalAccuracy      float64              `json:"final_accuracy"`
}

func (c *TrainingClient) Train(ctx context.Context, req service.TrainingRequest) (*service.TrainingResult, error) {
	var resp trainResponse
	err := c.base.postJSON(ctx, "/train", trainRequest{
		ModelType:         string(req.ModelType),
		Symbol:            req.Symbol,
		Mode:              string(req.Mode),
		ModelID:           req.ModelID,
		PreviousWeightsID: req.PreviousWeightsID,
		Samples:           req.Samples,
		Params:            req.Params,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("remote train: %w", err)
	}
	if resp.Weights == nil {
		return nil, fmt.Errorf("remote trainer returned no weights for %s/%s", req.ModelType, req.Symbol)
	}
	return &service.TrainingResult{
		Weights:            resp.Weights,
		History:            resp.History,
		TrainingAccuracy:   resp.TrainingAccuracy,
		ValidationAccuracy: resp.ValidationAccuracy,
		FinalAccuracy:      resp.FinalAccuracy,
	}, nil
}
