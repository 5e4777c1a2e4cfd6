package remote

import (
	"context"
	"fmt"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/service"
	"TradePilot/pkg/config"
)

// InferenceClient calls a remote inference service over HTTP. Transport
// retries stay off here: the prediction usecase owns the retry policy for
// inference, and stacking both would multiply attempts.
type InferenceClient struct {
	base *serviceClient
}

func NewInferenceClient(cfg *config.Config) *InferenceClient {
	return &InferenceClient{
		base: newServiceClient(cfg.Inference.ServiceURL, cfg.Inference.Timeout, 0),
	}
}

var _ service.InferenceService = (*InferenceClient)(nil)

type predictRequest struct {
	ModelType string                `json:"model_type"`
	Symbol    string                `json:"symbol"`
	Samples   []models.MarketSample `json:"samples"`
}

func (c *InferenceClient) Predict(ctx context.Context, req service.InferenceRequest) (*models.Prediction, error) {
	var p models.Prediction
	err := c.base.postJSON(ctx, "/predict", predictRequest{
		ModelType: string(req.ModelType),
		Symbol:    req.Symbol,
		Samples:   req.Samples,
	}, &p)
	if err != nil {
		return nil, fmt.Errorf("remote predict: %w", err)
	}
	if p.Symbol == "" {
		p.Symbol = req.Symbol
	}
	if p.ModelType == "" {
		p.ModelType = req.ModelType
	}
	return &p, nil
}
