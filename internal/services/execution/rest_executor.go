package execution

import (
	"context"
	"fmt"
	"net/http"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/service"
	"TradePilot/internal/service/ratelimit"
	"TradePilot/pkg/config"
	xhttp "TradePilot/pkg/http"
	applogger "TradePilot/pkg/logger"
)

const limiterKey = "execution"

// RESTExecutor talks to a broker REST API. Calls are paced through a token
// bucket and retried at the transport level; a rejected open comes back as an
// error and is never retried here or by callers.
type RESTExecutor struct {
	client  *xhttp.Client
	baseURL string
	apiKey  string
	limiter *ratelimit.Limiter
	rate    float64
	burst   float64
	log     *applogger.Logger
}

func NewRESTExecutor(cfg *config.Config, limiter *ratelimit.Limiter, log *applogger.Logger) *RESTExecutor {
	return &RESTExecutor{
		client:  xhttp.NewClient(xhttp.WithTimeout(cfg.Execution.Timeout), xhttp.WithRetries(2)),
		baseURL: cfg.Execution.BaseURL,
		apiKey:  cfg.Execution.APIKey,
		limiter: limiter,
		rate:    cfg.Execution.RatePerSec,
		burst:   float64(cfg.Execution.RateBurst),
		log:     log.Component("rest_executor"),
	}
}

var _ service.OrderExecutor = (*RESTExecutor)(nil)

type openPositionRequest struct {
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	DecisionID string  `json:"decision_id,omitempty"`
}

type openPositionResponse struct {
	DealID string `json:"deal_id"`
	Status string `json:"status"`
}

func (e *RESTExecutor) OpenPosition(ctx context.Context, signal models.TradeSignal) (string, error) {
	if signal.Direction != models.DirectionBuy && signal.Direction != models.DirectionSell {
		return "", fmt.Errorf("open position: direction %s is not tradable", signal.Direction)
	}
	if err := e.limiter.Wait(ctx, limiterKey, e.burst, e.rate); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	var resp openPositionResponse
	err := e.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     e.baseURL + "/positions",
		Headers: e.headers(),
		Body: openPositionRequest{
			Symbol:     signal.Symbol,
			Direction:  string(signal.Direction),
			Size:       signal.Size,
			EntryPrice: signal.EntryPrice,
			StopLoss:   signal.StopLoss,
			TakeProfit: signal.TakeProfit,
			DecisionID: signal.DecisionID,
		},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("open position: %w", err)
	}
	if resp.Status == "REJECTED" || resp.DealID == "" {
		return "", fmt.Errorf("open position rejected for %s: status %q", signal.Symbol, resp.Status)
	}

	e.log.Info("position opened",
		applogger.String("deal_id", resp.DealID),
		applogger.String("symbol", signal.Symbol),
		applogger.String("direction", string(signal.Direction)),
		applogger.Float64("size", signal.Size))
	return resp.DealID, nil
}

func (e *RESTExecutor) ClosePosition(ctx context.Context, dealID string) (bool, error) {
	if err := e.limiter.Wait(ctx, limiterKey, e.burst, e.rate); err != nil {
		return false, fmt.Errorf("rate limit wait: %w", err)
	}

	err := e.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodDelete,
		URL:     fmt.Sprintf("%s/positions/%s", e.baseURL, dealID),
		Headers: e.headers(),
	}, nil)
	if err != nil {
		if xhttp.StatusCode(err) == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("close position %s: %w", dealID, err)
	}

	e.log.Info("position closed", applogger.String("deal_id", dealID))
	return true, nil
}

func (e *RESTExecutor) UpdateStopLoss(ctx context.Context, dealID string, price float64) (bool, error) {
	if err := e.limiter.Wait(ctx, limiterKey, e.burst, e.rate); err != nil {
		return false, fmt.Errorf("rate limit wait: %w", err)
	}

	err := e.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPut,
		URL:     fmt.Sprintf("%s/positions/%s/stop-loss", e.baseURL, dealID),
		Headers: e.headers(),
		Body:    map[string]float64{"price": price},
	}, nil)
	if err != nil {
		if xhttp.StatusCode(err) == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("update stop loss %s: %w", dealID, err)
	}
	return true, nil
}

func (e *RESTExecutor) GetPositions(ctx context.Context) ([]models.Position, error) {
	if err := e.limiter.Wait(ctx, limiterKey, e.burst, e.rate); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var positions []models.Position
	err := e.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     e.baseURL + "/positions",
		Headers: e.headers(),
	}, &positions)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return positions, nil
}

func (e *RESTExecutor) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if e.apiKey != "" {
		h["X-API-Key"] = e.apiKey
	}
	return h
}
