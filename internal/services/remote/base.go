package remote

import (
	"context"
	"fmt"
	"time"

	xhttp "TradePilot/pkg/http"
)

// serviceClient is the shared JSON POST foundation for the remote inference
// and training clients.
type serviceClient struct {
	baseURL string
	client  *xhttp.Client
}

// newServiceClient builds a client for one upstream service. retries controls
// transport-level retry behavior; pass 0 when the caller owns retry policy.
func newServiceClient(baseURL string, timeout time.Duration, retries uint64) *serviceClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := []xhttp.ClientOption{xhttp.WithTimeout(timeout)}
	if retries > 0 {
		opts = append(opts, xhttp.WithRetries(retries))
	}
	return &serviceClient{
		baseURL: baseURL,
		client:  xhttp.NewClient(opts...),
	}
}

func (c *serviceClient) postJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("remote service url not configured")
	}
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}
