package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/din-network/din-monitor/pkg/types"
)

const (
	defaultMetricsPath = "/metrics"
	healthPath         = "/health"
	defaultTimeout     = 5 * time.Second
)

// Client fetches performance samples from one operator. The operator id is
// the user part of the endpoint, e.g. http://op1@10.0.0.1:8080/metrics.
type Client struct {
	endpoint   string
	base       string
	OperatorID types.OperatorID
	client     *http.Client
}

func (c *Client) String() string {
	return c.OperatorID + "@" + c.base
}

func NewClient(endpoint string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("endpoint %s has no operator id", endpoint)
	}
	operatorID := u.User.Username()

	u.User = nil
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultMetricsPath
	}
	base := url.URL{Scheme: u.Scheme, Host: u.Host}

	return &Client{
		endpoint:   u.String(),
		base:       base.String(),
		OperatorID: operatorID,
		client:     &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// GetStatus checks the operator's health endpoint.
func (c *Client) GetStatus(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("operator %s health check returned %d", c.OperatorID, resp.StatusCode)
	}
	return nil
}

// GetMetrics fetches the current sample. A missing timestamp is set to now.
func (c *Client) GetMetrics(ctx context.Context) (*types.PerformanceMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("operator %s metrics returned %d", c.OperatorID, resp.StatusCode)
	}

	metrics := &types.PerformanceMetrics{}
	if err := json.NewDecoder(resp.Body).Decode(metrics); err != nil {
		return nil, fmt.Errorf("could not decode metrics of operator %s: %v", c.OperatorID, err)
	}
	if metrics.Timestamp.IsZero() {
		metrics.Timestamp = time.Now().UTC()
	}
	return metrics, nil
}
