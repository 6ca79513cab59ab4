// Package settings implements the worker's settings client: an HTTP fetch
// against the internal settings service with unbounded exponential-backoff
// retry.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jhacksman/FeedEater-sub001/metrics"
)

// maxResponseSize bounds the settings response body, guarding against an
// unbounded read from a misbehaving settings service.
const maxResponseSize = 1 * 1024 * 1024

// Value is a settings value, which may be absent (null) in the wire format.
type Value struct {
	Key   string
	Value *string
}

// Client fetches per-module settings from the internal settings HTTP
// endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger

	backoffBase       time.Duration
	backoffMultiplier float64
	maxBackoff        time.Duration
}

// New constructs a settings Client. baseURL and token come from
// FEED_API_BASE_URL and FEED_INTERNAL_TOKEN respectively.
func New(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:        &http.Client{Timeout: 10 * time.Second},
		baseURL:           baseURL,
		token:             token,
		logger:            logger,
		backoffBase:       250 * time.Millisecond,
		backoffMultiplier: 1.6,
		maxBackoff:        5 * time.Second,
	}
}

type settingsResponse struct {
	Settings []rawSetting `json:"settings"`
}

type rawSetting struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// FetchSettings fetches the settings for moduleName, retrying indefinitely
// on transport errors or non-2xx responses with backoff
// min(5s, 250ms·1.6^(n-1)). The context may be used to give
// up early; FetchSettings returns ctx.Err() if cancelled mid-retry.
func (c *Client) FetchSettings(ctx context.Context, moduleName string) (map[string]*string, error) {
	var attempt int
	var failedBefore bool

	for {
		attempt++
		result, err := c.fetchOnce(ctx, moduleName)
		if err == nil {
			if failedBefore {
				c.logger.Info("settings fetch recovered", "module", moduleName, "attempt", attempt)
			}
			return result, nil
		}

		c.logger.Warn("settings fetch failed, retrying", "module", moduleName, "attempt", attempt, "error", err)
		metrics.SettingsFetchRetriesTotal.WithLabelValues(moduleName).Inc()
		failedBefore = true

		backoff := c.backoffFor(attempt)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) backoffFor(attempt int) time.Duration {
	d := float64(c.backoffBase) * pow(c.backoffMultiplier, attempt-1)
	if time.Duration(d) > c.maxBackoff {
		return c.maxBackoff
	}
	return time.Duration(d)
}

func pow(base float64, exp int) float64 {
	if exp <= 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func (c *Client) fetchOnce(ctx context.Context, moduleName string) (map[string]*string, error) {
	url := fmt.Sprintf("%s/api/internal/settings/%s", c.baseURL, moduleName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("settings service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed settingsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make(map[string]*string, len(parsed.Settings))
	for _, s := range parsed.Settings {
		out[s.Key] = s.Value
	}
	return out, nil
}
