// Package extract holds the vendor API collaborators and the per-source
// extraction run: fetch, incremental sync, CSV snapshot write, archive.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

// Authorizer decorates an outgoing request with vendor credentials.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// Client is the shared HTTP layer under every vendor fetcher: JSON GETs with
// retry and exponential backoff. Pagination is eager; callers receive fully
// materialized row lists.
type Client struct {
	httpClient *http.Client
	auth       Authorizer
	retryCount int
	retryDelay time.Duration
	log        zerolog.Logger
}

func NewClient(cfg *config.Config, auth Authorizer) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Request.Timeout,
		},
		auth:       auth,
		retryCount: cfg.Request.RetryCount,
		retryDelay: time.Duration(cfg.Request.RetryTimeoutSeconds) * time.Second / 4,
		log:        logger.Get(),
	}
}

// GetJSON fetches a URL and decodes the body, retrying transient failures.
// Numbers decode as json.Number so row values stringify identically between
// runs.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) (http.Header, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
				// Exponential backoff
			}
		}

		header, err := c.getOnce(ctx, url, out)
		if err == nil {
			return header, nil
		}
		if !errors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		c.log.Warn().Err(err).Str("url", url).Int("attempt", attempt+1).Msg("Request failed, retrying")
	}
	return nil, fmt.Errorf("max retries exhausted for %s: %w", url, lastErr)
}

func (c *Client) getOnce(ctx context.Context, url string, out interface{}) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			return nil, errors.NewRetryableError(err, "failed to authorize request")
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewRetryableError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		io.Copy(io.Discard, resp.Body)
		return nil, errors.NewRetryableError(fmt.Errorf("HTTP %d", resp.StatusCode), "external service unavailable")
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: HTTP %d: %s", errors.ErrExternalAPIError, resp.StatusCode, string(body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Header, nil
}
