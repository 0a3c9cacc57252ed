// Package ihc provides a client for the IHC attribution scoring API.
package ihc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// JourneySession is one touchpoint record in a scoring request. Field names
// match the API wire contract exactly.
type JourneySession struct {
	ConversionID          string `json:"conversion_id"`
	SessionID             string `json:"session_id"`
	Timestamp             string `json:"timestamp"`
	ChannelLabel          string `json:"channel_label"`
	HolderEngagement      int    `json:"holder_engagement"`
	CloserEngagement      int    `json:"closer_engagement"`
	Conversion            int    `json:"conversion"`
	ImpressionInteraction int    `json:"impression_interaction"`
}

// Attribution is one scored credit fraction in a response.
type Attribution struct {
	ConversionID string  `json:"conversion_id"`
	SessionID    string  `json:"session_id"`
	IHC          float64 `json:"ihc"`
}

// ScoreResponse is the parsed scoring API response. The API signals success
// through the body's statusCode, independent of the HTTP status.
type ScoreResponse struct {
	StatusCode           int           `json:"statusCode"`
	Value                []Attribution `json:"value"`
	PartialFailureErrors any           `json:"partialFailureErrors,omitempty"`
}

// Client defines the scoring operations.
type Client interface {
	// Score submits one batch of journey sessions and returns the parsed
	// response, or an error after exhausting all retry attempts.
	Score(ctx context.Context, batch []JourneySession) (*ScoreResponse, error)
}

type scoreRequest struct {
	CustomerJourneys        []JourneySession        `json:"customer_journeys"`
	RedistributionParameter RedistributionParameter `json:"redistribution_parameter"`
}

// Option configures the IHC client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry sets the attempt count and the fixed delay between attempts.
func WithRetry(count int, delay time.Duration) Option {
	return func(c *httpClient) {
		if count > 0 {
			c.retryCount = count
		}
		c.retryDelay = delay
	}
}

// WithRateLimit paces requests at the given rate per second.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithRedistribution overrides the default redistribution parameter block.
func WithRedistribution(p RedistributionParameter) Option {
	return func(c *httpClient) {
		c.redistribution = p
	}
}

type httpClient struct {
	apiKey         string
	convTypeID     string
	baseURL        string
	retryCount     int
	retryDelay     time.Duration
	redistribution RedistributionParameter
	limiter        *rate.Limiter
	http           *http.Client
}

// NewClient creates a new IHC scoring client.
func NewClient(apiKey, convTypeID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:         apiKey,
		convTypeID:     convTypeID,
		baseURL:        "https://api.ihc-attribution.com/v1/compute_ihc",
		retryCount:     3,
		retryDelay:     5 * time.Second,
		redistribution: DefaultRedistribution(),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiURL carries the conversion type as a query parameter, not in the body.
func (c *httpClient) apiURL() string {
	return c.baseURL + "?conv_type_id=" + url.QueryEscape(c.convTypeID)
}

// Score submits the batch with a fixed-delay retry loop. Transport errors and
// non-2xx responses both count as failed attempts; a 400 is logged with its
// body for diagnosis but retried like any other failure.
func (c *httpClient) Score(ctx context.Context, batch []JourneySession) (*ScoreResponse, error) {
	payload, err := json.Marshal(scoreRequest{
		CustomerJourneys:        batch,
		RedistributionParameter: c.redistribution,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ihc: marshal request")
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryCount; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "ihc: rate limit wait")
			}
		}

		resp, err := c.doOnce(ctx, payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}

		if attempt < c.retryCount {
			zap.L().Warn("ihc: request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("retry_count", c.retryCount),
				zap.Error(err),
			)
			timer := time.NewTimer(c.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr
			case <-timer.C:
			}
		}
	}

	return nil, eris.Wrapf(lastErr, "ihc: request failed after %d attempts", c.retryCount)
}

func (c *httpClient) doOnce(ctx context.Context, payload []byte) (*ScoreResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "ihc: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ihc: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, eris.Wrap(err, "ihc: read response body")
	}
	body := buf.Bytes()

	if resp.StatusCode == http.StatusBadRequest {
		// Likely a malformed batch; surface the body for diagnosis.
		zap.L().Error("ihc: bad request", zap.ByteString("response", body))
	}
	if resp.StatusCode/100 != 2 {
		return nil, eris.Errorf("ihc: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result ScoreResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "ihc: unmarshal response")
	}
	return &result, nil
}
