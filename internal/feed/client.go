/*
This file is used to fetch reference prices from an external feed service.

The engine treats the feed as the independent leg of every deviation check,
so responses are validated strictly and stale or malformed data is rejected
rather than smoothed over.
*/

package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/defiedge/rangevault/internal/logger"
)

var feedLogger = logger.GetForComponent("reference_feed")

// Error definitions for zero-tolerance error handling
var (
	ErrFeedRequestFailed = errors.New("feed request failed")
	ErrInvalidFeedData   = errors.New("invalid feed data received")
	ErrPairNotServed     = errors.New("feed does not serve the requested pair")
)

const (
	maxRetries     = 3
	requestTimeout = 10 * time.Second
	retryBackoff   = 500 * time.Millisecond
)

// Answer is one feed reading: a raw integer value in the feed's own decimal
// precision plus its publication time.
type Answer struct {
	Value     sdkmath.Int
	Decimals  int
	UpdatedAt time.Time
}

// Source produces the latest answer for an asset pair. The HTTP client below
// is the production implementation; tests substitute in-memory sources.
type Source interface {
	LatestAnswer(base, quote string) (Answer, error)
}

// Client fetches answers from a REST feed endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a feed client for the given base URL.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: empty base URL", ErrFeedRequestFailed)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedRequestFailed, err)
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}, nil
}

type latestAnswerResponse struct {
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	Value     string `json:"value"`
	Decimals  int    `json:"decimals"`
	UpdatedAt int64  `json:"updated_at"`
}

// LatestAnswer fetches the most recent value for base/quote, retrying
// transient transport failures.
func (c *Client) LatestAnswer(base, quote string) (Answer, error) {
	if base == "" || quote == "" {
		return Answer{}, fmt.Errorf("%w: empty symbol", ErrInvalidFeedData)
	}

	endpoint := fmt.Sprintf("%s/v1/latest?base=%s&quote=%s",
		c.baseURL, url.QueryEscape(base), url.QueryEscape(quote))

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		answer, err := c.fetchOnce(endpoint, base, quote)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		// Malformed payloads will not improve on retry.
		if errors.Is(err, ErrInvalidFeedData) || errors.Is(err, ErrPairNotServed) {
			return Answer{}, err
		}
		feedLogger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("pair", base+"/"+quote).
			Msg("Feed request failed, retrying")
		time.Sleep(retryBackoff * time.Duration(attempt))
	}
	return Answer{}, fmt.Errorf("%w after %d attempts: %w", ErrFeedRequestFailed, maxRetries, lastErr)
}

func (c *Client) fetchOnce(endpoint, base, quote string) (Answer, error) {
	resp, err := c.client.Get(endpoint)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrFeedRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Answer{}, fmt.Errorf("%w: %s/%s", ErrPairNotServed, base, quote)
	}
	if resp.StatusCode != http.StatusOK {
		return Answer{}, fmt.Errorf("%w: status %d", ErrFeedRequestFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrFeedRequestFailed, err)
	}

	var payload latestAnswerResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Answer{}, fmt.Errorf("%w: %w", ErrInvalidFeedData, err)
	}
	return validateAnswer(payload, base, quote)
}

// validateAnswer performs strict validation on a feed payload.
func validateAnswer(payload latestAnswerResponse, base, quote string) (Answer, error) {
	if payload.Base != base || payload.Quote != quote {
		return Answer{}, fmt.Errorf("%w: got %s/%s, want %s/%s",
			ErrInvalidFeedData, payload.Base, payload.Quote, base, quote)
	}
	if payload.Decimals < 0 || payload.Decimals > 18 {
		return Answer{}, fmt.Errorf("%w: decimals %d", ErrInvalidFeedData, payload.Decimals)
	}
	if payload.UpdatedAt <= 0 {
		return Answer{}, fmt.Errorf("%w: updated_at %d", ErrInvalidFeedData, payload.UpdatedAt)
	}

	value, ok := sdkmath.NewIntFromString(payload.Value)
	if !ok {
		return Answer{}, fmt.Errorf("%w: value %q", ErrInvalidFeedData, payload.Value)
	}
	if !value.IsPositive() {
		return Answer{}, fmt.Errorf("%w: value must be positive, got %s", ErrInvalidFeedData, value.String())
	}

	return Answer{
		Value:     value,
		Decimals:  payload.Decimals,
		UpdatedAt: time.Unix(payload.UpdatedAt, 0).UTC(),
	}, nil
}
