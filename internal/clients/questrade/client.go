package questrade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jfmartel/tsxdata/internal/common"
	"github.com/jfmartel/tsxdata/internal/interfaces"
	"github.com/jfmartel/tsxdata/internal/models"
)

const (
	DefaultRateLimit = 5 // requests per second

	// Candle window bounds are serialized at the venue's fixed trading
	// offset regardless of the caller's locale. The offset does not track
	// daylight saving; that matches the upstream wire contract.
	venueUTCOffset  = "-05:00"
	candleTimeParam = "2006-01-02T15:04:05"

	// Observed throttling code on the candle endpoint.
	DefaultThrottleCode = 1019
)

// APIError represents a non-success response from a data endpoint
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("questrade API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError signals that the remote API throttled a data request.
// Distinct from an empty result: callers skip the current symbol and
// continue the batch.
type RateLimitError struct {
	Code    int
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("questrade rate limited (code: %d): %s", e.Code, e.Message)
}

// Client implements the MarketDataClient interface on top of a Session.
// Every method calls Session.EnsureValid before going out on the wire.
type Client struct {
	session       *Session
	httpClient    *http.Client
	logger        *common.Logger
	limiter       *rate.Limiter
	throttleCodes map[int]struct{}
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the client-side request rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithThrottleCodes replaces the set of response codes recognized as
// throttling. The default set is {1019}.
func WithThrottleCodes(codes ...int) ClientOption {
	return func(c *Client) {
		c.throttleCodes = make(map[int]struct{}, len(codes))
		for _, code := range codes {
			c.throttleCodes[code] = struct{}{}
		}
	}
}

// NewClient creates a market data client on an authenticated session
func NewClient(session *Session, opts ...ClientOption) *Client {
	c := &Client{
		session: session,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:       rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:        common.NewSilentLogger(),
		throttleCodes: map[int]struct{}{DefaultThrottleCode: {}},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a rate-limited, authenticated GET against the session's API
// server and returns the raw body together with the HTTP status.
func (c *Client) get(ctx context.Context, path string, params url.Values) (int, []byte, error) {
	if err := c.session.EnsureValid(ctx); err != nil {
		return 0, nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limit wait: %w", err)
	}

	cred := c.session.Credential()
	reqURL := cred.APIServer + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", cred.AuthorizationValue())

	c.logger.Debug().Str("endpoint", path).Msg("Questrade API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

// SearchSymbols queries the symbol search endpoint with a ticker prefix.
// Zero matches is a valid outcome (ticker not found or not listed).
func (c *Client) SearchSymbols(ctx context.Context, prefix string) ([]models.SymbolMatch, error) {
	params := url.Values{}
	params.Set("prefix", prefix)

	status, body, err := c.get(ctx, "v1/symbols/search", params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: string(body), Endpoint: "v1/symbols/search"}
	}

	var resp struct {
		Symbols []models.SymbolMatch `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return resp.Symbols, nil
}

// GetSymbolInfo fetches fundamentals for a single resolved symbol id.
func (c *Client) GetSymbolInfo(ctx context.Context, symbolID int64) (*models.FundamentalsSnapshot, error) {
	endpoint := "v1/symbols/" + strconv.FormatInt(symbolID, 10)

	status, body, err := c.get(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: string(body), Endpoint: endpoint}
	}

	var resp struct {
		Symbols []models.FundamentalsSnapshot `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode symbol info response: %w", err)
	}
	if len(resp.Symbols) == 0 {
		return nil, fmt.Errorf("symbol %d missing from info response", symbolID)
	}

	snap := resp.Symbols[0]
	return &snap, nil
}

// candlesResponse covers both shapes the candle endpoint produces: a candle
// list, or an error envelope with a numeric code.
type candlesResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Candles []models.Candle `json:"candles"`
}

// GetDailyCandles fetches daily OHLCV bars in [start, end]. A response
// carrying a recognized throttle code returns *RateLimitError; a range with
// no bars returns an empty slice and a nil error.
func (c *Client) GetDailyCandles(ctx context.Context, symbolID int64, start, end time.Time) ([]models.Candle, error) {
	endpoint := "v1/markets/candles/" + strconv.FormatInt(symbolID, 10)

	params := url.Values{}
	params.Set("startTime", start.Format(candleTimeParam)+venueUTCOffset)
	params.Set("endTime", end.Format(candleTimeParam)+venueUTCOffset)
	params.Set("interval", "OneDay")

	status, body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	// Throttle envelopes can arrive with a non-OK status, so the body is
	// inspected before the status.
	var resp candlesResponse
	decodeErr := json.Unmarshal(body, &resp)
	if decodeErr == nil && resp.Code != 0 {
		if _, throttled := c.throttleCodes[resp.Code]; throttled {
			c.logger.Warn().Int64("symbol_id", symbolID).Int("code", resp.Code).Msg("Questrade throttled candle request")
			return nil, &RateLimitError{Code: resp.Code, Message: resp.Message}
		}
	}

	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: string(body), Endpoint: endpoint}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode candles response: %w", decodeErr)
	}

	return resp.Candles, nil
}

// Ensure Client implements MarketDataClient
var _ interfaces.MarketDataClient = (*Client)(nil)
