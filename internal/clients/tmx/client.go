// Package tmx provides a client for the TMX listed-company directory
package tmx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jfmartel/tsxdata/internal/common"
	"github.com/jfmartel/tsxdata/internal/interfaces"
	"github.com/jfmartel/tsxdata/internal/models"
)

const (
	DefaultBaseURL   = "https://www.tsx.com/json/company-directory/search/tsx"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second

	// The directory search treats "^" as a match-everything query.
	directoryWildcard = "%5E*"
)

// Client fetches the TSX company directory from the public TMX JSON endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
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

// NewClient creates a new TMX directory client. The endpoint is public and
// needs no API key.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// directoryResponse represents the TMX company directory payload
type directoryResponse struct {
	Results []struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"results"`
}

// GetDirectory retrieves all (company name, symbol) pairs currently listed
// on the TSX. Rows without a ticker symbol are dropped.
func (c *Client) GetDirectory(ctx context.Context) ([]models.SymbolListing, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + "/" + directoryWildcard

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", c.baseURL).Msg("TMX directory request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error().Err(err).Dur("elapsed", elapsed).Msg("TMX directory request failed")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("TMX directory non-OK response")
		return nil, fmt.Errorf("TMX directory error: status %d", resp.StatusCode)
	}

	var dir directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	listings := make([]models.SymbolListing, 0, len(dir.Results))
	for _, row := range dir.Results {
		if row.Symbol == "" {
			continue
		}
		listings = append(listings, models.SymbolListing{
			CompanyName: row.Name,
			Symbol:      row.Symbol,
		})
	}

	c.logger.Info().Int("listings", len(listings)).Dur("elapsed", elapsed).Msg("TMX directory fetched")

	return listings, nil
}

// Ensure Client implements DirectoryClient
var _ interfaces.DirectoryClient = (*Client)(nil)
