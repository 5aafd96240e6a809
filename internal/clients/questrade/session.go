// Package questrade provides a client for the Questrade market data API
package questrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jfmartel/tsxdata/internal/common"
	"github.com/jfmartel/tsxdata/internal/models"
)

const (
	DefaultLoginURL = "https://login.questrade.com/oauth2/token"
	DefaultTimeout  = 30 * time.Second

	// Refresh retry policy for transient token-exchange failures.
	DefaultRefreshAttempts = 5
	DefaultRefreshDelay    = 10 * time.Second
)

// ErrSessionFailed is returned once the refresh retry budget has been
// exhausted. The state is terminal; callers must construct a new Session.
var ErrSessionFailed = errors.New("questrade session failed: re-authentication exhausted, construct a new session")

// AuthError represents a non-success response from the OAuth2 token endpoint.
// It carries the status and body for diagnosis; a stale refresh token shows
// up here and requires out-of-band re-consent.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("questrade token exchange failed (status: %d): %s", e.StatusCode, e.Body)
}

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateValid
	stateRefreshing
	stateFailed
)

// Session owns the live Questrade credential. It exchanges a refresh token
// for an access token, tracks expiry, and transparently re-authenticates
// before any call that would use an expired credential. The refresh token
// rotates on every successful exchange and the Session carries the rotated
// value forward.
//
// EnsureValid is serialized behind a mutex: only one refresh is ever in
// flight per session.
type Session struct {
	loginURL   string
	httpClient *http.Client
	logger     *common.Logger

	attempts int
	delay    time.Duration
	now      func() time.Time

	mu           sync.Mutex
	state        sessionState
	refreshToken string
	cred         *models.Credential
}

// SessionOption configures the session
type SessionOption func(*Session)

// WithLoginURL sets the OAuth2 token endpoint
func WithLoginURL(loginURL string) SessionOption {
	return func(s *Session) {
		s.loginURL = loginURL
	}
}

// WithSessionLogger sets the logger
func WithSessionLogger(logger *common.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSessionTimeout sets the HTTP timeout for token exchanges
func WithSessionTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.httpClient.Timeout = timeout
	}
}

// WithRefreshPolicy sets the retry bound and inter-attempt delay used when
// re-authenticating an expired credential.
func WithRefreshPolicy(attempts int, delay time.Duration) SessionOption {
	return func(s *Session) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.delay = delay
	}
}

// NewSession creates a session seeded with a refresh token. No network call
// is made until Authenticate or EnsureValid.
func NewSession(refreshToken string, opts ...SessionOption) *Session {
	s := &Session{
		loginURL: DefaultLoginURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:       common.NewSilentLogger(),
		attempts:     DefaultRefreshAttempts,
		delay:        DefaultRefreshDelay,
		now:          time.Now,
		refreshToken: refreshToken,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// tokenResponse mirrors the OAuth2 token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	APIServer    string `json:"api_server"`
	ExpiresIn    int    `json:"expires_in"`
}

// Authenticate performs the initial refresh-token exchange. A failure here is
// not retried; the seed token is either valid or it is not.
func (s *Session) Authenticate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateFailed {
		return ErrSessionFailed
	}
	return s.exchangeLocked(ctx)
}

// EnsureValid is called before every outbound API operation. If the held
// credential has reached its hard expiry, it re-authenticates with the
// rotated refresh token, retrying transient failures up to the configured
// bound with a fixed inter-attempt delay. Exhausting the budget leaves the
// session Failed, a terminal state.
func (s *Session) EnsureValid(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateFailed:
		return ErrSessionFailed
	case stateUnauthenticated:
		return s.exchangeLocked(ctx)
	}

	if !s.cred.ExpiredAt(s.now()) {
		return nil
	}

	s.state = stateRefreshing
	s.logger.Info().Time("expired_at", s.cred.ExpiresAt()).Msg("Access token expired, refreshing session")

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		lastErr = s.exchangeLocked(ctx)
		if lastErr == nil {
			return nil
		}

		s.logger.Warn().Err(lastErr).Int("attempt", attempt).Int("max_attempts", s.attempts).Msg("Token refresh failed")

		if attempt < s.attempts {
			if err := s.wait(ctx); err != nil {
				s.state = stateFailed
				return err
			}
		}
	}

	s.state = stateFailed
	return fmt.Errorf("token refresh exhausted after %d attempts: %w", s.attempts, lastErr)
}

// Credential returns the currently held credential. The value is immutable;
// a refresh swaps in a fresh one rather than mutating it.
func (s *Session) Credential() *models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred
}

// exchangeLocked posts the refresh token to the login endpoint and swaps the
// credential on success. Caller holds s.mu.
func (s *Session) exchangeLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", s.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	issuedAt := s.now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &AuthError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" || tok.APIServer == "" || tok.RefreshToken == "" || tok.ExpiresIn <= 0 {
		return fmt.Errorf("malformed token response: missing access_token, api_server, refresh_token or expires_in")
	}

	s.cred = &models.Credential{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		APIServer:    tok.APIServer,
		ExpiresIn:    tok.ExpiresIn,
		IssuedAt:     issuedAt,
	}
	s.refreshToken = tok.RefreshToken
	s.state = stateValid

	s.logger.Info().
		Str("api_server", tok.APIServer).
		Int("expires_in", tok.ExpiresIn).
		Msg("Questrade API connection success")

	return nil
}

// wait sleeps for the configured inter-attempt delay, honouring cancellation.
func (s *Session) wait(ctx context.Context) error {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
