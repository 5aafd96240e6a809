package models

import "time"

// Credential holds the result of an OAuth2 refresh-token exchange with the
// Questrade login server. It is immutable: a refresh replaces the whole value
// rather than mutating fields, so "current credential" is always a single
// atomic reference.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	APIServer    string    `json:"api_server"`
	ExpiresIn    int       `json:"expires_in"` // seconds
	IssuedAt     time.Time `json:"-"`
}

// ExpiresAt returns the hard expiry instant of the access token.
func (c *Credential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(time.Duration(c.ExpiresIn) * time.Second)
}

// ExpiredAt reports whether the access token is unusable at the given instant.
func (c *Credential) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt())
}

// AuthorizationValue returns the value for the Authorization request header.
func (c *Credential) AuthorizationValue() string {
	return c.TokenType + " " + c.AccessToken
}
