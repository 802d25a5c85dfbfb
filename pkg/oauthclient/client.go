// Package oauthclient implements the OAuth endpoints the gateway
// consumes: authorization URL construction with PKCE,
// authorization-code token exchange, and refresh-token rotation, built
// on golang.org/x/oauth2.
package oauthclient

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// ProviderEndpoints is the per-ProviderType OAuth endpoint
// configuration.
type ProviderEndpoints struct {
	AuthorizeURL string
	TokenURL     string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	Scopes       []string
	PKCERequired bool
}

// Client issues authorization URLs and performs token exchange/refresh
// for one ProviderType's OAuth endpoints.
type Client struct {
	endpoints ProviderEndpoints
	oauthConf *oauth2.Config
}

// New builds a Client from a ProviderType's OAuth endpoint
// configuration.
func New(endpoints ProviderEndpoints) *Client {
	return &Client{
		endpoints: endpoints,
		oauthConf: &oauth2.Config{
			ClientID:     endpoints.ClientID,
			ClientSecret: endpoints.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  endpoints.AuthorizeURL,
				TokenURL: endpoints.TokenURL,
			},
			RedirectURL: endpoints.RedirectURI,
			Scopes:      endpoints.Scopes,
		},
	}
}

// PKCEPair is a generated code_verifier/code_challenge pair for the
// S256 PKCE method.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewPKCEPair generates a cryptographically random code_verifier and
// its S256 code_challenge.
func NewPKCEPair() (PKCEPair, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return PKCEPair{}, fmt.Errorf("oauthclient: generate verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return PKCEPair{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}, nil
}

// NewState generates a random opaque state value for CSRF binding.
func NewState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("oauthclient: generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// AuthorizeURL builds the authorization-request URL for state and,
// when the endpoint requires PKCE, the given challenge.
func (c *Client) AuthorizeURL(state string, pkce *PKCEPair) string {
	opts := []oauth2.AuthCodeOption{}
	if c.endpoints.PKCERequired && pkce != nil {
		opts = append(opts, oauth2.S256ChallengeOption(pkce.Verifier))
	}
	return c.oauthConf.AuthCodeURL(state, opts...)
}

// Token is the gateway's own tolerant token representation: unlike
// oauth2.Token, zero-value RefreshToken/Expiry are treated as "keep
// the existing value" by callers, and IDToken is carried through
// verbatim for providers that return one.
type Token struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    *time.Time
}

// Exchange performs the authorization_code grant.
func (c *Client) Exchange(ctx context.Context, code string, pkce *PKCEPair) (*Token, error) {
	opts := []oauth2.AuthCodeOption{}
	if c.endpoints.PKCERequired && pkce != nil {
		opts = append(opts, oauth2.VerifierOption(pkce.Verifier))
	}

	tok, err := c.oauthConf.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, &OAuthError{Kind: KindExchangeFailed, Cause: err}
	}
	return c.toGatewayToken(tok), nil
}

// Refresh performs the refresh_token grant. A transient failure
// (network error, 5xx, 429) is reported via OAuthError.Transient so
// callers (pkg/oauthrefresh) can apply backoff instead of escalating
// immediately; a permanent failure (invalid_grant and friends) is not.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	src := c.oauthConf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyRefreshError(err)
	}
	return c.toGatewayToken(tok), nil
}

func (c *Client) toGatewayToken(tok *oauth2.Token) *Token {
	out := &Token{AccessToken: tok.AccessToken}
	if tok.RefreshToken != "" {
		out.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		out.ExpiresAt = &exp
	}
	if idTok, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idTok
	}
	return out
}

// oauthErrorBody is the RFC 6749 error response shape, used to detect
// permanent failures such as invalid_grant.
type oauthErrorBody struct {
	Error string `json:"error"`
}

func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return &OAuthError{Kind: KindRefreshFailed, Transient: true, Cause: err}
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode == 429 {
			return &OAuthError{Kind: KindRefreshFailed, Transient: true, Cause: err}
		}

		var body oauthErrorBody
		if json.Unmarshal(retrieveErr.Body, &body) == nil && body.Error == "invalid_grant" {
			return &OAuthError{Kind: KindInvalidGrant, Transient: false, Cause: err}
		}
		return &OAuthError{Kind: KindRefreshFailed, Transient: false, Cause: err}
	}

	// Network-level failures (DNS, connection refused, timeout) are
	// transient by definition.
	return &OAuthError{Kind: KindRefreshFailed, Transient: true, Cause: err}
}
