// Package identity adapts the identity provider used by the agent to sign in
// and mint bearer tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/vidfriends/genbridge/internal/models"
)

var (
	// ErrNotSignedIn indicates no account is signed in with the provider.
	ErrNotSignedIn = errors.New("identity: not signed in")
	// ErrInvalidCredentials indicates the provider rejected the sign-in.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
)

// Provider mints bearer tokens for the signed-in account.
type Provider interface {
	FreshToken(ctx context.Context, force bool) (string, error)
	CurrentSubject(ctx context.Context) (*models.Subject, error)
}

// OAuth2Config describes the provider's token endpoint.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client
}

// OAuth2Provider signs in with the resource-owner password grant and refreshes
// through the refresh token the provider hands back.
type OAuth2Provider struct {
	cfg    oauth2.Config
	client *http.Client

	mu    sync.Mutex
	token *oauth2.Token
	email string
}

// NewOAuth2Provider returns a provider with nobody signed in.
func NewOAuth2Provider(cfg OAuth2Config) *OAuth2Provider {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &OAuth2Provider{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

// SignIn exchanges email and password for a token and returns the subject it
// was issued for.
func (p *OAuth2Provider) SignIn(ctx context.Context, email, password string) (*models.Subject, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	token, err := p.cfg.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) && retrieve.Response != nil && retrieve.Response.StatusCode < http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, retrieve.ErrorCode)
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}

	subject, err := SubjectFromToken(bearer(token), email)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.token = token
	p.email = email
	p.mu.Unlock()

	return subject, nil
}

// SignOut forgets the signed-in account.
func (p *OAuth2Provider) SignOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = nil
	p.email = ""
}

// FreshToken returns the current bearer token. When force is set, or the
// current token has expired, the refresh token is redeemed first.
func (p *OAuth2Provider) FreshToken(ctx context.Context, force bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		return "", ErrNotSignedIn
	}

	if force || !p.token.Valid() {
		if p.token.RefreshToken == "" {
			if !p.token.Valid() {
				return "", ErrNotSignedIn
			}
			return bearer(p.token), nil
		}

		source := p.cfg.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: p.token.RefreshToken})
		next, err := source.Token()
		if err != nil {
			return "", fmt.Errorf("refresh token: %w", err)
		}
		if next.RefreshToken == "" {
			next.RefreshToken = p.token.RefreshToken
		}
		p.token = next
	}

	return bearer(p.token), nil
}

// CurrentSubject returns the signed-in subject or nil when nobody is signed in.
func (p *OAuth2Provider) CurrentSubject(_ context.Context) (*models.Subject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		return nil, nil
	}
	return SubjectFromToken(bearer(p.token), p.email)
}

func (p *OAuth2Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// bearer prefers the OpenID id_token, which the generation API expects, over
// the opaque access token.
func bearer(token *oauth2.Token) string {
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		return idToken
	}
	return token.AccessToken
}

// ParseClaims decodes the claims of a JWT without verifying its signature.
func ParseClaims(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("parse token claims: %w", err)
	}
	return claims, nil
}

// SubjectFromToken reads the subject out of a JWT bearer token. Opaque tokens
// fall back to the sign-in email as both id and email.
func SubjectFromToken(raw, email string) (*models.Subject, error) {
	claims, err := ParseClaims(raw)
	if err != nil {
		if strings.TrimSpace(email) == "" {
			return nil, err
		}
		return &models.Subject{ID: email, Email: email}, nil
	}

	subject := &models.Subject{
		ID:          stringClaim(claims, "user_id"),
		DisplayName: stringClaim(claims, "name"),
		Email:       stringClaim(claims, "email"),
	}
	if subject.ID == "" {
		subject.ID = stringClaim(claims, "sub")
	}
	if subject.Email == "" {
		subject.Email = email
	}
	if subject.ID == "" {
		if subject.Email == "" {
			return nil, errors.New("token carries no subject")
		}
		subject.ID = subject.Email
	}
	return subject, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
