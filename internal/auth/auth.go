// Package auth exchanges stored long-lived credentials for short-lived
// access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/donghyeun02/calendar-notifier/internal/common"
	"github.com/donghyeun02/calendar-notifier/internal/models"
)

// CredentialStore looks up the user holding the long-lived credential.
type CredentialStore interface {
	GetUser(ctx context.Context, userKey string) (*models.User, error)
}

// TokenProvider mints a fresh access token per call. Access tokens are
// ephemeral and never persisted; a new token source is built for every
// exchange so no credential ever lives on a shared client.
type TokenProvider struct {
	oauthConfig *oauth2.Config
	creds       CredentialStore
}

// NewTokenProvider creates a TokenProvider using the given OAuth client
// configuration and credential store.
func NewTokenProvider(oauthConfig *oauth2.Config, creds CredentialStore) *TokenProvider {
	return &TokenProvider{oauthConfig: oauthConfig, creds: creds}
}

// AccessToken exchanges the user's stored refresh token for an access
// token. Fails with common.ErrNotAuthenticated if the user never completed
// login (or logged out), and common.ErrCredentialRevoked if the upstream
// exchange rejects the refresh token.
func (p *TokenProvider) AccessToken(ctx context.Context, userKey string) (string, error) {
	user, err := p.creds.GetUser(ctx, userKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrNotAuthenticated
		}
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	if user.Deleted || user.RefreshToken == "" {
		return "", common.ErrNotAuthenticated
	}

	source := p.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: user.RefreshToken})
	token, err := source.Token()
	if err != nil {
		// Only invalid_grant means the credential itself is dead; any other
		// endpoint response (rate limit, 5xx) is a transient failure.
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			return "", fmt.Errorf("%w: %v", common.ErrCredentialRevoked, err)
		}
		return "", fmt.Errorf("failed to exchange refresh token: %w", err)
	}

	return token.AccessToken, nil
}

// NewGoogleConfig builds the OAuth 2.0 client configuration for the Google
// Calendar scopes used by the notifier.
func NewGoogleConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes: []string{
			calendar.CalendarScope,
			calendar.CalendarEventsScope,
		},
		Endpoint: google.Endpoint,
	}
}
