// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/sec"
)

// refreshTokenLength is the entropy of refresh tokens in bytes.
const refreshTokenLength = 32

// AuthService plays the Session API: login, refresh token rotation and logout.
type AuthService struct {
	accounts   *AccountStore
	grants     *GrantStore
	issuer     *sec.TokenIssuer
	inspector  *sec.TokenInspector
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthService creates the service around an issuer.
func NewAuthService(accounts *AccountStore, grants *GrantStore, issuer *sec.TokenIssuer, accessTTL, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		accounts:   accounts,
		grants:     grants,
		issuer:     issuer,
		inspector:  sec.NewTokenInspector(issuer.PublicKey()),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Grant is an issued token pair.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Account      *Account
}

/*
Login verifies credentials and issues a token pair.

A non-empty role must match the account's role: signing in on the organizer
page with an attendee account fails like a wrong password.
*/
func (service *AuthService) Login(ctx context.Context, email, password string, role sec.UserRole) (*Grant, error) {
	account, err := service.accounts.FindByEmail(ctx, email)

	// Same message for unknown accounts and bad passwords to prevent enumeration
	if err != nil || !sec.CheckPasswordHash(password, account.PasswordHash) {
		return nil, apperr.AuthenticationFailed("Invalid email or password")
	}

	if role != "" && role != account.Role {
		return nil, apperr.AuthenticationFailed(fmt.Sprintf("This account cannot sign in as %s", role))
	}

	return service.issue(account)
}

/*
Refresh implements refresh token rotation: the presented token is consumed and
a fresh pair is issued.
*/
func (service *AuthService) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	userID, ok := service.grants.Take(refreshToken)
	if !ok {
		return nil, apperr.AuthenticationFailed("Invalid or expired refresh token")
	}

	account, err := service.accounts.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.AuthenticationFailed("Account no longer exists")
	}

	return service.issue(account)
}

// Logout revokes refreshToken. Unknown tokens are ignored, so logout is idempotent.
func (service *AuthService) Logout(_ context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	service.grants.Take(refreshToken)
}

// Authenticate resolves an access token to its account id.
func (service *AuthService) Authenticate(accessToken string) (*sec.AuthClaims, error) {
	claims, err := service.inspector.Inspect(accessToken)
	if err != nil {
		return nil, apperr.AuthenticationFailed("Invalid access token").WithCause(err)
	}
	return claims, nil
}

func (service *AuthService) issue(account *Account) (*Grant, error) {
	accessToken, expiresAt, err := service.issuer.GenerateAccessToken(account.ID, account.Name, account.Role, service.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sandbox_auth_token_generation_failed: %w", err)
	}

	refreshToken, err := sec.GenerateSecureToken(refreshTokenLength)
	if err != nil {
		return nil, fmt.Errorf("sandbox_auth_refresh_token_failed: %w", err)
	}
	service.grants.Put(refreshToken, account.ID, time.Now().Add(service.refreshTTL))

	return &Grant{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Account:      account,
	}, nil
}
