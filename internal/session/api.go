// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/sec"
)

// # Session API Contract

// Credentials identify the account a user signs in with.
type Credentials struct {
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Role     sec.UserRole `json:"role,omitempty"`
}

// Renewal is the result of a successful token refresh.
type Renewal struct {
	AccessToken string

	// RefreshToken is empty when the upstream does not rotate refresh tokens.
	RefreshToken string

	ExpiresAt time.Time
}

// API is the upstream Session API consumed by the [Store].
//
// Implementations classify failures: rejected credentials or tokens are
// [apperr.CodeAuthenticationFailed], transport failures and 5xx answers are
// [apperr.CodeNetwork].
type API interface {
	Login(ctx context.Context, credentials Credentials) (*sec.Principal, error)
	Refresh(ctx context.Context, refreshToken string) (*Renewal, error)
	Logout(ctx context.Context, principal *sec.Principal) error
}

// # HTTP Implementation

// HTTPClient talks to the Session API over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the Session API rooted at baseURL.
// A nil httpClient uses a client bounded by [constants.SessionAPITimeout].
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.SessionAPITimeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// Wire payloads. The upstream wraps every answer in a {"data": ...} envelope.
type (
	tokenPayload struct {
		AccessToken  string    `json:"access_token"`
		RefreshToken string    `json:"refresh_token"`
		ExpiresAt    time.Time `json:"expires_at"`
		User         *struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"user,omitempty"`
	}

	tokenEnvelope struct {
		Data tokenPayload `json:"data"`
	}

	refreshBody struct {
		RefreshToken string `json:"refresh_token"`
	}
)

// Login exchanges credentials for a principal.
func (c *HTTPClient) Login(ctx context.Context, credentials Credentials) (*sec.Principal, error) {
	var envelope tokenEnvelope
	if err := c.post(ctx, "/api/v1/auth/login", "", credentials, &envelope); err != nil {
		return nil, err
	}

	payload := envelope.Data
	if payload.AccessToken == "" || payload.User == nil {
		return nil, apperr.Network(errors.New("session_api_login_incomplete_response"))
	}

	return &sec.Principal{
		ID:           payload.User.ID,
		Name:         payload.User.Name,
		Role:         sec.ParseRole(payload.User.Role),
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    payload.ExpiresAt,
	}, nil
}

// Refresh renews the access token.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*Renewal, error) {
	var envelope tokenEnvelope
	if err := c.post(ctx, "/api/v1/auth/refresh", "", refreshBody{RefreshToken: refreshToken}, &envelope); err != nil {
		return nil, err
	}

	if envelope.Data.AccessToken == "" {
		return nil, apperr.Network(errors.New("session_api_refresh_incomplete_response"))
	}

	return &Renewal{
		AccessToken:  envelope.Data.AccessToken,
		RefreshToken: envelope.Data.RefreshToken,
		ExpiresAt:    envelope.Data.ExpiresAt,
	}, nil
}

// Logout revokes the principal's refresh token upstream.
func (c *HTTPClient) Logout(ctx context.Context, principal *sec.Principal) error {
	if principal == nil {
		return nil
	}
	return c.post(ctx, "/api/v1/auth/logout", principal.AccessToken, refreshBody{RefreshToken: principal.RefreshToken}, nil)
}

// Ping reports whether the Session API answers at all. Any HTTP status counts.
func (c *HTTPClient) Ping(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("session_api_ping_failed: %w", err)
	}
	response, err := c.client.Do(request)
	if err != nil {
		return fmt.Errorf("session_api_ping_failed: %w", err)
	}
	_ = response.Body.Close()
	return nil
}

// post sends body as JSON and decodes a 2xx answer into target (when non-nil).
func (c *HTTPClient) post(ctx context.Context, path, bearer string, body, target any) error {

	// ── 1. Request Construction ───────────────────────────────────────────
	encoded, err := json.Marshal(body)
	if err != nil {
		return apperr.Internal(fmt.Errorf("session_api_encode_failed: %w", err))
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return apperr.Internal(fmt.Errorf("session_api_request_failed: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	if bearer != "" {
		request.Header.Set(constants.HeaderAuthorization, constants.BearerPrefix+bearer)
	}

	// ── 2. Transport ──────────────────────────────────────────────────────
	response, err := c.client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Network(fmt.Errorf("session_api_%s_failed: %w", strings.TrimPrefix(path, "/api/v1/auth/"), err))
	}
	defer response.Body.Close()

	// ── 3. Status Classification ──────────────────────────────────────────
	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return apperr.AuthenticationFailed(upstreamMessage(response.Body, "Invalid credentials"))
	case response.StatusCode >= 500:
		return apperr.Network(fmt.Errorf("session_api_status: %d", response.StatusCode))
	case response.StatusCode >= 400:
		return apperr.ValidationError(upstreamMessage(response.Body, "Request rejected by the session service"))
	}

	if target == nil || response.StatusCode == http.StatusNoContent {
		return nil
	}

	// ── 4. Decoding ───────────────────────────────────────────────────────
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return apperr.Network(fmt.Errorf("session_api_decode_failed: %w", err))
	}
	return nil
}

// upstreamMessage extracts the "error" field of an error envelope.
func upstreamMessage(body io.Reader, fallback string) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&envelope); err != nil || envelope.Error == "" {
		return fallback
	}
	return envelope.Error
}
