// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sandbox

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/constants"
	requestutil "github.com/taibuivan/evently/internal/platform/request"
	"github.com/taibuivan/evently/internal/platform/respond"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/platform/validate"
)

// AuthHandler serves the Session API endpoints.
type AuthHandler struct {
	service *AuthService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(service *AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Routes returns the /api/v1/auth router.
//
// # Endpoints
//   - POST /login   : Verifies credentials and returns a token pair.
//   - POST /refresh : Rotates a refresh token.
//   - POST /logout  : Revokes a refresh token.
func (handler *AuthHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	return router
}

// # Payloads

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         userPayload `json:"user"`
}

func toTokenResponse(grant *Grant) tokenResponse {
	return tokenResponse{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		User: userPayload{
			ID:   grant.Account.ID,
			Name: grant.Account.Name,
			Role: grant.Account.Role.String(),
		},
	}
}

/*
login handles POST /api/v1/auth/login.

Response:
  - 200: tokenResponse
  - 400: Invalid JSON or missing fields
  - 401: Wrong credentials or wrong role
*/
func (handler *AuthHandler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required("email", input.Email).
		Email("email", input.Email).
		Required("password", input.Password).
		MaxLen("password", input.Password, constants.MaxPasswordLength).
		SignInRole("role", sec.ParseRole(input.Role))
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	grant, err := handler.service.Login(request.Context(), input.Email, input.Password, sec.ParseRole(input.Role))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, toTokenResponse(grant))
}

/*
refresh handles POST /api/v1/auth/refresh.

Response:
  - 200: tokenResponse with a rotated refresh token
  - 401: Unknown, used or expired refresh token
*/
func (handler *AuthHandler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if input.RefreshToken == "" {
		respond.Error(writer, request, apperr.AuthenticationFailed("Refresh token is required"))
		return
	}

	grant, err := handler.service.Refresh(request.Context(), input.RefreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, toTokenResponse(grant))
}

/*
logout handles POST /api/v1/auth/logout.

The bearer access token, when present, must be valid. The refresh token is
revoked; repeating the call is harmless.

Response:
  - 204: Revoked
  - 401: Invalid bearer token
*/
func (handler *AuthHandler) logout(writer http.ResponseWriter, request *http.Request) {
	if bearer, ok := requestutil.BearerToken(request); ok {
		if _, err := handler.service.Authenticate(bearer); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	var input refreshRequest
	if err := requestutil.DecodeJSON(writer, request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.service.Logout(request.Context(), input.RefreshToken)
	respond.NoContent(writer)
}
