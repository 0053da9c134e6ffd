// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package requestutil_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/evently/internal/platform/request"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/platform/validate"
)

/*
TestDecodeJSON verifies body decoding and the invalid JSON cases.
*/
func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"email":"ada@evently.test"}`, false},
		{"trailing newline", "{\"email\":\"ada@evently.test\"}\n", false},
		{"empty", ``, true},
		{"malformed", `{"email":`, true},
		{"trailing data", `{"email":"a"}{"email":"b"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var target struct {
				Email string `json:"email"`
			}
			request := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			err := requestutil.DecodeJSON(httptest.NewRecorder(), request, &target)
			if tt.wantErr {
				assert.ErrorIs(t, err, validate.ErrInvalidJSON)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, target.Email)
		})
	}
}

/*
TestBearerToken verifies extraction of the Authorization bearer token.
*/
func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		token  string
		found  bool
	}{
		{"missing", "", "", false},
		{"basic scheme", "Basic abc", "", false},
		{"bare token", "abc.def", "", false},
		{"lowercase scheme", "bearer abc.def", "", false},
		{"empty bearer", "Bearer ", "", false},
		{"bearer", "Bearer abc.def", "abc.def", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}

			token, found := requestutil.BearerToken(request)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.token, token)

			_, err := requestutil.RequiredBearerToken(request)
			if tt.found {
				assert.NoError(t, err)
			} else {
				var appErr *apperr.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
			}
		})
	}
}

/*
TestPrincipal verifies that the snapshot stored by the middleware is returned.
*/
func TestPrincipal(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, requestutil.Principal(request))

	principal := &sec.Principal{ID: "u-1", Role: sec.RoleAttendee}
	request = request.WithContext(ctxutil.WithPrincipal(request.Context(), principal))
	assert.Equal(t, principal, requestutil.Principal(request))
}
