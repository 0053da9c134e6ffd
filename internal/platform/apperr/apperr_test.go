// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/evently/internal/platform/apperr"
)

/*
TestAppError_Taxonomy verifies the status and code of each session/channel error kind.
*/
func TestAppError_Taxonomy(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name   string
		err    *apperr.AppError
		code   string
		status int
	}{
		{"authentication", apperr.AuthenticationFailed("bad credentials"), apperr.CodeAuthenticationFailed, http.StatusUnauthorized},
		{"session_expired", apperr.SessionExpired(cause), apperr.CodeSessionExpired, http.StatusUnauthorized},
		{"network", apperr.Network(cause), apperr.CodeNetwork, http.StatusBadGateway},
		{"channel_unavailable", apperr.ChannelUnavailable(cause), apperr.CodeChannelUnavailable, http.StatusServiceUnavailable},
		{"forbidden", apperr.Forbidden("nope"), apperr.CodeForbidden, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

/*
TestAppError_CauseChain verifies that wrapped AppErrors remain discoverable.
*/
func TestAppError_CauseChain(t *testing.T) {
	cause := errors.New("upstream 503")
	wrapped := fmt.Errorf("session_login_failed: %w", apperr.Network(cause))

	require.True(t, apperr.IsAppError(wrapped))
	assert.True(t, apperr.HasCode(wrapped, apperr.CodeNetwork))
	assert.False(t, apperr.HasCode(wrapped, apperr.CodeSessionExpired))
	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, apperr.As(cause))
}
