// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request reads inputs from incoming HTTP requests: JSON bodies,
bearer tokens and the principal snapshot taken by the middleware chain.

Every failure is returned as an [apperr.AppError] so handlers can pass it to
respond.Error unchanged.
*/
package requestutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/constants"
	"github.com/taibuivan/evently/internal/platform/ctxutil"
	"github.com/taibuivan/evently/internal/platform/sec"
	"github.com/taibuivan/evently/internal/platform/validate"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

/*
DecodeJSON decodes the request body into target.

The body is capped at one megabyte. An empty body, malformed JSON or trailing
data all map to validate.ErrInvalidJSON.
*/
func DecodeJSON(writer http.ResponseWriter, request *http.Request, target any) error {
	request.Body = http.MaxBytesReader(writer, request.Body, maxBodyBytes)
	decoder := json.NewDecoder(request.Body)

	if err := decoder.Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return validate.ErrInvalidJSON
	}
	return nil
}

// BearerToken returns the token of an "Authorization: Bearer ..." header and
// whether one was present.
func BearerToken(request *http.Request) (string, bool) {
	header := request.Header.Get(constants.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, constants.BearerPrefix)
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequiredBearerToken is [BearerToken] answering 401 when the header is missing.
func RequiredBearerToken(request *http.Request) (string, error) {
	token, ok := BearerToken(request)
	if !ok {
		return "", apperr.Unauthorized("Bearer token is required")
	}
	return token, nil
}

// Principal returns the principal snapshot of the request, or nil when anonymous.
func Principal(request *http.Request) *sec.Principal {
	return ctxutil.GetPrincipal(request.Context())
}
