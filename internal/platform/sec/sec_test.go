// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/evently/internal/platform/sec"
)

func newIssuer(t *testing.T) *sec.TokenIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return sec.NewTokenIssuer(key, "evently.test")
}

/*
TestTokenInspector_Verified verifies that signed claims round-trip through a keyed inspector.
*/
func TestTokenInspector_Verified(t *testing.T) {
	issuer := newIssuer(t)
	token, expiresAt, err := issuer.GenerateAccessToken("u-1", "Ada", sec.RoleOrganizer, time.Minute)
	require.NoError(t, err)

	inspector := sec.NewTokenInspector(issuer.PublicKey())

	claims, err := inspector.Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "organizer", claims.Role)
	assert.Equal(t, expiresAt.Unix(), claims.ExpiresAt.Unix())
}

/*
TestTokenInspector_WrongKey verifies that a foreign signature is rejected.
*/
func TestTokenInspector_WrongKey(t *testing.T) {
	token, _, err := newIssuer(t).GenerateAccessToken("u-1", "", sec.RoleAttendee, time.Minute)
	require.NoError(t, err)

	inspector := sec.NewTokenInspector(newIssuer(t).PublicKey())
	_, err = inspector.Inspect(token)
	assert.Error(t, err)
}

/*
TestTokenInspector_Unverified verifies that claims are decoded without a key.
*/
func TestTokenInspector_Unverified(t *testing.T) {
	token, _, err := newIssuer(t).GenerateAccessToken("u-2", "", sec.RoleAttendee, time.Minute)
	require.NoError(t, err)

	inspector := sec.NewTokenInspector(nil)
	claims, err := inspector.Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "attendee", claims.Role)

	_, err = inspector.Inspect("not-a-jwt")
	assert.Error(t, err)
}

/*
TestPrincipal_State covers the nil-safe helpers of the principal.
*/
func TestPrincipal_State(t *testing.T) {
	var anonymous *sec.Principal
	assert.False(t, anonymous.Authenticated())
	assert.True(t, anonymous.Expired(time.Now()))
	assert.Nil(t, anonymous.Clone())

	now := time.Now()
	p := &sec.Principal{ID: "u-1", Role: sec.RoleAttendee, ExpiresAt: now.Add(time.Minute)}
	assert.True(t, p.Authenticated())
	assert.False(t, p.Expired(now))
	assert.True(t, p.Expired(now.Add(time.Minute)))

	clone := p.Clone()
	clone.Role = sec.RoleOrganizer
	assert.Equal(t, sec.RoleAttendee, p.Role)

	guest := &sec.Principal{ID: "g", Role: sec.RoleUnauthenticated}
	assert.False(t, guest.Authenticated())
}

/*
TestPassword_Hash verifies the bcrypt round trip used by sandbox accounts.
*/
func TestPassword_Hash(t *testing.T) {
	hash, err := sec.HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, sec.CheckPasswordHash("correct horse", hash))
	assert.False(t, sec.CheckPasswordHash("wrong horse", hash))
}

/*
TestSecureToken verifies token entropy length and stable hashing.
*/
func TestSecureToken(t *testing.T) {
	token, err := sec.GenerateSecureToken(16)
	require.NoError(t, err)
	assert.Len(t, token, 32)
	assert.Equal(t, sec.HashToken(token), sec.HashToken(token))
	assert.NotEqual(t, token, sec.HashToken(token))
}
