// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives, identity types and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing and
// Verification) from the session and routing logic. The web gateway only ever
// inspects access tokens through [TokenInspector]; signing via [TokenIssuer]
// is reserved for the sandbox that plays the Session API.
package sec

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// # Why custom claims?
//
// By embedding the UserID, Name, and Role directly inside the JWT, the
// gateway can cross-check the principal returned by the Session API without
// an extra round trip.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	UserID string `json:"uid"`
	Name   string `json:"nam,omitempty"`
	Role   string `json:"rol"`
}

// # Key Loading

// LoadPrivateKey reads an RSA private key in PEM format.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read private key from %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse private key: %w", err)
	}
	return key, nil
}

// LoadPublicKey reads an RSA public key in PEM format.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read public key from %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse public key: %w", err)
	}
	return key, nil
}

// # Issuing

// TokenIssuer signs access tokens using RS256.
type TokenIssuer struct {
	privateKey *rsa.PrivateKey
	issuer     string
}

// NewTokenIssuer creates a new TokenIssuer for the given key.
func NewTokenIssuer(privateKey *rsa.PrivateKey, issuer string) *TokenIssuer {
	return &TokenIssuer{privateKey: privateKey, issuer: issuer}
}

// PublicKey returns the verification half of the signing key.
func (issuer *TokenIssuer) PublicKey() *rsa.PublicKey {
	return &issuer.privateKey.PublicKey
}

// GenerateAccessToken creates a new JWT access token for a principal.
// It returns the signed token and its expiry.
func (issuer *TokenIssuer) GenerateAccessToken(userID, name string, role UserRole, timeToLive time.Duration) (string, time.Time, error) {
	currentTime := time.Now()
	expiresAt := currentTime.Add(timeToLive)
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
		Name:   name,
		Role:   string(role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(issuer.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: failed to sign token: %w", err)
	}

	// JWT NumericDate has second precision.
	return signedToken, expiresAt.Truncate(time.Second), nil
}

// # Inspection

// TokenInspector reads access token claims.
//
// With a public key it verifies the RS256 signature and expiry. Without one it
// only decodes the claims; the Session API remains the authority in that mode.
type TokenInspector struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewTokenInspector creates an inspector. publicKey may be nil.
func NewTokenInspector(publicKey *rsa.PublicKey) *TokenInspector {
	return &TokenInspector{
		publicKey: publicKey,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
	}
}

// Inspect decodes (and, when a key is configured, verifies) a JWT string.
func (inspector *TokenInspector) Inspect(tokenString string) (*AuthClaims, error) {
	claims := &AuthClaims{}

	if inspector.publicKey == nil {
		if _, _, err := inspector.parser.ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("auth: malformed token: %w", err)
		}
		return claims, nil
	}

	token, err := inspector.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return inspector.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	return claims, nil
}
