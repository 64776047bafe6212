// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package auth mints and verifies the bearer tokens that authorize API
// requests. A token's subject is the site name it was issued to; its role
// claim distinguishes an admin (may mint tokens, write any site) from a
// client (may only write its own site).
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/glidein/glidein-controller/internal/apierrors"
)

// Role is the principal's authorization level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Claims is the JWT payload minted and verified by Provider.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Provider mints and verifies bearer tokens signed with a shared secret.
// A Provider constructed with an empty secret has auth disabled: Verify
// always succeeds with an admin principal, matching the upstream
// collector's behavior of running open when no secret is configured.
type Provider struct {
	secret     []byte
	expiration time.Duration
}

// NewProvider builds a Provider. expiration <= 0 means minted tokens never
// expire.
func NewProvider(secret string, expiration time.Duration) *Provider {
	return &Provider{secret: []byte(secret), expiration: expiration}
}

// Enabled reports whether this Provider enforces authentication.
func (p *Provider) Enabled() bool {
	return len(p.secret) > 0
}

// Mint issues a signed token for subject with the given role.
func (p *Provider) Mint(subject string, role Role) (string, error) {
	if !p.Enabled() {
		return "", apierrors.BadInput("cannot mint a token: no auth secret configured")
	}

	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if p.expiration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(p.expiration))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates raw, returning its claims. When auth is
// disabled, it returns an always-admin principal regardless of raw.
func (p *Provider) Verify(raw string) (*Claims, error) {
	if !p.Enabled() {
		return &Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: ""}}, nil
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, apierrors.Forbidden("invalid bearer token: %s", err)
	}
	if claims.Role != RoleAdmin && claims.Role != RoleClient {
		return nil, apierrors.Forbidden("invalid bearer token: unrecognized role %q", claims.Role)
	}
	return claims, nil
}

// AuthorizeWrite checks whether claims may write to site. Admins may write
// any site; clients may only write their own (subject == site).
func (c *Claims) AuthorizeWrite(site string) error {
	if c.Role == RoleAdmin {
		return nil
	}
	if c.Subject == site {
		return nil
	}
	return apierrors.Forbidden("client %q may not write site %q", c.Subject, site)
}
