// Package jwtauth implements HS256 token issuance and verification for the
// `{id, table, iat, exp}` claim set.
package jwtauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultSessionTimeout is the default `exp - iat` for non-admin tables.
	DefaultSessionTimeout = 86400 * time.Second
	// DefaultAdminSessionTimeout is the default `exp - iat` for the
	// `_admins` table.
	DefaultAdminSessionTimeout = 3600 * time.Second

	adminsTable = "_admins"
)

// Claims is the typed claim set carried by every Mantis-issued token.
type Claims struct {
	ID    string `json:"id"`
	Table string `json:"table"`
	jwt.RegisteredClaims
}

// Issuer encodes and verifies tokens with a shared HS256 secret and
// configurable per-table session timeouts.
type Issuer struct {
	Secret              []byte
	SessionTimeout      time.Duration
	AdminSessionTimeout time.Duration
}

// NewIssuer builds an Issuer with the given secret and the default
// session timeouts, which callers may override from Settings.
func NewIssuer(secret string) *Issuer {
	return &Issuer{
		Secret:              []byte(secret),
		SessionTimeout:      DefaultSessionTimeout,
		AdminSessionTimeout: DefaultAdminSessionTimeout,
	}
}

func (i *Issuer) sessionTimeout(table string) time.Duration {
	if table == adminsTable {
		return i.AdminSessionTimeout
	}
	return i.SessionTimeout
}

// Issue mints a token for the (id, table) pair:
// exp = iat + sessionTimeout(table).
func (i *Issuer) Issue(id, table string) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:    id,
		Table: table,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.sessionTimeout(table))),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(i.Secret)
}

// VerifyResult is the outcome of verifying a token.
type VerifyResult struct {
	Verified bool
	ID       string
	Table    string
	Error    string
}

// Verify decodes and validates token, mapping every failure mode to a
// specific human-readable reason.
func (i *Issuer) Verify(tokenString string) VerifyResult {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.Secret, nil
	})

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return VerifyResult{Error: "token expired"}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return VerifyResult{Error: "token signature mismatch"}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return VerifyResult{Error: "token malformed"}
	case err != nil:
		return VerifyResult{Error: "token invalid: " + err.Error()}
	}

	if !token.Valid {
		return VerifyResult{Error: "token invalid"}
	}

	if claims.ID == "" {
		return VerifyResult{Error: "token missing id claim"}
	}

	if claims.Table == "" {
		return VerifyResult{Error: "token missing table claim"}
	}

	return VerifyResult{Verified: true, ID: claims.ID, Table: claims.Table}
}
