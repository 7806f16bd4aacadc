package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClass distinguishes the two kinds of tokens the service issues.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

// Verification failures callers are expected to branch on.
var (
	ErrTokenMalformed   = errors.New("token is malformed")
	ErrSignatureInvalid = errors.New("token signature is invalid")
	ErrTokenExpired     = errors.New("token is expired")
)

// Claims are the JWT claims carried by both token classes.
type Claims struct {
	Class TokenClass `json:"class"`
	jwt.RegisteredClaims
}

// JWTManager mints and verifies HMAC-signed tokens. It is stateless: the
// signing secret and per-class TTLs are fixed at construction.
type JWTManager struct {
	secret        []byte
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewJWTManager creates a new JWT manager with the given secret and expiry durations.
func NewJWTManager(secret string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		issuer:        "videotube-user-service",
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// AccessExpiry returns the configured access-token TTL.
func (m *JWTManager) AccessExpiry() time.Duration { return m.accessExpiry }

// RefreshExpiry returns the configured refresh-token TTL.
func (m *JWTManager) RefreshExpiry() time.Duration { return m.refreshExpiry }

// Mint produces a signed token for the subject with the given class and TTL.
func (m *JWTManager) Mint(subjectID string, class TokenClass, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", class, err)
	}

	return signed, nil
}

// MintAccessToken creates a signed access token with the configured TTL.
func (m *JWTManager) MintAccessToken(subjectID string) (string, error) {
	return m.Mint(subjectID, ClassAccess, m.accessExpiry)
}

// MintRefreshToken creates a signed refresh token with the configured TTL.
func (m *JWTManager) MintRefreshToken(subjectID string) (string, error) {
	return m.Mint(subjectID, ClassRefresh, m.refreshExpiry)
}

// Verify parses and validates a token of either class, returning its claims.
// Failures are reported as one of ErrTokenMalformed, ErrSignatureInvalid, or
// ErrTokenExpired; all three are ordinary outcomes, not internal faults.
func (m *JWTManager) Verify(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Class != ClassAccess && claims.Class != ClassRefresh {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// VerifyClass is like Verify but additionally requires the token to carry the
// expected class. A valid token of the wrong class fails as malformed so a
// refresh token can never pass an access-token check or vice versa.
func (m *JWTManager) VerifyClass(raw string, class TokenClass) (*Claims, error) {
	claims, err := m.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Class != class {
		return nil, fmt.Errorf("%w: wrong token class %q", ErrTokenMalformed, claims.Class)
	}
	return claims, nil
}

// classifyParseError maps golang-jwt parse failures onto the package's
// sentinel errors, keeping the original error attached for logs.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
