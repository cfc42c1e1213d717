package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nandu/api/internal/ids"
)

const (
	useSession = "session"
	useReset   = "reset"
)

var ErrInvalidToken = errors.New("invalid token")

type tokenClaims struct {
	UserID string `json:"uid"`
	Use    string `json:"use"`
	jwt.RegisteredClaims
}

// GenerateSessionToken signs a bearer token for the given subject. A ttl of
// exactly zero produces a token without an expiry claim; callers that want an
// eternal token must ask for one explicitly. Any other ttl sets the expiry,
// so a negative ttl yields a token that is already expired.
func GenerateSessionToken(secret string, userID string, ttl time.Duration) (string, error) {
	return signToken(secret, userID, useSession, ttl)
}

// GenerateResetToken signs a single-use password-reset credential. It carries
// a distinct use claim so a leaked reset token can never pass as a session.
func GenerateResetToken(secret string, userID string, ttl time.Duration) (string, error) {
	return signToken(secret, userID, useReset, ttl)
}

func signToken(secret string, userID string, use string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: userID,
		Use:    use,
		RegisteredClaims: jwt.RegisteredClaims{
			// The random jti makes every issuance unique: reissuing a reset
			// token within the same second still invalidates the previous one.
			ID:       ids.New(),
			IssuedAt: jwt.NewNumericDate(now),
			Subject:  userID,
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken verifies the signature and expiry and returns the subject
// id. Every failure mode (bad signature, malformed token, expired, wrong use)
// collapses into ErrInvalidToken; the transport layer turns that into a 401.
func ParseSessionToken(tokenStr string, secret string) (string, error) {
	return parseToken(tokenStr, secret, useSession)
}

func parseToken(tokenStr string, secret string, use string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.UserID == "" || claims.Use != use {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// VerifyResetToken checks a presented reset token against the stored one.
// The tokens must be byte-equal and the presented token must independently
// carry a valid signature; a stored value that was never validly signed is
// rejected even when it matches.
func VerifyResetToken(presented string, stored string, secret string) (string, bool) {
	if presented == "" || stored == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) != 1 {
		return "", false
	}
	userID, err := parseToken(presented, secret, useReset)
	if err != nil {
		return "", false
	}
	return userID, true
}
