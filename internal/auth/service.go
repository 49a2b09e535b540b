package auth

import (
	"errors"
	"fmt"
	"time"

	"backend-quranicare/internal/shared/apperr"

	"github.com/golang-jwt/jwt/v5"
)

// Gateway verifies bearer tokens issued by the external auth provider and
// resolves them to a user id. Token issuance lives with the provider; Sign
// exists for tooling and tests that share the secret.
type Gateway struct {
	secret []byte
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func NewGateway(secret string) *Gateway {
	return &Gateway{secret: []byte(secret)}
}

// Authenticate returns the user id carried by token, or an error wrapping
// apperr.ErrUnauthenticated.
func (g *Gateway) Authenticate(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthenticated)
	}
	parsed, err := parseClaimsFn(token, &Claims{}, g.keyFunc, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("%w: token invalid", apperr.ErrUnauthenticated)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: token has no user_id", apperr.ErrUnauthenticated)
	}
	return claims.UserID, nil
}

func (g *Gateway) Sign(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id required")
	}
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

func (g *Gateway) keyFunc(_ *jwt.Token) (interface{}, error) {
	return g.secret, nil
}

var parseClaimsFn = jwt.ParseWithClaims
