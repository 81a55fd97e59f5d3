package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by token verification.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// OperatorClaims are the platform-issued bearer token claims this subsystem
// accepts. Token issuance is the platform identity service's job; here we
// only verify and extract the operator id.
type OperatorClaims struct {
	jwt.RegisteredClaims
	OperatorID string `json:"operator_id"`
}

// TokenVerifier validates operator bearer tokens signed with the shared
// platform secret.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier bound to the platform JWT secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// OperatorID verifies a raw bearer token and returns the operator id.
func (v *TokenVerifier) OperatorID(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &OperatorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	operatorID := claims.OperatorID
	if operatorID == "" {
		operatorID = claims.Subject
	}
	if operatorID == "" {
		return "", ErrInvalidToken
	}
	return operatorID, nil
}
