// Package auth issues and checks operator tokens. The token subject is the
// operator reference recorded as a session's creator.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "ballotkeeper"

// Claims are the registered JWT claims plus the operator's display name.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// GenerateToken signs an HS256 token for operator that expires after
// validity.
func GenerateToken(operator, name string, secretKey []byte, validity time.Duration) (string, error) {
	if operator == "" {
		return "", fmt.Errorf("%w: operator is required", common.ErrValidation)
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Name: name,
	})
	return token.SignedString(secretKey)
}

// ParseToken checks the signature and expiry and returns the claims. Every
// failure is reported as common.ErrInvalidToken, expiry as ErrTokenExpired.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return secretKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// GetOperatorFromToken returns the subject of a valid token.
func GetOperatorFromToken(tokenString string, secretKey []byte) (string, error) {
	claims, err := ParseToken(tokenString, secretKey)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
