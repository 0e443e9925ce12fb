// Package auth issues and verifies the signed access tokens carried on API
// requests. Refresh tokens are opaque; only their sha256 hash is stored.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries only identity. Roles are resolved per resource through the
// group graph on every request, so they are deliberately not baked into the
// token.
type Claims struct {
	Sub  string
	Name string
	JTI  string
	Exp  time.Time
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IssueToken signs an HS256 JWT for the claims.
func IssueToken(secret []byte, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  claims.Sub,
		"name": claims.Name,
		"jti":  claims.JTI,
		"exp":  claims.Exp.Unix(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies the signature and expiry and returns the claims.
func ParseToken(secret []byte, tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		Sub:  stringClaim(mapClaims, "sub"),
		Name: stringClaim(mapClaims, "name"),
		JTI:  stringClaim(mapClaims, "jti"),
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.Exp = exp.Time
	}
	if claims.Sub == "" || claims.JTI == "" || claims.Exp.IsZero() {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// HashToken returns the hex sha256 of a refresh token for storage lookups.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}
