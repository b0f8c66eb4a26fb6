package utils

import (
	"errors"
	"fmt"
	"os"
	"time"

	"parkbook/src/config"
	"parkbook/src/types"

	"github.com/golang-jwt/jwt/v4"
)

func IsProd() bool {
	return config.API_ENV == string(types.Production)
}

// WithSuffix namespaces a queue or topic name per environment so local,
// test and production traffic never share a queue.
func WithSuffix(name string) string {
	return fmt.Sprintf("%s_%s", name, config.API_ENV)
}

func jwtSecret() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// GenerateToken signs a session token for the user. The subject carries the
// numeric user id the auth middleware resolves on every request.
func GenerateToken(username string, userId uint, role string, permissions []string) (string, error) {
	claims := types.Claims{
		Username:    username,
		Role:        role,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "parkbook",
			Subject:   fmt.Sprint(userId),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString(jwtSecret())
}

func ParseToken(tokenString string) (*types.Claims, error) {
	claims := &types.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
