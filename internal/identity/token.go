package identity

import (
	"errors"
	"fmt"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/session"
	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenPayload = errors.New("invalid token payload")
)

// ParseToken verifies an HS256 access token and extracts the sub and name claims.
func ParseToken(secret, tokenString string) (session.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return session.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return session.Principal{}, ErrInvalidToken
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return session.Principal{}, ErrTokenPayload
	}
	name, ok := claims["name"].(string)
	if !ok {
		return session.Principal{}, ErrTokenPayload
	}

	return session.Principal{UserID: userID, Name: name}, nil
}
