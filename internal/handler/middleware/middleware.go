package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/identity"
	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"

	UserIDKey   = "userID"
	UserNameKey = "userName"
)

func AuthMiddleware(jwtSecret string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(authorizationHeader)
		if header == "" {
			log.Warn("auth middleware: auth header is empty")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "auth header is empty",
			})
			return
		}

		headerParts := strings.Split(header, " ")
		if len(headerParts) != 2 || headerParts[0] != "Bearer" {
			log.Warn("auth middleware: invalid auth header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid auth header format",
			})
			return
		}

		if len(headerParts[1]) == 0 {
			log.Warn("auth middleware: token is empty")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "token is empty",
			})
			return
		}

		principal, err := identity.ParseToken(jwtSecret, headerParts[1])
		if err != nil {
			log.Warn("auth middleware: failed to parse token", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}

		c.Set(UserIDKey, principal.UserID)
		c.Set(UserNameKey, principal.Name)
		c.Next()
	}
}
