package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nandu/api/internal/config"
	"nandu/api/internal/models"
	"nandu/api/internal/security"
)

// SessionCookie is the cookie the session token is delivered in; clients may
// present the token either there or as a bearer header.
const SessionCookie = "t"

const (
	ContextUserKey = "current_user"
)

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// UserLoader resolves a validated subject id to its account record.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Auth validates the session token and attaches the resolved account to the
// request context. Every token failure collapses into a plain 401.
func Auth(cfg *config.AppConfig, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		userID, err := security.ParseSessionToken(tokenStr, cfg.Security.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_not_found"})
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}
