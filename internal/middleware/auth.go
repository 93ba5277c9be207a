package middleware

import (
	"net/http"
	"strings"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/session"

	"github.com/gin-gonic/gin"
)

const (
	ctxToken   = "token"
	ctxSession = "session"
)

type AuthMiddleware struct {
	Store session.Store
}

func NewAuthMiddleware(store session.Store) *AuthMiddleware {
	return &AuthMiddleware{Store: store}
}

// RequireAuth resolves the bearer token to a stored session, touches
// the sliding activity window, and attaches both to the request
// context.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
			return
		}

		sess, err := a.Store.Get(c.Request.Context(), token)
		if err != nil {
			logger.Error("session lookup failed", map[string]any{"error": err.Error()})
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if sess == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		// Slide the inactivity window without rewriting the record;
		// detached logins merge into it concurrently and a stale
		// rewrite here would erase their result. Best-effort.
		if err := a.Store.Touch(c.Request.Context(), token); err != nil {
			logger.Warn("session activity refresh failed", map[string]any{"error": err.Error()})
		}

		c.Set(ctxToken, token)
		c.Set(ctxSession, sess)
		c.Next()
	}
}

// BearerToken strips the Authorization header down to its token.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

// TokenFrom returns the authenticated session token for a request.
func TokenFrom(c *gin.Context) string {
	return c.GetString(ctxToken)
}

// SessionFrom returns the authenticated session for a request.
func SessionFrom(c *gin.Context) *session.Session {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	s, _ := v.(*session.Session)
	return s
}
