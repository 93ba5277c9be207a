// Package handler exposes the /auth endpoints: credential login,
// refresh-token re-authentication, logout and session status.
package handler

import (
	"context"
	"time"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/middleware"
	"mybk-gateway/internal/session"
	"mybk-gateway/internal/upstream"

	"github.com/gin-gonic/gin"
)

// Gateway is the slice of the upstream automation the auth layer
// drives.
type Gateway interface {
	Login(ctx context.Context, username, password string) (*upstream.LoginResult, error)
	LoginRegistration(ctx context.Context, username, password string) (*upstream.RegistrationLogin, error)
}

type Handler struct {
	gateway  Gateway
	sessions session.Store
	refresh  *session.RefreshStore

	// contexts keeps the live SSO automation context per session for
	// cross-service hand-offs (LMS).
	contexts *upstream.ContextRegistry

	// backgroundTimeout bounds the detached registration login.
	backgroundTimeout time.Duration
}

func NewHandler(
	gateway Gateway,
	sessions session.Store,
	refresh *session.RefreshStore,
	contexts *upstream.ContextRegistry,
) *Handler {
	return &Handler{
		gateway:           gateway,
		sessions:          sessions,
		refresh:           refresh,
		contexts:          contexts,
		backgroundTimeout: 2 * time.Minute,
	}
}

func (h *Handler) RegisterRoutes(public gin.IRoutes, protected gin.IRoutes) {
	public.POST("/auth/login", h.Login)
	public.POST("/auth/refresh", h.Refresh)
	protected.POST("/auth/logout", h.Logout)
	protected.GET("/auth/status", h.Status)
}

// establishSession persists a fresh session for a completed CAS login
// and kicks off the background registration login. Returns the opaque
// token.
func (h *Handler) establishSession(ctx context.Context, username, password string, result *upstream.LoginResult) (string, error) {
	token, err := session.GenerateToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	sess := &session.Session{
		Username:     username,
		Cookie:       result.Cookie,
		BearerToken:  result.Bearer,
		Profile:      result.Profile,
		CreatedAt:    now,
		LastActivity: now,
	}

	if err := h.sessions.Save(ctx, token, sess); err != nil {
		return "", err
	}

	if result.Actx != nil {
		h.contexts.Put(token, result.Actx)
	}

	// Fire and forget: the registration sub-system login runs
	// detached and merges its cookie into the stored session once
	// available. Its failure never reaches this caller.
	go h.backgroundRegistrationLogin(token, username, password)

	return token, nil
}

func (h *Handler) backgroundRegistrationLogin(token, username, password string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.backgroundTimeout)
	defer cancel()

	result, err := h.gateway.LoginRegistration(ctx, username, password)
	if err != nil {
		logger.Info("background registration login failed", map[string]any{
			"user":  logger.MaskStudentID(username),
			"error": err.Error(),
		})
		return
	}

	sess, err := h.sessions.Get(ctx, token)
	if err != nil || sess == nil {
		// Session vanished while we were logging in; nothing to merge.
		return
	}

	sess.DKMHCookie = result.Cookie
	sess.DKMHLoggedIn = true
	if err := h.sessions.Save(ctx, token, sess); err != nil {
		logger.Error("failed to persist registration cookie", map[string]any{
			"error": err.Error(),
		})
		return
	}

	logger.Info("background registration login successful", map[string]any{
		"user": logger.MaskStudentID(username),
	})
}

// Status reports what the session can currently do.
func (h *Handler) Status(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		c.JSON(401, gin.H{"authenticated": false, "error": "not logged in"})
		return
	}
	c.JSON(200, gin.H{
		"authenticated": true,
		"dkmhLoggedIn":  sess.DKMHLoggedIn,
		"lmsActive":     sess.LMS != nil,
		"username":      sess.Username,
	})
}
