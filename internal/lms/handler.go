// Package lms exposes the learning-management message API. The LMS
// sub-record of a session is populated lazily the first time any of
// these endpoints is used, riding the live SSO automation context.
package lms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/middleware"
	"mybk-gateway/internal/session"
	"mybk-gateway/internal/upstream"

	"github.com/gin-gonic/gin"
)

// Gateway is the slice of the upstream client the messaging layer
// needs.
type Gateway interface {
	LoginLMS(ctx context.Context, actx *upstream.Context) (*session.LMSSession, error)
	Conversations(ctx context.Context, lms *session.LMSSession, limit, offset int) (json.RawMessage, error)
	ConversationMessages(ctx context.Context, lms *session.LMSSession, conversationID, limit, offset int) (json.RawMessage, error)
	UnreadCount(ctx context.Context, lms *session.LMSSession) (json.RawMessage, error)
}

type Handler struct {
	gateway  Gateway
	sessions session.Store
	contexts *upstream.ContextRegistry
}

func NewHandler(gateway Gateway, sessions session.Store, contexts *upstream.ContextRegistry) *Handler {
	return &Handler{
		gateway:  gateway,
		sessions: sessions,
		contexts: contexts,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/lms/conversations", h.conversations)
	r.GET("/lms/conversations/:id/messages", h.messages)
	r.GET("/lms/unread-count", h.unreadCount)
}

// activate returns the session's LMS sub-record, establishing it on
// first use. Activation needs the live SSO context; after a process
// restart there is none and the caller must log in again.
func (h *Handler) activate(c *gin.Context) (*session.LMSSession, bool) {
	sess := middleware.SessionFrom(c)
	if sess.LMS != nil {
		return sess.LMS, true
	}

	token := middleware.TokenFrom(c)
	actx, ok := h.contexts.Get(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "sso context not available, login again",
			"code":  "LMS_ACTIVATION_REQUIRED",
		})
		return nil, false
	}

	lmsSess, err := h.gateway.LoginLMS(c.Request.Context(), actx)
	if err != nil {
		if errors.Is(err, upstream.ErrSSOExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "sso session expired, login again"})
			return nil, false
		}
		logger.Error("lms activation failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "lms unavailable"})
		return nil, false
	}

	// Merge into the freshest stored record, not the copy read at the
	// start of the request; the detached registration login may have
	// written its cookie in the meantime.
	stored, err := h.sessions.Get(c.Request.Context(), token)
	if err == nil && stored != nil {
		stored.LMS = lmsSess
		if err := h.sessions.Save(c.Request.Context(), token, stored); err != nil {
			logger.Warn("failed to persist lms sub-record", map[string]any{"error": err.Error()})
		}
	}

	sess.LMS = lmsSess
	return lmsSess, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (h *Handler) conversations(c *gin.Context) {
	lmsSess, ok := h.activate(c)
	if !ok {
		return
	}

	data, err := h.gateway.Conversations(c.Request.Context(), lmsSess,
		intQuery(c, "limit", 51), intQuery(c, "offset", 0))
	if err != nil {
		logger.Error("lms conversations failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "lms unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (h *Handler) messages(c *gin.Context) {
	convID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	lmsSess, ok := h.activate(c)
	if !ok {
		return
	}

	data, err := h.gateway.ConversationMessages(c.Request.Context(), lmsSess, convID,
		intQuery(c, "limit", 101), intQuery(c, "offset", 0))
	if err != nil {
		logger.Error("lms messages failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "lms unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (h *Handler) unreadCount(c *gin.Context) {
	lmsSess, ok := h.activate(c)
	if !ok {
		return
	}

	data, err := h.gateway.UnreadCount(c.Request.Context(), lmsSess)
	if err != nil {
		logger.Error("lms unread count failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "lms unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
