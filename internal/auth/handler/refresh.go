package handler

import (
	"errors"
	"net/http"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/session"
	"mybk-gateway/internal/upstream"

	"github.com/gin-gonic/gin"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh re-authenticates against CAS with a stored credential. Each
// consumption is one attempt: success rewrites the credential with a
// full sliding window, failure deletes it.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refreshToken required"})
		return
	}

	cred, err := h.refresh.Consume(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrRefreshExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "refresh token expired",
				"code":  "REFRESH_TOKEN_EXPIRED",
			})
			return
		}
		logger.Error("refresh lookup failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	result, err := h.gateway.Login(c.Request.Context(), cred.Username, cred.Password)
	if err != nil {
		// The credential was consumed by a failed attempt; drop it so
		// it cannot be replayed.
		if delErr := h.refresh.Delete(c.Request.Context(), req.RefreshToken); delErr != nil {
			logger.Warn("failed to delete consumed refresh credential", map[string]any{"error": delErr.Error()})
		}
		if errors.Is(err, upstream.ErrCredentialRejected) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "stored credentials no longer valid",
				"code":  "REFRESH_AUTH_FAILED",
			})
			return
		}
		logger.Error("refresh login failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
		return
	}

	token, err := h.establishSession(c.Request.Context(), cred.Username, cred.Password, result)
	if err != nil {
		logger.Error("failed to establish session", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	// Successful consumption slides the window forward.
	if err := h.refresh.Renew(c.Request.Context(), req.RefreshToken, cred); err != nil {
		logger.Warn("failed to renew refresh credential", map[string]any{"error": err.Error()})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}
