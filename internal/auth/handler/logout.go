package handler

import (
	"net/http"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/middleware"

	"github.com/gin-gonic/gin"
)

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout deletes the session (which also releases any live automation
// contexts) and, when the caller sends one, the refresh credential.
// It is idempotent.
func (h *Handler) Logout(c *gin.Context) {
	token := middleware.TokenFrom(c)
	if token != "" {
		if err := h.sessions.Delete(c.Request.Context(), token); err != nil {
			logger.Warn("session delete failed", map[string]any{"error": err.Error()})
		}
	}

	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		if err := h.refresh.Delete(c.Request.Context(), req.RefreshToken); err != nil {
			logger.Warn("refresh credential delete failed", map[string]any{"error": err.Error()})
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
