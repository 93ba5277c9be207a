package handler

import (
	"errors"
	"net/http"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/upstream"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	logger.Info("login request", map[string]any{
		"user": logger.MaskStudentID(req.Username),
	})

	result, err := h.gateway.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.loginError(c, err)
		return
	}

	token, err := h.establishSession(c.Request.Context(), req.Username, req.Password, result)
	if err != nil {
		logger.Error("failed to establish session", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	resp := gin.H{
		"success": true,
		"token":   token,
	}
	if result.Profile != nil {
		resp["user"] = result.Profile
	}

	if req.RememberMe {
		refreshToken, err := h.refresh.Create(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			// The login itself succeeded; remember-me is best effort.
			logger.Warn("failed to create refresh credential", map[string]any{"error": err.Error()})
		} else {
			resp["refreshToken"] = refreshToken
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) loginError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, upstream.ErrCredentialRejected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, upstream.ErrFormUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "sso login form unavailable"})
	default:
		logger.Error("login failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
	}
}
