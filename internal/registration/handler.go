package registration

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/middleware"

	"github.com/gin-gonic/gin"
)

// FlexID accepts the portal's inconsistent typing: identifiers arrive
// as JSON strings or numbers depending on the page that produced them.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = FlexID(s)
	return nil
}

var _ json.Unmarshaler = (*FlexID)(nil)

type Handler struct {
	driver *Driver
}

func NewHandler(driver *Driver) *Handler {
	return &Handler{driver: driver}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/dkmh/periods", h.periods)
	r.POST("/dkmh/period-details", h.periodDetails)
	r.POST("/dkmh/search-courses", h.searchCourses)
	r.POST("/dkmh/class-groups", h.classGroups)
	r.POST("/dkmh/register", h.register)
	r.POST("/dkmh/registration-result", h.registrationResult)
	r.POST("/dkmh/cancel", h.cancel)
}

// dkmhCookie pulls the registration cookie off the authenticated
// session, rejecting callers whose background login has not finished
// (or failed).
func dkmhCookie(c *gin.Context) (string, bool) {
	sess := middleware.SessionFrom(c)
	if sess == nil || sess.DKMHCookie == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":        "registration session not found, login again",
			"dkmhLoggedIn": false,
		})
		return "", false
	}
	return sess.DKMHCookie, true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, ErrNoLiveContext) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "resolve period first",
			"code":  "PERIOD_NOT_RESOLVED",
		})
		return
	}
	logger.Error("registration operation failed", map[string]any{
		"op":    op,
		"error": err.Error(),
	})
	c.JSON(http.StatusBadGateway, gin.H{"error": "registration upstream unavailable"})
}

func (h *Handler) periods(c *gin.Context) {
	cookie, ok := dkmhCookie(c)
	if !ok {
		return
	}

	periods, err := h.driver.Periods(c.Request.Context(), cookie)
	if err != nil {
		h.fail(c, "periods", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": periods})
}

func (h *Handler) periodDetails(c *gin.Context) {
	var req struct {
		PeriodID FlexID `json:"periodId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodId required"})
		return
	}

	cookie, ok := dkmhCookie(c)
	if !ok {
		return
	}

	details, err := h.driver.ResolvePeriod(c.Request.Context(), middleware.TokenFrom(c), cookie, string(req.PeriodID))
	if err != nil {
		h.fail(c, "period-details", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": details})
}

func (h *Handler) searchCourses(c *gin.Context) {
	var req struct {
		PeriodID  FlexID `json:"periodId" binding:"required"`
		Query     string `json:"query" binding:"required"`
		ForceMode bool   `json:"forceMode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodId and query required"})
		return
	}

	results, err := h.driver.Search(c.Request.Context(), middleware.TokenFrom(c), string(req.PeriodID), req.Query, req.ForceMode)
	if err != nil {
		h.fail(c, "search-courses", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": results})
}

func (h *Handler) classGroups(c *gin.Context) {
	var req struct {
		PeriodID FlexID `json:"periodId" binding:"required"`
		MonHocID FlexID `json:"monHocId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodId and monHocId required"})
		return
	}

	groups, err := h.driver.ClassGroups(c.Request.Context(), middleware.TokenFrom(c), string(req.PeriodID), string(req.MonHocID))
	if err != nil {
		h.fail(c, "class-groups", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": groups})
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		PeriodID  FlexID `json:"periodId" binding:"required"`
		NLMHID    FlexID `json:"nlmhId" binding:"required"`
		MonHocID  FlexID `json:"monHocId"`
		ForceMode bool   `json:"forceMode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodId and nlmhId required"})
		return
	}

	outcome, err := h.driver.Register(
		c.Request.Context(),
		middleware.TokenFrom(c),
		string(req.PeriodID),
		string(req.NLMHID),
		string(req.MonHocID),
		req.ForceMode,
	)
	if err != nil {
		h.fail(c, "register", err)
		return
	}

	if outcome.Success {
		msg := outcome.Message
		if msg == "" {
			msg = "Sent"
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "forceMode": req.ForceMode})
		return
	}

	msg := outcome.Message
	if msg == "" {
		msg = "Failed"
	}
	c.JSON(http.StatusOK, gin.H{"success": false, "error": msg, "code": outcome.Code})
}

func (h *Handler) registrationResult(c *gin.Context) {
	var req struct {
		PeriodID FlexID `json:"periodId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodId required"})
		return
	}

	result, err := h.driver.Result(c.Request.Context(), middleware.TokenFrom(c), string(req.PeriodID))
	if err != nil {
		h.fail(c, "registration-result", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func (h *Handler) cancel(c *gin.Context) {
	var req struct {
		PeriodID FlexID `json:"periodId" binding:"required"`
		KetquaID FlexID `json:"ketquaId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "periodId and ketquaId required"})
		return
	}

	if err := h.driver.Cancel(c.Request.Context(), middleware.TokenFrom(c), string(req.PeriodID), string(req.KetquaID)); err != nil {
		h.fail(c, "cancel", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ketquaId": req.KetquaID})
}
