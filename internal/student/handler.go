// Package student proxies the portal's student-info JSON API, read
// through the budgeted SWR cache so repeated dashboard loads do not
// hammer the metered store or the portal.
package student

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"mybk-gateway/internal/cache"
	"mybk-gateway/internal/config"
	"mybk-gateway/internal/logger"
	"mybk-gateway/internal/middleware"
	"mybk-gateway/internal/session"

	"github.com/gin-gonic/gin"
)

// Gateway is the slice of the upstream client this package needs.
type Gateway interface {
	FetchJSON(ctx context.Context, rawURL, cookie, bearer string) (json.RawMessage, error)
	StudentAPI() string
}

type Handler struct {
	gateway Gateway
	cache   *cache.Cache

	ttl   time.Duration
	fresh time.Duration
}

func NewHandler(gateway Gateway, c *cache.Cache, cfg config.Config) *Handler {
	return &Handler{
		gateway: gateway,
		cache:   c,
		ttl:     cfg.CacheTTL,
		fresh:   cfg.CacheFreshWindow,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/student/info", h.info)
	r.GET("/student/schedule", h.schedule)
	r.GET("/student/exam-schedule", h.examSchedule)
}

// readThrough proxies one upstream URL through the cache under a
// subsystem-prefixed key.
func (h *Handler) readThrough(c *gin.Context, sess *session.Session, key, upstreamURL string) {
	payload, err := h.cache.ReadThrough(c.Request.Context(), key, h.ttl, h.fresh,
		func(ctx context.Context) (json.RawMessage, error) {
			return h.gateway.FetchJSON(ctx, upstreamURL, sess.Cookie, sess.BearerToken)
		})
	if err != nil {
		logger.Error("student proxy failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

func (h *Handler) info(c *gin.Context) {
	sess := middleware.SessionFrom(c)

	key := "student:info:" + sess.Username
	u := h.gateway.StudentAPI() + "/v1/student/get-student-info?null"
	h.readThrough(c, sess, key, u)
}

func (h *Handler) schedule(c *gin.Context) {
	sess := middleware.SessionFrom(c)

	studentID := c.Query("studentId")
	semester := c.Query("semesterYear")
	if studentID == "" || semester == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "studentId and semesterYear required"})
		return
	}

	key := fmt.Sprintf("student:schedule:%s:%s:%s", sess.Username, studentID, semester)
	u := fmt.Sprintf("%s/v1/student/schedule?studentId=%s&semesterYear=%s&null",
		h.gateway.StudentAPI(), url.QueryEscape(studentID), url.QueryEscape(semester))
	h.readThrough(c, sess, key, u)
}

func (h *Handler) examSchedule(c *gin.Context) {
	sess := middleware.SessionFrom(c)

	studentID := c.Query("studentId")
	year := c.Query("namhoc")
	term := c.Query("hocky")
	if studentID == "" || year == "" || term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "studentId, namhoc and hocky required"})
		return
	}

	key := fmt.Sprintf("student:exam:%s:%s:%s:%s", sess.Username, studentID, year, term)
	u := fmt.Sprintf("%s/thoi-khoa-bieu/lich-thi-sinh-vien/v1?masv=%s&namhoc=%s&hocky=%s&null",
		h.gateway.StudentAPI(), url.QueryEscape(studentID), url.QueryEscape(year), url.QueryEscape(term))
	h.readThrough(c, sess, key, u)
}
