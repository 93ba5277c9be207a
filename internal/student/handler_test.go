package student

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mybk-gateway/internal/cache"
	"mybk-gateway/internal/config"
	"mybk-gateway/internal/redis"
	"mybk-gateway/internal/session"
)

type fakeGateway struct {
	calls   atomic.Int32
	lastURL string
	payload string
	err     error
}

func (g *fakeGateway) FetchJSON(_ context.Context, rawURL, cookie, bearer string) (json.RawMessage, error) {
	g.calls.Add(1)
	g.lastURL = rawURL
	if g.err != nil {
		return nil, g.err
	}
	return json.RawMessage(g.payload), nil
}

func (g *fakeGateway) StudentAPI() string { return "http://portal.test/api" }

// memBackend gives the cache a place to write without redis.
type memBackend struct {
	data map[string][]byte
}

func (b *memBackend) Store(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.data[key] = append([]byte(nil), value...)
	return nil
}

func (b *memBackend) Fetch(_ context.Context, key string) ([]byte, error) {
	v, ok := b.data[key]
	if !ok {
		return nil, redis.ErrNotFound
	}
	return v, nil
}

func (b *memBackend) Remove(_ context.Context, key string) error {
	delete(b.data, key)
	return nil
}

func newRouter(g *fakeGateway, backend cache.Backend) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{CacheTTL: 4 * time.Hour, CacheFreshWindow: time.Minute}
	h := NewHandler(g, cache.New(backend, cache.NewBudget(1000, 0.8)), cfg)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("session", &session.Session{
			Username:    "2012345",
			Cookie:      "SESSION=abc",
			BearerToken: "Bearer tok",
		})
	})
	h.RegisterRoutes(r)
	return r
}

func do(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestInfoProxiesThroughCache(t *testing.T) {
	g := &fakeGateway{payload: `{"studentId":"2012345"}`}
	r := newRouter(g, nil)

	w := do(r, "/student/info")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2012345")
	assert.Equal(t, "http://portal.test/api/v1/student/get-student-info?null", g.lastURL)
}

func TestInfoCachedSecondRead(t *testing.T) {
	g := &fakeGateway{payload: `{"studentId":"2012345"}`}
	backend := &memBackend{data: make(map[string][]byte)}
	r := newRouter(g, backend)

	require.Equal(t, http.StatusOK, do(r, "/student/info").Code)
	w := do(r, "/student/info")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, int32(1), g.calls.Load())
	assert.Contains(t, w.Body.String(), cache.StatusFresh)
}

func TestScheduleRequiresParams(t *testing.T) {
	g := &fakeGateway{payload: `{}`}
	r := newRouter(g, nil)

	assert.Equal(t, http.StatusBadRequest, do(r, "/student/schedule").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, "/student/schedule?studentId=2012345").Code)

	w := do(r, "/student/schedule?studentId=2012345&semesterYear=20261")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, g.lastURL, "studentId=2012345")
	assert.Contains(t, g.lastURL, "semesterYear=20261")
}

func TestScheduleCacheKeyedByStudentID(t *testing.T) {
	g := &fakeGateway{payload: `{"owner":"first"}`}
	backend := &memBackend{data: make(map[string][]byte)}
	r := newRouter(g, backend)

	w := do(r, "/student/schedule?studentId=2012345&semesterYear=20261")
	require.Equal(t, http.StatusOK, w.Code)

	// A different student id must not be served the first student's
	// cached schedule.
	g.payload = `{"owner":"second"}`
	w = do(r, "/student/schedule?studentId=2099999&semesterYear=20261")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, int32(2), g.calls.Load())
	assert.Contains(t, w.Body.String(), "second")
	assert.NotContains(t, w.Body.String(), "first")
}

func TestExamScheduleCacheKeyedByStudentID(t *testing.T) {
	g := &fakeGateway{payload: `{"owner":"first"}`}
	backend := &memBackend{data: make(map[string][]byte)}
	r := newRouter(g, backend)

	require.Equal(t, http.StatusOK, do(r, "/student/exam-schedule?studentId=2012345&namhoc=2026&hocky=1").Code)

	g.payload = `{"owner":"second"}`
	w := do(r, "/student/exam-schedule?studentId=2099999&namhoc=2026&hocky=1")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, int32(2), g.calls.Load())
	assert.Contains(t, w.Body.String(), "second")
}

func TestExamScheduleRequiresParams(t *testing.T) {
	g := &fakeGateway{payload: `{}`}
	r := newRouter(g, nil)

	assert.Equal(t, http.StatusBadRequest, do(r, "/student/exam-schedule?studentId=2012345&namhoc=2026").Code)

	w := do(r, "/student/exam-schedule?studentId=2012345&namhoc=2026&hocky=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, g.lastURL, "lich-thi-sinh-vien")
	assert.Contains(t, g.lastURL, "masv=2012345")
}

func TestUpstreamFailureIs502(t *testing.T) {
	g := &fakeGateway{err: errors.New("portal down")}
	r := newRouter(g, nil)

	assert.Equal(t, http.StatusBadGateway, do(r, "/student/info").Code)
}
