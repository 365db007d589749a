package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2hgit/p2h_api/internal/config"
	"github.com/p2hgit/p2h_api/internal/utils"
)

type stubAdminStatus struct {
	active map[int]bool
	err    error
}

func (s *stubAdminStatus) IsAdminActive(_ context.Context, id int) (bool, error) {
	return s.active[id], s.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWTRouter(checker AdminStatusChecker) *gin.Engine {
	r := gin.New()
	r.GET("/admin", NewJWTMiddleware(checker).Handle(), func(c *gin.Context) {
		c.String(http.StatusOK, "%d", c.GetInt("admin_id"))
	})
	return r
}

func doRequest(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	utils.SetJWTSecret("test-secret")
	token, err := utils.GenerateJWT(7, "admin@p2h.in")
	require.NoError(t, err)
	inactiveToken, err := utils.GenerateJWT(8, "gone@p2h.in")
	require.NoError(t, err)

	checker := &stubAdminStatus{active: map[int]bool{7: true, 8: false}}
	r := newJWTRouter(checker)

	w := doRequest(r, http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodGet, "/admin", map[string]string{"Authorization": "Token " + token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")

	w = doRequest(r, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer " + inactiveToken})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(r, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", w.Body.String())

	checker.err = errors.New("db down")
	w = doRequest(r, http.MethodGet, "/admin", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.GET("/quote", NewRateLimiter(0.001, 2).Handle(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/quote", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/quote", nil).Code)
	w := doRequest(r, http.MethodGet, "/quote", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"https://p2h.in"}}))
	r.POST("/v1/pricing/quote", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doRequest(r, http.MethodOptions, "/v1/pricing/quote", map[string]string{
		"Origin":                        "https://p2h.in",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://p2h.in", w.Header().Get("Access-Control-Allow-Origin"))

	w = doRequest(r, http.MethodOptions, "/v1/pricing/quote", map[string]string{
		"Origin":                        "https://evil.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingMiddleware_SetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := doRequest(r, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Body.String(), 8)
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-Id"))
}

func TestLoggingMiddleware_ReusesUpstreamRequestID(t *testing.T) {
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := doRequest(r, http.MethodGet, "/ping", map[string]string{"X-Request-Id": "edge-123"})
	assert.Equal(t, "edge-123", w.Body.String())
	assert.Equal(t, "edge-123", w.Header().Get("X-Request-Id"))
}
