package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupCORSTestRouter(cfg CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSWithConfig(cfg))
	router.GET("/resource", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestCORSWithConfig(t *testing.T) {
	t.Run("should set headers for allowed origin", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"https://hms.example.com"}
		router := setupCORSTestRouter(cfg)

		req, _ := http.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("Origin", "https://hms.example.com")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://hms.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("should not set headers for disallowed origin", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"https://hms.example.com"}
		router := setupCORSTestRouter(cfg)

		req, _ := http.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("Origin", "https://evil.example.com")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("should not set headers with empty whitelist", func(t *testing.T) {
		router := setupCORSTestRouter(DefaultCORSConfig())

		req, _ := http.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("Origin", "https://hms.example.com")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("should answer preflight with 204", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"https://hms.example.com"}
		router := setupCORSTestRouter(cfg)

		req, _ := http.NewRequest(http.MethodOptions, "/resource", nil)
		req.Header.Set("Origin", "https://hms.example.com")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("should allow any origin with wildcard", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"*"}
		router := setupCORSTestRouter(cfg)

		req, _ := http.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("should generate request id when missing", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/", func(c *gin.Context) {
			assert.NotEmpty(t, c.GetString("request_id"))
			c.Status(http.StatusOK)
		})

		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("should keep caller-provided request id", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "caller-id-42")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "caller-id-42", w.Header().Get("X-Request-ID"))
	})
}

func TestSecure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(Secure())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
