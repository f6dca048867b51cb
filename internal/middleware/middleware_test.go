package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(tokens *jwt.TokenService) *gin.Engine {
	r := gin.New()
	r.GET("/admin", JWTAuthMiddleware(tokens, observability.NewNopLogger()), RequireRole("admin"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetString(ContextAdminID)})
	})
	return r
}

func TestJWTAuthMiddleware(t *testing.T) {
	tokens := jwt.NewTokenService("test-secret", time.Hour)
	valid, err := tokens.Issue("abc123", "ops@example.com", "admin", time.Now())
	require.NoError(t, err)
	viewer, err := tokens.Issue("def456", "view@example.com", "viewer", time.Now())
	require.NoError(t, err)
	expired, err := tokens.Issue("abc123", "ops@example.com", "admin", time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	foreign, err := jwt.NewTokenService("other-secret", time.Hour).Issue("abc123", "ops@example.com", "admin", time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer " + valid, status: http.StatusOK, body: "abc123"},
		{name: "missing", header: "", status: http.StatusUnauthorized, body: "required"},
		{name: "wrong scheme", header: "Basic " + valid, status: http.StatusUnauthorized, body: "Bearer"},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized, body: "expired"},
		{name: "wrong key", header: "Bearer " + foreign, status: http.StatusUnauthorized, body: "Invalid token"},
		{name: "wrong role", header: "Bearer " + viewer, status: http.StatusForbidden, body: "permissions"},
	}

	router := protectedRouter(tokens)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestIngestKeyMiddleware(t *testing.T) {
	r := gin.New()
	r.POST("/events", IngestKeyMiddleware("s3cret"), func(c *gin.Context) { c.Status(http.StatusAccepted) })
	open := gin.New()
	open.POST("/events", IngestKeyMiddleware(""), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	send := func(router *gin.Engine, key string) int {
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		if key != "" {
			req.Header.Set("X-Ingest-Key", key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, send(r, "s3cret"))
	assert.Equal(t, http.StatusUnauthorized, send(r, "guess"))
	assert.Equal(t, http.StatusUnauthorized, send(r, ""))
	assert.Equal(t, http.StatusAccepted, send(open, ""))
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(&config.Config{Server: config.ServerConfig{AllowedHosts: []string{"https://admin.example.com"}}}))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
