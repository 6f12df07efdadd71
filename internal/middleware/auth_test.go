package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"slop-factory-server/pkg/token"
)

func newAuthRouter(t *testing.T, svc *token.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ServiceAuthMiddleware(svc))
	r.POST("/internal/dispatch/run", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"caller": c.GetString("caller")})
	})
	return r
}

func request(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/dispatch/run", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServiceAuthMiddleware(t *testing.T) {
	svc := token.NewService("0123456789abcdef0123456789abcdef", time.Hour)
	r := newAuthRouter(t, svc)

	tok, err := svc.Generate("cron")
	require.NoError(t, err)

	// Valid token passes and exposes the caller.
	w := request(r, "Bearer "+tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "cron")

	// Missing header.
	require.Equal(t, http.StatusUnauthorized, request(r, "").Code)

	// Wrong scheme.
	require.Equal(t, http.StatusUnauthorized, request(r, "Basic "+tok).Code)

	// Tampered token.
	require.Equal(t, http.StatusUnauthorized, request(r, "Bearer "+tok+"x").Code)
}

func TestServiceAuthMiddlewareExpired(t *testing.T) {
	svc := token.NewService("0123456789abcdef0123456789abcdef", -time.Minute)
	r := newAuthRouter(t, svc)

	tok, err := svc.Generate("cron")
	require.NoError(t, err)

	require.Equal(t, http.StatusUnauthorized, request(r, "Bearer "+tok).Code)
}
