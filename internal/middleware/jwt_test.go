package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/postvec/internal/pkg/jwt"
)

func TestJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("secret")
	mw := JWTAuth(secret)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/v1/stats", nil)
	mw(c)
	require.True(t, c.IsAborted())

	token, err := jwt.GenerateToken("site-a", "", secret, time.Hour, time.Now())
	require.NoError(t, err)
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/v1/stats", nil)
	c.Request.Header.Set("Authorization", "Bearer "+token)
	mw(c)
	require.False(t, c.IsAborted())
	require.Equal(t, "site-a", c.GetString(ContextSubjectKey))
}

func TestJWTAuthDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/v1/stats", nil)
	JWTAuth(nil)(c)
	require.False(t, c.IsAborted())
}
