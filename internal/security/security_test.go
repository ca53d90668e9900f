package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	manager := NewJWTManager("secret", "deltaframe", time.Hour)

	token, err := manager.GenerateToken("u1", "alice", []string{RoleAdmin}, []string{"sales"})
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.True(t, claims.HasRole(RoleAdmin))
	require.True(t, claims.CanReadTable("sales"))
	require.False(t, claims.CanReadTable("orders"))
	require.False(t, claims.CanReadLocations())

	_, err = NewJWTManager("other", "deltaframe", time.Hour).ValidateToken(token)
	require.Error(t, err)
	_, err = NewJWTManager("secret", "someone-else", time.Hour).ValidateToken(token)
	require.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	manager := NewJWTManager("secret", "", -time.Minute)
	token, err := manager.GenerateToken("u1", "alice", nil, []string{AllTables})
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	require.Error(t, err)
}

func TestWildcardTables(t *testing.T) {
	claims := &Claims{Tables: []string{AllTables}}
	require.True(t, claims.CanReadTable("anything"))
	require.True(t, claims.CanReadLocations())
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := NewJWTManager("secret", "deltaframe", time.Hour)
	auth := NewAuthMiddleware(manager)

	router := gin.New()
	router.GET("/read", auth.RequireAuth(), func(c *gin.Context) {
		if !CanReadTable(c, "sales") {
			c.Status(http.StatusForbidden)
			return
		}
		c.Status(http.StatusOK)
	})
	router.POST("/admin", auth.RequireAuth(), auth.RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(method, path, token string) int {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/read", ""))
	require.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/read", "garbage"))

	reader, err := manager.GenerateToken("u1", "reader", nil, []string{"sales"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, do(http.MethodGet, "/read", reader))
	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/admin", reader))

	other, err := manager.GenerateToken("u2", "other", []string{RoleAdmin}, []string{"orders"})
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, do(http.MethodGet, "/read", other))
	require.Equal(t, http.StatusOK, do(http.MethodPost, "/admin", other))
}
