package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/orderimages/utils"
)

func init() { gin.SetMode(gin.TestMode) }

func protectedRouter(issuer *utils.TokenIssuer, bl *utils.TokenBlacklist, admins ...string) *gin.Engine {
	r := gin.New()
	isAdmin := func(u string) bool {
		for _, a := range admins {
			if a == u {
				return true
			}
		}
		return false
	}
	r.GET("/p", AuthRequired(issuer, bl, isAdmin), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsernameKey))
	})
	return r
}

func get(r http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	issuer := utils.NewTokenIssuer("secret")
	bl := utils.NewTokenBlacklist(nil)
	r := protectedRouter(issuer, bl, "alice")

	tok, err := issuer.GenerateToken("alice", time.Hour)
	require.NoError(t, err)
	stranger, err := issuer.GenerateToken("mallory", time.Hour)
	require.NoError(t, err)
	forged, err := utils.NewTokenIssuer("other").GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Token "+tok).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+forged).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "Bearer "+stranger).Code)

	w := get(r, "Bearer "+tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	bl.Revoke(context.Background(), tok, time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+tok).Code)
}

func TestRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(4) // burst 2
	r := gin.New()
	r.GET("/p", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, get(r, "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
