package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(svc *Service) *gin.Engine {
	r := gin.New()
	RegisterRoutes(r, NewHandler(svc))
	admin := r.Group("/admin", svc.Middleware(), RequireRole(RoleAdmin, RoleReviewer))
	admin.GET("", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("secret", "blue-carbon", zap.NewNop())
	token, err := svc.IssueToken("user-1", RoleReviewer, time.Hour)
	require.NoError(t, err)

	identity, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", Role: RoleReviewer}, *identity)
}

func TestParseTokenRejectsBadTokens(t *testing.T) {
	svc := NewService("secret", "blue-carbon", zap.NewNop())

	other := NewService("other-secret", "blue-carbon", zap.NewNop())
	forged, err := other.IssueToken("user-1", RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = svc.ParseToken(forged)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	expired, err := svc.IssueToken("user-1", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ParseToken(expired)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	wrongIssuer := NewService("secret", "someone-else", zap.NewNop())
	foreign, err := wrongIssuer.IssueToken("user-1", RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = svc.ParseToken(foreign)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestMiddlewareWithBearerToken(t *testing.T) {
	svc := NewService("secret", "blue-carbon", zap.NewNop())
	r := newRouter(svc)

	w := do(r, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := svc.IssueToken("user-7", RoleClient, time.Hour)
	require.NoError(t, err)
	w = do(r, "/auth/me", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)

	var identity Identity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &identity))
	assert.Equal(t, "user-7", identity.UserID)
	assert.Equal(t, RoleClient, identity.Role)

	w = do(r, "/auth/me?access_token="+token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole(t *testing.T) {
	svc := NewService("secret", "blue-carbon", zap.NewNop())
	r := newRouter(svc)

	client, _ := svc.IssueToken("user-1", RoleClient, time.Hour)
	w := do(r, "/admin", map[string]string{"Authorization": "Bearer " + client})
	assert.Equal(t, http.StatusForbidden, w.Code)

	reviewer, _ := svc.IssueToken("user-2", RoleReviewer, time.Hour)
	w = do(r, "/admin", map[string]string{"Authorization": "Bearer " + reviewer})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHeaderMode(t *testing.T) {
	svc := NewService("", "blue-carbon", zap.NewNop())
	assert.True(t, svc.HeaderMode())
	r := newRouter(svc)

	w := do(r, "/auth/me", map[string]string{"X-User-ID": "dev", "X-User-Role": RoleAdmin})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"dev","role":"admin"}`, w.Body.String())

	w = do(r, "/auth/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	_, err := svc.IssueToken("x", RoleAdmin, time.Hour)
	assert.Error(t, err)
}
