package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rollcall-go/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testRouter(cfg config.AuthConfig, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", RequireRole(cfg, roles...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"username": c.GetString(CtxUsername),
			"role":     c.GetString(CtxRole),
		})
	})
	return r
}

func tokenFor(t *testing.T, username, role string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func get(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRoleAcceptsAllowedRole(t *testing.T) {
	r := testRouter(config.AuthConfig{Enabled: true, JWTSecret: testSecret}, RoleTeacher)
	w := get(r, tokenFor(t, "rao", RoleTeacher, time.Hour))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"rao"`)
}

func TestRequireRoleRejectsWrongRole(t *testing.T) {
	r := testRouter(config.AuthConfig{Enabled: true, JWTSecret: testSecret}, RoleAdmin)
	w := get(r, tokenFor(t, "asha", RoleStudent, time.Hour))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRoleRejectsMissingToken(t *testing.T) {
	r := testRouter(config.AuthConfig{Enabled: true, JWTSecret: testSecret}, RoleTeacher)
	w := get(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoleRejectsExpiredToken(t *testing.T) {
	r := testRouter(config.AuthConfig{Enabled: true, JWTSecret: testSecret}, RoleTeacher)
	w := get(r, tokenFor(t, "rao", RoleTeacher, -time.Minute))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoleRejectsWrongSecret(t *testing.T) {
	r := testRouter(config.AuthConfig{Enabled: true, JWTSecret: "other-secret"}, RoleTeacher)
	w := get(r, tokenFor(t, "rao", RoleTeacher, time.Hour))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDisabledAuthPassesThrough(t *testing.T) {
	r := testRouter(config.AuthConfig{Enabled: false}, RoleAdmin)
	w := get(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)
}
